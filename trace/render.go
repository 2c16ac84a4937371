package trace

import (
	"fmt"
	"io"
	"math"

	"github.com/fogleman/gg"

	"ecuos/kernel"
)

// RenderOptions sizes the timeline image.
type RenderOptions struct {
	Width  int
	LaneH  int
	Margin int
	Label  int
}

func (o *RenderOptions) defaults() {
	if o.Width <= 0 {
		o.Width = 1200
	}
	if o.LaneH <= 0 {
		o.LaneH = 28
	}
	if o.Margin <= 0 {
		o.Margin = 8
	}
	if o.Label <= 0 {
		o.Label = 64
	}
}

// palette colours tasks by ID; ISRs are always drawn in red.
var palette = [][3]float64{
	{0.20, 0.47, 0.71},
	{0.17, 0.63, 0.17},
	{1.00, 0.50, 0.05},
	{0.58, 0.40, 0.74},
	{0.55, 0.34, 0.29},
	{0.09, 0.75, 0.81},
	{0.74, 0.74, 0.13},
	{0.50, 0.50, 0.50},
}

// Draw renders spans as one task lane and one ISR lane per core.
func Draw(cfg *kernel.Config, spans []Span, opt RenderOptions) *gg.Context {
	opt.defaults()
	cores := cfg.Cores
	if cores <= 0 {
		cores = 1
	}
	height := opt.Margin*2 + cores*2*opt.LaneH + opt.LaneH
	dc := gg.NewContext(opt.Width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	var t0, t1 uint64 = math.MaxUint64, 0
	for _, sp := range spans {
		if sp.Start < t0 {
			t0 = sp.Start
		}
		if sp.End > t1 {
			t1 = sp.End
		}
	}
	if len(spans) == 0 || t1 <= t0 {
		t0, t1 = 0, 1
	}
	plotW := float64(opt.Width - opt.Label - 2*opt.Margin)
	x := func(at uint64) float64 {
		return float64(opt.Margin+opt.Label) + plotW*float64(at-t0)/float64(t1-t0)
	}
	laneY := func(core kernel.CoreID, isr bool) float64 {
		row := int(core) * 2
		if isr {
			row++
		}
		return float64(opt.Margin + row*opt.LaneH)
	}

	dc.SetRGB(0, 0, 0)
	for c := 0; c < cores; c++ {
		core := kernel.CoreID(c)
		dc.DrawString(fmt.Sprintf("c%d task", c), float64(opt.Margin), laneY(core, false)+float64(opt.LaneH)*0.6)
		dc.DrawString(fmt.Sprintf("c%d isr", c), float64(opt.Margin), laneY(core, true)+float64(opt.LaneH)*0.6)
	}

	lane := float64(opt.LaneH)
	for _, sp := range spans {
		if int(sp.Core) >= cores {
			continue
		}
		x0, x1 := x(sp.Start), x(sp.End)
		if x1-x0 < 1 {
			x1 = x0 + 1
		}
		y := laneY(sp.Core, sp.ISR)
		inset := 2 + float64(sp.Depth)*3
		if sp.ISR {
			dc.SetRGB(0.84, 0.15, 0.16)
		} else {
			c := palette[int(sp.ID)%len(palette)]
			dc.SetRGB(c[0], c[1], c[2])
		}
		dc.DrawRectangle(x0, y+inset, x1-x0, lane-2*inset)
		dc.Fill()

		if name := spanName(cfg, sp); x1-x0 > float64(len(name))*7 {
			dc.SetRGB(1, 1, 1)
			dc.DrawString(name, x0+2, y+lane*0.6)
		}
	}

	dc.SetRGB(0, 0, 0)
	footer := float64(opt.Margin + cores*2*opt.LaneH)
	dc.DrawLine(float64(opt.Margin+opt.Label), footer, float64(opt.Width-opt.Margin), footer)
	dc.Stroke()
	dc.DrawString(fmt.Sprintf("%d", t0), float64(opt.Margin+opt.Label), footer+lane*0.6)
	end := fmt.Sprintf("%d", t1)
	w, _ := dc.MeasureString(end)
	dc.DrawString(end, float64(opt.Width-opt.Margin)-w, footer+lane*0.6)
	return dc
}

// RenderPNG draws spans and writes the image to w as PNG.
func RenderPNG(w io.Writer, cfg *kernel.Config, spans []Span, opt RenderOptions) error {
	if err := Draw(cfg, spans, opt).EncodePNG(w); err != nil {
		return fmt.Errorf("trace: encode png: %w", err)
	}
	return nil
}

func spanName(cfg *kernel.Config, sp Span) string {
	if sp.ISR {
		if int(sp.ID) < len(cfg.ISRs) {
			return cfg.ISRs[sp.ID].Name
		}
		return fmt.Sprintf("isr%d", sp.ID)
	}
	if int(sp.ID) < len(cfg.Tasks) {
		return cfg.Tasks[sp.ID].Name
	}
	return fmt.Sprintf("task%d", sp.ID)
}
