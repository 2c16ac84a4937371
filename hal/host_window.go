//go:build !tinygo && cgo

package hal

import (
	"image/color"

	"ecuos/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

const (
	monitorWidth  = 480
	monitorHeight = 320
	monitorLineH  = 16
)

// RunWindow opens a desktop window that shows the monitor status lines and
// steps the system once per frame. It blocks until the window closes.
func RunWindow(newApp func(HAL) (Monitor, error)) error {
	h := New().(*hostHAL)
	m, err := newApp(h)
	if err != nil {
		return err
	}

	g := &hostGame{h: h, m: m}
	ebiten.SetWindowTitle("ecuos monitor (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(monitorWidth*2, monitorHeight*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h     *hostHAL
	m     Monitor
	lines []string
}

func (g *hostGame) Update() error {
	g.h.t.step(1)
	if g.m == nil {
		return nil
	}
	if err := g.m.Step(); err != nil {
		return err
	}
	g.lines = g.m.StatusLines()
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 0x10, G: 0x18, B: 0x20, A: 0xFF})
	for i, line := range g.lines {
		y := 4 + i*monitorLineH
		if y+monitorLineH > monitorHeight {
			break
		}
		ebitenutil.DebugPrintAt(screen, line, 4, y)
	}
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return monitorWidth, monitorHeight
}
