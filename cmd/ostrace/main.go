//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"ecuos/app"
	"ecuos/hal"
	"ecuos/internal/oscfg"
	"ecuos/kernel"
	"ecuos/trace"
)

func main() {
	var cfgPath, outPath string
	var frames uint64
	var hz, events, width int
	var tick time.Duration
	flag.StringVar(&cfgPath, "config", "", "Configuration file (empty = built-in demo).")
	flag.StringVar(&outPath, "out", "trace.png", "Output PNG path.")
	flag.Uint64Var(&frames, "frames", 120, "Host frames to run before rendering.")
	flag.IntVar(&hz, "hz", 60, "Host frame rate.")
	flag.DurationVar(&tick, "tick", time.Millisecond, "Counter tick duration.")
	flag.IntVar(&events, "events", 1<<16, "Trace events kept (oldest dropped).")
	flag.IntVar(&width, "width", 1600, "Image width in pixels.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfgPath, outPath, frames, hz, tick, events, width); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, outPath string, frames uint64, hz int, tick time.Duration, events, width int) error {
	rec := trace.NewRecorder(events)
	var sys *app.System
	err := hal.RunHeadless(ctx, func(h hal.HAL) (hal.Monitor, error) {
		cfg, err := loadConfig(cfgPath, h.Logger())
		if err != nil {
			return nil, err
		}
		sys, err = app.New(ctx, h, app.Config{OS: cfg, Tracer: rec})
		return sys, err
	}, hal.HeadlessConfig{Enabled: true, Hz: hz, Ticks: frames, Tick: tick})
	if sys != nil {
		if cerr := sys.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil && !errors.Is(err, app.ErrHalted) && !errors.Is(err, context.Canceled) {
		return err
	}
	if sys == nil {
		return errors.New("system did not start")
	}

	evs := rec.Events()
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", outPath, err)
	}
	if err := trace.RenderPNG(f, sys.OS().Config(), trace.Spans(evs, trace.End(evs)), trace.RenderOptions{Width: width}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("%s: %d events (%d dropped)\n", outPath, len(evs), rec.Dropped())
	return nil
}

func loadConfig(path string, log hal.Logger) (kernel.Config, error) {
	if path == "" {
		return oscfg.DemoConfig(log), nil
	}
	cfg, err := oscfg.Load(path)
	if err != nil {
		return kernel.Config{}, err
	}
	if err := oscfg.Bind(&cfg, oscfg.DemoBodies(log)); err != nil {
		return kernel.Config{}, err
	}
	return cfg, nil
}
