//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"ecuos/app"
	"ecuos/console"
	"ecuos/hal"
	"ecuos/internal/buildinfo"
	"ecuos/internal/oscfg"
	"ecuos/kernel"
	"ecuos/trace"
)

type options struct {
	config    string
	mode      uint
	console   bool
	tracePath string
}

func main() {
	var cfg hal.HeadlessConfig
	var opts options
	var version bool
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.DurationVar(&cfg.Tick, "tick", time.Millisecond, "Counter tick duration.")
	flag.Uint64Var(&cfg.StatusEvery, "status", 0, "Print core status every N frames in headless mode (0 = never).")
	flag.StringVar(&opts.config, "config", "", "Configuration file (empty = built-in demo).")
	flag.UintVar(&opts.mode, "mode", 0, "Application mode passed to StartOS.")
	flag.BoolVar(&opts.console, "console", false, "Read commands from the terminal (headless mode).")
	flag.StringVar(&opts.tracePath, "trace", "", "Write a scheduling timeline PNG here on exit.")
	flag.BoolVar(&version, "version", false, "Print the build stamp and exit.")
	flag.Parse()

	if version {
		fmt.Println(buildinfo.String())
		return
	}

	var rec *trace.Recorder
	if opts.tracePath != "" {
		rec = trace.NewRecorder(1 << 16)
	}
	var sys *app.System

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	newApp := func(h hal.HAL) (hal.Monitor, error) {
		s, err := boot(ctx, h, opts, rec)
		if err != nil {
			return nil, err
		}
		sys = s
		if opts.console && cfg.Enabled {
			go runConsole(ctx, stop, s)
		}
		return s, nil
	}

	var err error
	if cfg.Enabled {
		err = hal.RunHeadless(ctx, newApp, cfg)
	} else {
		err = hal.RunWindow(newApp)
	}
	if sys != nil {
		if cerr := sys.Close(); err == nil {
			err = cerr
		}
		if rec != nil {
			if terr := writeTrace(opts.tracePath, sys, rec); err == nil {
				err = terr
			}
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, app.ErrHalted) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func boot(ctx context.Context, h hal.HAL, opts options, rec *trace.Recorder) (*app.System, error) {
	var cfg kernel.Config
	if opts.config == "" {
		cfg = oscfg.DemoConfig(h.Logger())
	} else {
		c, err := oscfg.Load(opts.config)
		if err != nil {
			return nil, err
		}
		if err := oscfg.Bind(&c, oscfg.DemoBodies(h.Logger())); err != nil {
			return nil, err
		}
		cfg = c
	}
	ac := app.Config{OS: cfg, Mode: kernel.AppModeID(opts.mode)}
	if rec != nil {
		ac.Tracer = rec
	}
	h.Logger().WriteLineString("ecuos " + buildinfo.Short())
	return app.New(ctx, h, ac)
}

// runConsole serves the terminal until the user quits, then stops the
// program.
func runConsole(ctx context.Context, stop context.CancelFunc, s *app.System) {
	defer stop()
	var in console.LineReader
	var out io.Writer = os.Stdout
	if t, err := console.OpenTTY(); err == nil {
		defer t.Close()
		in, out = t, t.Output()
	} else {
		in = console.NewReaderInput(os.Stdin)
	}
	c, err := console.New(s.OS(), out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if err := c.Run(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
}

func writeTrace(path string, s *app.System, rec *trace.Recorder) error {
	evs := rec.Events()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := trace.RenderPNG(f, s.OS().Config(), trace.Spans(evs, trace.End(evs)), trace.RenderOptions{}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
