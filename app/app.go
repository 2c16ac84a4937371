package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"ecuos/hal"
	"ecuos/kernel"
)

// ErrHalted is returned by Step once every core has stopped.
var ErrHalted = errors.New("app: all cores halted")

// tickBuffer bounds how far a core may lag behind the tick source before
// ticks are dropped for it.
const tickBuffer = 64

// Config selects what New boots.
type Config struct {
	OS     kernel.Config
	Mode   kernel.AppModeID
	Hooks  kernel.Hooks
	Tracer kernel.Tracer
}

// System is a booted OS: one goroutine per core plus a tick pump.
type System struct {
	os  *kernel.System
	log hal.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// New builds the system described by cfg, starts every core and returns
// once their goroutines are running. Cancelling ctx stops them.
func New(ctx context.Context, h hal.HAL, cfg Config) (*System, error) {
	log := h.Logger()
	if log == nil {
		log = hal.NopLogger{}
	}
	osys, err := kernel.NewSystem(cfg.OS, kernel.Options{
		Logger: log,
		Timer:  h.Timer(),
		Hooks:  cfg.Hooks,
		Tracer: cfg.Tracer,
		Panic:  panicReporter(log),
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	master := osys.Kernel(0)
	for i := 1; i < osys.NumCores(); i++ {
		if st := master.StartCore(kernel.CoreID(i)); st != kernel.StatusOK {
			return nil, fmt.Errorf("app: start core %d: %w", i, st.Err())
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &System{os: osys, log: log, cancel: cancel, done: make(chan struct{})}

	g, gctx := errgroup.WithContext(ctx)
	ticks := make([]chan uint64, osys.NumCores())
	for i := range ticks {
		ticks[i] = make(chan uint64, tickBuffer)
		k, in := osys.Kernel(kernel.CoreID(i)), ticks[i]
		g.Go(func() error {
			if st := k.StartOS(cfg.Mode); st != kernel.StatusOK {
				return fmt.Errorf("core %d: start os: %w", k.GetCoreID(), st.Err())
			}
			return k.Run(gctx, in)
		})
	}

	var src <-chan uint64
	if t := h.Time(); t != nil {
		src = t.Ticks()
	}
	pumpCtx, stopPump := context.WithCancel(gctx)
	go pump(pumpCtx, src, ticks)

	go func() {
		err := g.Wait()
		stopPump()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return s, nil
}

// pump copies the tick source to every core. A core that is not keeping up
// loses ticks instead of stalling the others.
func pump(ctx context.Context, src <-chan uint64, out []chan uint64) {
	if src == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case seq, ok := <-src:
			if !ok {
				return
			}
			for _, ch := range out {
				select {
				case ch <- seq:
				default:
				}
			}
		}
	}
}

// OS returns the underlying kernel system.
func (s *System) OS() *kernel.System { return s.os }

// Done is closed once every core has stopped.
func (s *System) Done() <-chan struct{} { return s.done }

// Err returns the first core failure, if any. It is only meaningful after
// Done is closed.
func (s *System) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops every core and waits for them.
func (s *System) Close() error {
	s.cancel()
	<-s.done
	return s.Err()
}

// Step reports whether the system is still alive. It is called once per host
// frame.
func (s *System) Step() error {
	select {
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrHalted
	default:
		return nil
	}
}

// StatusLines renders one line per core, followed by the panic report if the
// system panicked.
func (s *System) StatusLines() []string {
	cfg := s.os.Config()
	lines := make([]string, 0, s.os.NumCores()+1)
	for i := 0; i < s.os.NumCores(); i++ {
		lines = append(lines, s.os.Kernel(kernel.CoreID(i)).Snapshot().Summary(cfg))
	}
	if info, ok := s.os.Panicked(); ok {
		lines = append(lines, panicLines(info, monitorColumns)...)
	}
	return lines
}
