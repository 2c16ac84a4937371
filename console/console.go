// Package console is an interactive command line for a running system.
// Every command is executed on the core that owns the object it touches.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"ecuos/internal/oscfg"
	"ecuos/kernel"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("console: quit")

// DefaultTimeout bounds how long a command waits for its core.
const DefaultTimeout = 2 * time.Second

// LineReader delivers one input line at a time, without the newline.
type LineReader interface {
	ReadLine() (string, error)
}

// Console executes commands against a system.
type Console struct {
	sys *kernel.System
	cfg *kernel.Config
	out io.Writer
	reg *registry

	// Timeout bounds each cross-core call. Zero means DefaultTimeout.
	Timeout time.Duration
	// Prompt is written before every line read by Run.
	Prompt string
}

// New returns a console for sys writing its output to out.
func New(sys *kernel.System, out io.Writer) (*Console, error) {
	c := &Console{sys: sys, cfg: sys.Config(), out: out, Prompt: "ecuos> "}
	r := newRegistry()
	for _, register := range []func(*registry) error{
		registerCoreCommands,
		registerTaskCommands,
		registerTimeCommands,
		registerSystemCommands,
	} {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	c.reg = r
	return c, nil
}

// Exec runs one command line. Empty lines and comments are ignored.
func (c *Console) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := c.reg.resolve(args[0])
	if !ok {
		if m := c.reg.matches(args[0]); len(m) > 0 {
			return fmt.Errorf("unknown command: %s (did you mean %s?)", args[0], strings.Join(m, ", "))
		}
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return cmd.Run(ctx, c, args[1:])
}

// Run reads and executes lines until quit, end of input or ctx ends.
// Command errors are printed and do not stop the loop.
func (c *Console) Run(ctx context.Context, in LineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.printf("%s", c.Prompt)
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console: read: %w", err)
		}
		switch err := c.Exec(ctx, line); {
		case errors.Is(err, ErrQuit):
			return nil
		case err != nil:
			c.printf("error: %v\n", err)
		}
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// call runs fn on core and turns a failed status into an error.
func (c *Console) call(ctx context.Context, core kernel.CoreID, fn func(*kernel.Kernel) kernel.Status) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	st, err := c.sys.Call(ctx, core, fn)
	if err != nil {
		return fmt.Errorf("core %d: %w", core, err)
	}
	return st.Err()
}

// lookup resolves arg as an object name or a numeric ID below len(names).
func lookup(kind string, names []string, arg string) (int, error) {
	if i, ok := oscfg.Lookup(names, arg); ok {
		return i, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n >= len(names) {
		return 0, fmt.Errorf("unknown %s %q", kind, arg)
	}
	return n, nil
}

func (c *Console) task(arg string) (kernel.TaskID, error) {
	i, err := lookup("task", oscfg.TaskNames(c.cfg), arg)
	return kernel.TaskID(i), err
}

func (c *Console) isr(arg string) (kernel.ISRID, error) {
	i, err := lookup("isr", oscfg.ISRNames(c.cfg), arg)
	return kernel.ISRID(i), err
}

func (c *Console) alarm(arg string) (kernel.AlarmID, error) {
	i, err := lookup("alarm", oscfg.AlarmNames(c.cfg), arg)
	return kernel.AlarmID(i), err
}

func (c *Console) counter(arg string) (kernel.CounterID, error) {
	i, err := lookup("counter", oscfg.CounterNames(c.cfg), arg)
	return kernel.CounterID(i), err
}

func (c *Console) table(arg string) (kernel.ScheduleTableID, error) {
	i, err := lookup("schedule table", oscfg.TableNames(c.cfg), arg)
	return kernel.ScheduleTableID(i), err
}

func (c *Console) core(arg string) (kernel.CoreID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(arg, "c"))
	if err != nil || n < 0 || n >= c.sys.NumCores() {
		return 0, fmt.Errorf("unknown core %q", arg)
	}
	return kernel.CoreID(n), nil
}

func parseTick(arg string) (kernel.Tick, error) {
	v, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad tick value %q", arg)
	}
	return kernel.Tick(v), nil
}
