package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ecuos/kernel"
)

func registerCoreCommands(r *registry) error {
	for _, cmd := range []command{
		{Name: "help", Usage: "help [command]", Desc: "Show available commands.", Run: cmdHelp},
		{Name: "quit", Aliases: []string{"exit"}, Usage: "quit", Desc: "Leave the console.", Run: cmdQuit},
		{Name: "status", Aliases: []string{"ps"}, Usage: "status", Desc: "Show one line per core.", Run: cmdStatus},
		{Name: "errors", Usage: "errors [core]", Desc: "Show the last error of each core.", Run: cmdErrors},
	} {
		if err := r.register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func registerTaskCommands(r *registry) error {
	for _, cmd := range []command{
		{Name: "tasks", Usage: "tasks", Desc: "List tasks and their states.", Run: cmdTasks},
		{Name: "activate", Aliases: []string{"act"}, Usage: "activate <task>", Desc: "Activate a task.", Run: cmdActivate},
		{Name: "setevent", Usage: "setevent <task> <mask>", Desc: "Set events of an extended task.", Run: cmdSetEvent},
		{Name: "events", Usage: "events <task>", Desc: "Show pending events of an extended task.", Run: cmdEvents},
		{Name: "unquarantine", Usage: "unquarantine <task>", Desc: "Release a quarantined task.", Run: cmdUnquarantine},
		{Name: "irq", Usage: "irq <isr>", Desc: "Raise an interrupt.", Run: cmdIRQ},
	} {
		if err := r.register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func registerTimeCommands(r *registry) error {
	for _, cmd := range []command{
		{Name: "counter", Usage: "counter <counter>", Desc: "Show a counter value.", Run: cmdCounter},
		{Name: "tick", Usage: "tick <counter> [n]", Desc: "Increment a software counter n times.", Run: cmdTick},
		{Name: "alarm", Usage: "alarm <alarm> rel|abs <start> [cycle]", Desc: "Arm an alarm.", Run: cmdAlarm},
		{Name: "cancel", Usage: "cancel <alarm>", Desc: "Cancel an alarm.", Run: cmdCancel},
		{Name: "getalarm", Usage: "getalarm <alarm>", Desc: "Show ticks until an alarm expires.", Run: cmdGetAlarm},
		{
			Name:    "table",
			Aliases: []string{"st"},
			Usage:   "table <table> start rel|abs <n> | startsync | stop | sync <value> | async | next <table> | status",
			Desc:    "Control a schedule table.",
			Run:     cmdTable,
		},
	} {
		if err := r.register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func registerSystemCommands(r *registry) error {
	for _, cmd := range []command{
		{Name: "load", Usage: "load [core] [peak|reset|resetpeak]", Desc: "Show or reset CPU load.", Run: cmdLoad},
		{Name: "shutdown", Usage: "shutdown [core|all]", Desc: "Shut down one core or every core.", Run: cmdShutdown},
	} {
		if err := r.register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func cmdHelp(_ context.Context, c *Console, args []string) error {
	if len(args) == 0 {
		for _, name := range c.reg.names() {
			cmd, _ := c.reg.resolve(name)
			c.printf("%-13s %s\n", cmd.Name, cmd.Desc)
		}
		return nil
	}
	if len(args) != 1 {
		return errors.New("usage: help [command]")
	}
	cmd, ok := c.reg.resolve(args[0])
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	c.printf("usage: %s\n%s\n", cmd.Usage, cmd.Desc)
	if len(cmd.Aliases) > 0 {
		c.printf("aliases: %s\n", strings.Join(cmd.Aliases, ", "))
	}
	return nil
}

func cmdQuit(context.Context, *Console, []string) error { return ErrQuit }

func cmdStatus(_ context.Context, c *Console, args []string) error {
	if len(args) != 0 {
		return errors.New("usage: status")
	}
	for i := 0; i < c.sys.NumCores(); i++ {
		c.printf("%s\n", c.sys.Kernel(kernel.CoreID(i)).Snapshot().Summary(c.cfg))
	}
	return nil
}

func cmdErrors(_ context.Context, c *Console, args []string) error {
	cores, err := c.coreArgs(args)
	if err != nil {
		return err
	}
	for _, id := range cores {
		s := c.sys.Kernel(id).Snapshot()
		if s.Errors == 0 {
			c.printf("c%d: no errors\n", id)
			continue
		}
		e := s.LastError
		c.printf("c%d: %d errors, last %s(%d, %d): %s\n", id, s.Errors, e.Service, e.Params[0], e.Params[1], e.Status)
	}
	return nil
}

// coreArgs parses an optional core argument; none means every core.
func (c *Console) coreArgs(args []string) ([]kernel.CoreID, error) {
	switch len(args) {
	case 0:
		out := make([]kernel.CoreID, c.sys.NumCores())
		for i := range out {
			out[i] = kernel.CoreID(i)
		}
		return out, nil
	case 1:
		id, err := c.core(args[0])
		if err != nil {
			return nil, err
		}
		return []kernel.CoreID{id}, nil
	default:
		return nil, errors.New("too many arguments")
	}
}

func cmdTasks(_ context.Context, c *Console, args []string) error {
	if len(args) != 0 {
		return errors.New("usage: tasks")
	}
	snaps := make([]kernel.Snapshot, c.sys.NumCores())
	for i := range snaps {
		snaps[i] = c.sys.Kernel(kernel.CoreID(i)).Snapshot()
	}
	for i, tc := range c.cfg.Tasks {
		state := "?"
		if s := snaps[tc.Core]; i < len(s.Tasks) {
			state = s.Tasks[i].String()
		}
		kind := "basic"
		if tc.Extended {
			kind = "extended"
		}
		c.printf("%2d %-12s c%d prio=%-3d %-8s %s\n", i, tc.Name, tc.Core, tc.Priority, kind, state)
	}
	return nil
}

func cmdActivate(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: activate <task>")
	}
	t, err := c.task(args[0])
	if err != nil {
		return err
	}
	return c.call(ctx, c.cfg.Tasks[t].Core, func(k *kernel.Kernel) kernel.Status { return k.ActivateTask(t) })
}

func cmdSetEvent(ctx context.Context, c *Console, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: setevent <task> <mask>")
	}
	t, err := c.task(args[0])
	if err != nil {
		return err
	}
	mask, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("bad event mask %q", args[1])
	}
	return c.call(ctx, c.cfg.Tasks[t].Core, func(k *kernel.Kernel) kernel.Status {
		return k.SetEvent(t, kernel.EventMask(mask))
	})
}

func cmdEvents(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: events <task>")
	}
	t, err := c.task(args[0])
	if err != nil {
		return err
	}
	var ev kernel.EventMask
	if err := c.call(ctx, c.cfg.Tasks[t].Core, func(k *kernel.Kernel) kernel.Status {
		var st kernel.Status
		ev, st = k.GetEvent(t)
		return st
	}); err != nil {
		return err
	}
	c.printf("%s: %#x\n", c.cfg.Tasks[t].Name, uint64(ev))
	return nil
}

func cmdUnquarantine(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: unquarantine <task>")
	}
	t, err := c.task(args[0])
	if err != nil {
		return err
	}
	return c.call(ctx, c.cfg.Tasks[t].Core, func(k *kernel.Kernel) kernel.Status { return k.UnquarantineTask(t) })
}

func cmdIRQ(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: irq <isr>")
	}
	i, err := c.isr(args[0])
	if err != nil {
		return err
	}
	return c.call(ctx, c.cfg.ISRs[i].Core, func(k *kernel.Kernel) kernel.Status { return k.RaiseInterrupt(i) })
}

func cmdCounter(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: counter <counter>")
	}
	ctr, err := c.counter(args[0])
	if err != nil {
		return err
	}
	var v kernel.Tick
	if err := c.call(ctx, c.cfg.Counters[ctr].Core, func(k *kernel.Kernel) kernel.Status {
		var st kernel.Status
		v, st = k.GetCounterValue(ctr)
		return st
	}); err != nil {
		return err
	}
	c.printf("%s = %d\n", c.cfg.Counters[ctr].Name, v)
	return nil
}

func cmdTick(ctx context.Context, c *Console, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: tick <counter> [n]")
	}
	ctr, err := c.counter(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil || n < 1 {
			return fmt.Errorf("bad count %q", args[1])
		}
	}
	return c.call(ctx, c.cfg.Counters[ctr].Core, func(k *kernel.Kernel) kernel.Status {
		for i := 0; i < n; i++ {
			if st := k.IncrementCounter(ctr); st != kernel.StatusOK {
				return st
			}
		}
		return kernel.StatusOK
	})
}

func (c *Console) alarmCore(a kernel.AlarmID) kernel.CoreID {
	return c.cfg.Counters[c.cfg.Alarms[a].Counter].Core
}

func cmdAlarm(ctx context.Context, c *Console, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("usage: alarm <alarm> rel|abs <start> [cycle]")
	}
	a, err := c.alarm(args[0])
	if err != nil {
		return err
	}
	var rel bool
	switch args[1] {
	case "rel":
		rel = true
	case "abs":
	default:
		return fmt.Errorf("bad alarm mode %q, want rel or abs", args[1])
	}
	start, err := parseTick(args[2])
	if err != nil {
		return err
	}
	var cycle kernel.Tick
	if len(args) == 4 {
		if cycle, err = parseTick(args[3]); err != nil {
			return err
		}
	}
	return c.call(ctx, c.alarmCore(a), func(k *kernel.Kernel) kernel.Status {
		return k.SetAlarm(a, start, cycle, rel)
	})
}

func cmdCancel(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: cancel <alarm>")
	}
	a, err := c.alarm(args[0])
	if err != nil {
		return err
	}
	return c.call(ctx, c.alarmCore(a), func(k *kernel.Kernel) kernel.Status { return k.CancelAlarm(a) })
}

func cmdGetAlarm(ctx context.Context, c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: getalarm <alarm>")
	}
	a, err := c.alarm(args[0])
	if err != nil {
		return err
	}
	var left kernel.Tick
	if err := c.call(ctx, c.alarmCore(a), func(k *kernel.Kernel) kernel.Status {
		var st kernel.Status
		left, st = k.GetAlarm(a)
		return st
	}); err != nil {
		return err
	}
	c.printf("%s expires in %d ticks\n", c.cfg.Alarms[a].Name, left)
	return nil
}

func cmdTable(ctx context.Context, c *Console, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: table <table> <action> ...")
	}
	st, err := c.table(args[0])
	if err != nil {
		return err
	}
	core := c.cfg.Counters[c.cfg.ScheduleTables[st].Counter].Core
	run := func(fn func(*kernel.Kernel) kernel.Status) error { return c.call(ctx, core, fn) }

	action, rest := args[1], args[2:]
	switch action {
	case "start":
		if len(rest) != 2 {
			return errors.New("usage: table <table> start rel|abs <n>")
		}
		v, err := parseTick(rest[1])
		if err != nil {
			return err
		}
		switch rest[0] {
		case "rel":
			return run(func(k *kernel.Kernel) kernel.Status { return k.StartScheduleTableRel(st, v) })
		case "abs":
			return run(func(k *kernel.Kernel) kernel.Status { return k.StartScheduleTableAbs(st, v) })
		}
		return fmt.Errorf("bad start mode %q, want rel or abs", rest[0])
	case "startsync":
		return run(func(k *kernel.Kernel) kernel.Status { return k.StartScheduleTableSynchron(st) })
	case "stop":
		return run(func(k *kernel.Kernel) kernel.Status { return k.StopScheduleTable(st) })
	case "sync":
		if len(rest) != 1 {
			return errors.New("usage: table <table> sync <value>")
		}
		v, err := parseTick(rest[0])
		if err != nil {
			return err
		}
		return run(func(k *kernel.Kernel) kernel.Status { return k.SyncScheduleTable(st, v) })
	case "async":
		return run(func(k *kernel.Kernel) kernel.Status { return k.SetScheduleTableAsync(st) })
	case "next":
		if len(rest) != 1 {
			return errors.New("usage: table <table> next <table>")
		}
		to, err := c.table(rest[0])
		if err != nil {
			return err
		}
		return run(func(k *kernel.Kernel) kernel.Status { return k.NextScheduleTable(st, to) })
	case "status":
		var s kernel.ScheduleTableStatus
		if err := run(func(k *kernel.Kernel) kernel.Status {
			var res kernel.Status
			s, res = k.GetScheduleTableStatus(st)
			return res
		}); err != nil {
			return err
		}
		c.printf("%s: %s\n", c.cfg.ScheduleTables[st].Name, s)
		return nil
	}
	return fmt.Errorf("unknown table action %q", action)
}

func cmdLoad(ctx context.Context, c *Console, args []string) error {
	var mode string
	if n := len(args); n > 0 {
		switch args[n-1] {
		case "peak", "reset", "resetpeak":
			mode, args = args[n-1], args[:n-1]
		}
	}
	cores, err := c.coreArgs(args)
	if err != nil {
		return err
	}
	for _, id := range cores {
		var load uint8
		err := c.call(ctx, id, func(k *kernel.Kernel) kernel.Status {
			switch mode {
			case "reset":
				k.ResetCpuLoad()
				return kernel.StatusOK
			case "resetpeak":
				k.ResetPeakCpuLoad()
				return kernel.StatusOK
			}
			var st kernel.Status
			load, st = k.GetCpuLoad(mode == "peak")
			return st
		})
		if err != nil {
			return err
		}
		if mode == "" || mode == "peak" {
			c.printf("c%d: %d%%\n", id, load)
		}
	}
	return nil
}

func cmdShutdown(ctx context.Context, c *Console, args []string) error {
	if len(args) > 1 {
		return errors.New("usage: shutdown [core|all]")
	}
	fn := func(k *kernel.Kernel) kernel.Status { return k.ShutdownAllCores(kernel.StatusOK) }
	var core kernel.CoreID
	if len(args) == 1 && args[0] != "all" {
		id, err := c.core(args[0])
		if err != nil {
			return err
		}
		core = id
		fn = func(k *kernel.Kernel) kernel.Status { return k.ShutdownOS(kernel.StatusOK) }
	}
	err := c.call(ctx, core, fn)
	// The core may halt before its answer is read.
	if kernel.StatusOf(err) == kernel.StatusCoreIsDown {
		return nil
	}
	return err
}
