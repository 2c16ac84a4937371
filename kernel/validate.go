package kernel

import (
	"fmt"

	"ecuos/multicore"
)

// normalize fills defaults and checks the static invariants of a
// configuration. The returned copy is what the kernels run on.
func normalize(in Config) (Config, error) {
	c := in
	if c.Cores == 0 {
		c.Cores = 1
	}
	if c.Cores < 0 || c.Cores > multicore.MaxCores {
		return c, fmt.Errorf("config: %d cores, want 1..%d", c.Cores, multicore.MaxCores)
	}
	if c.AppModes == 0 {
		c.AppModes = 1
	}
	if len(c.Applications) == 0 {
		c.Applications = []ApplicationConfig{{Name: "system", Trusted: true}}
	}
	if len(c.Applications) > 32 {
		return c, fmt.Errorf("config: %d applications, want at most 32", len(c.Applications))
	}
	if c.CPULoad.Windows > MaxLoadWindows {
		return c, fmt.Errorf("config: cpu load windows %d, want at most %d", c.CPULoad.Windows, MaxLoadWindows)
	}
	if c.CPULoad.Interval > 0 && c.CPULoad.Windows == 0 {
		c.CPULoad.Windows = 1
	}

	for _, a := range c.Applications {
		if int(a.Core) >= c.Cores {
			return c, fmt.Errorf("config: application %q on core %d, only %d cores", a.Name, a.Core, c.Cores)
		}
		if a.Restartable && int(a.RestartTask) >= len(c.Tasks) {
			return c, fmt.Errorf("config: application %q restart task %d out of range", a.Name, a.RestartTask)
		}
	}

	// Copy every slice that gets defaults written into it.
	c.Tasks = append([]TaskConfig(nil), in.Tasks...)
	c.ISRs = append([]ISRConfig(nil), in.ISRs...)
	c.Resources = append([]ResourceConfig(nil), in.Resources...)
	c.Counters = append([]CounterConfig(nil), in.Counters...)

	for i := range c.Tasks {
		t := &c.Tasks[i]
		if err := c.checkApp(t.App, t.Core, "task", t.Name); err != nil {
			return c, err
		}
		if t.Priority >= TaskPriorityLimit {
			return c, fmt.Errorf("config: task %q priority %d, want < %d", t.Name, t.Priority, TaskPriorityLimit)
		}
		if t.RunPriority == 0 {
			t.RunPriority = t.Priority
		}
		if t.RunPriority < t.Priority || t.RunPriority >= TaskPriorityLimit {
			return c, fmt.Errorf("config: task %q run priority %d outside [%d,%d)", t.Name, t.RunPriority, t.Priority, TaskPriorityLimit)
		}
		if t.MaxActivations == 0 {
			t.MaxActivations = 1
		}
		if t.Extended && t.MaxActivations > 1 {
			return c, fmt.Errorf("config: extended task %q cannot have %d activations", t.Name, t.MaxActivations)
		}
		if err := checkRate(t.Rate, t.Name); err != nil {
			return c, err
		}
		for _, m := range t.Autostart {
			if int(m) >= c.AppModes {
				return c, fmt.Errorf("config: task %q autostarts in unknown mode %d", t.Name, m)
			}
		}
		for _, r := range t.Resources {
			if int(r) >= len(c.Resources) {
				return c, fmt.Errorf("config: task %q uses unknown resource %d", t.Name, r)
			}
		}
	}

	for i := range c.ISRs {
		isr := &c.ISRs[i]
		if err := c.checkApp(isr.App, isr.Core, "isr", isr.Name); err != nil {
			return c, err
		}
		if isr.Level == 0 {
			return c, fmt.Errorf("config: isr %q has level 0", isr.Name)
		}
		if err := checkRate(isr.Rate, isr.Name); err != nil {
			return c, err
		}
		for _, r := range isr.Resources {
			if int(r) >= len(c.Resources) {
				return c, fmt.Errorf("config: isr %q uses unknown resource %d", isr.Name, r)
			}
		}
	}

	// Ceiling invariant: the ceiling dominates every configured user.
	for i := range c.Resources {
		r := &c.Resources[i]
		maxUser, users := c.resourceUsers(ResourceID(i))
		if r.Ceiling == 0 {
			r.Ceiling = maxUser
		}
		if users > 0 && r.Ceiling < maxUser {
			return c, fmt.Errorf("config: resource %q ceiling %d below user priority %d", r.Name, r.Ceiling, maxUser)
		}
	}

	for i := range c.Counters {
		ctr := &c.Counters[i]
		if err := c.checkApp(ctr.App, ctr.Core, "counter", ctr.Name); err != nil {
			return c, err
		}
		if ctr.MaxAllowedValue == 0 {
			return c, fmt.Errorf("config: counter %q has max allowed value 0", ctr.Name)
		}
		if ctr.MinCycle == 0 {
			ctr.MinCycle = 1
		}
		if ctr.MinCycle > ctr.MaxAllowedValue {
			return c, fmt.Errorf("config: counter %q min cycle %d above max %d", ctr.Name, ctr.MinCycle, ctr.MaxAllowedValue)
		}
		if ctr.TicksPerBase == 0 {
			ctr.TicksPerBase = 1
		}
	}

	for _, a := range c.Alarms {
		if int(a.Counter) >= len(c.Counters) {
			return c, fmt.Errorf("config: alarm %q on unknown counter %d", a.Name, a.Counter)
		}
		if err := c.checkAction(a.Action, a.Name, true); err != nil {
			return c, err
		}
		for _, as := range a.Autostart {
			if int(as.Mode) >= c.AppModes || as.Method == StartSynchron || as.Method == 0 {
				return c, fmt.Errorf("config: alarm %q has invalid autostart %+v", a.Name, as)
			}
		}
	}

	for _, st := range c.ScheduleTables {
		if err := c.checkTable(st); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (c *Config) checkApp(app ApplicationID, core CoreID, kind, name string) error {
	if int(core) >= c.Cores {
		return fmt.Errorf("config: %s %q on core %d, only %d cores", kind, name, core, c.Cores)
	}
	if int(app) >= len(c.Applications) {
		return fmt.Errorf("config: %s %q in unknown application %d", kind, name, app)
	}
	if c.Applications[app].Core != core {
		return fmt.Errorf("config: %s %q on core %d, its application lives on core %d", kind, name, core, c.Applications[app].Core)
	}
	return nil
}

func checkRate(r RateLimit, name string) error {
	if r.Count < 0 || r.Count > MaxRateCount {
		return fmt.Errorf("config: %q rate count %d, want 0..%d", name, r.Count, MaxRateCount)
	}
	if r.Count > 0 && r.Window == 0 {
		return fmt.Errorf("config: %q rate limit has no window", name)
	}
	return nil
}

func (c *Config) resourceUsers(r ResourceID) (maxPrio Priority, users int) {
	for _, t := range c.Tasks {
		for _, id := range t.Resources {
			if id == r {
				users++
				if t.Priority > maxPrio {
					maxPrio = t.Priority
				}
			}
		}
	}
	for _, isr := range c.ISRs {
		for _, id := range isr.Resources {
			if id == r {
				users++
				if p := ISRPriority(isr.Level); p > maxPrio {
					maxPrio = p
				}
			}
		}
	}
	return maxPrio, users
}

func (c *Config) checkAction(a Action, name string, alarm bool) error {
	switch a.Kind {
	case ActionActivateTask:
		if int(a.Task) >= len(c.Tasks) {
			return fmt.Errorf("config: %q activates unknown task %d", name, a.Task)
		}
	case ActionSetEvent:
		if int(a.Task) >= len(c.Tasks) {
			return fmt.Errorf("config: %q sets event on unknown task %d", name, a.Task)
		}
		if !c.Tasks[a.Task].Extended {
			return fmt.Errorf("config: %q sets event on basic task %q", name, c.Tasks[a.Task].Name)
		}
	case ActionIncrementCounter:
		if int(a.Counter) >= len(c.Counters) {
			return fmt.Errorf("config: %q increments unknown counter %d", name, a.Counter)
		}
	case ActionCallback:
		if !alarm {
			return fmt.Errorf("config: %q: expiry points cannot run callbacks", name)
		}
	default:
		return fmt.Errorf("config: %q has no action", name)
	}
	return nil
}

func (c *Config) checkTable(st ScheduleTableConfig) error {
	if int(st.Counter) >= len(c.Counters) {
		return fmt.Errorf("config: schedule table %q on unknown counter %d", st.Name, st.Counter)
	}
	ctr := c.Counters[st.Counter]
	// An implicitly synchronised table spans the whole counter range.
	limit := uint64(ctr.MaxAllowedValue)
	if st.Sync == SyncImplicit {
		limit++
	}
	if st.Period == 0 || uint64(st.Period) > limit {
		return fmt.Errorf("config: schedule table %q period %d outside 1..%d", st.Name, st.Period, limit)
	}
	if len(st.Points) == 0 {
		return fmt.Errorf("config: schedule table %q has no expiry points", st.Name)
	}
	var prev Tick
	for i, p := range st.Points {
		if i > 0 && p.Offset <= prev {
			return fmt.Errorf("config: schedule table %q offsets not increasing at point %d", st.Name, i)
		}
		if p.Offset > st.Period {
			return fmt.Errorf("config: schedule table %q point %d beyond period", st.Name, i)
		}
		for _, a := range p.Actions {
			if err := c.checkAction(a, st.Name, false); err != nil {
				return err
			}
		}
		prev = p.Offset
	}
	if st.Repeating {
		last, first := st.Points[len(st.Points)-1].Offset, st.Points[0].Offset
		if st.Period-last+first == 0 {
			return fmt.Errorf("config: schedule table %q repeats with a zero final delay", st.Name)
		}
	}
	if st.Sync == SyncImplicit && uint64(st.Period) != limit {
		return fmt.Errorf("config: implicitly synchronised table %q must span its counter", st.Name)
	}
	for _, as := range st.Autostart {
		if int(as.Mode) >= c.AppModes || as.Method == 0 {
			return fmt.Errorf("config: schedule table %q has invalid autostart %+v", st.Name, as)
		}
		if as.Method == StartSynchron && st.Sync != SyncExplicit {
			return fmt.Errorf("config: schedule table %q autostarts synchron without explicit sync", st.Name)
		}
	}
	return nil
}
