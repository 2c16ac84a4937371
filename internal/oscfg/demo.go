package oscfg

import (
	"fmt"

	"ecuos/hal"
	"ecuos/kernel"
)

// Object IDs of the demo configuration.
const (
	TaskInit kernel.TaskID = iota
	TaskControl
	TaskMonitor
	TaskLogger
	TaskComms
)

const (
	ISRCanRx kernel.ISRID = 0

	ResBus       kernel.ResourceID = 0
	ResScheduler kernel.ResourceID = 1

	CtrSysTick   kernel.CounterID = 0
	CtrSteps     kernel.CounterID = 1
	CtrCommsTick kernel.CounterID = 2

	AlarmMonitor kernel.AlarmID = 0
	AlarmComms   kernel.AlarmID = 1

	TableCycle kernel.ScheduleTableID = 0

	SpinShared kernel.SpinlockID = 0

	EvFlush kernel.EventMask = 1 << 0
)

// Demo returns a two-core body-controller configuration. Core 0 runs the
// control loop from a schedule table, core 1 runs a periodic comms task
// that signals the logger across cores.
func Demo() kernel.Config {
	point := func(off kernel.Tick, a kernel.Action) kernel.ExpiryPoint {
		return kernel.ExpiryPoint{Offset: off, MaxIncrease: 5, MaxDecrease: 5, Actions: []kernel.Action{a}}
	}
	return kernel.Config{
		Cores:    2,
		AppModes: 1,
		Applications: []kernel.ApplicationConfig{
			{Name: "body", Core: 0, Trusted: true, Restartable: true, RestartTask: TaskInit},
			{Name: "comms", Core: 1},
		},
		Tasks: []kernel.TaskConfig{
			{Name: "Init", App: 0, Core: 0, Priority: 20, Autostart: []kernel.AppModeID{0},
				Resources: []kernel.ResourceID{ResScheduler}, BodyName: "init"},
			{Name: "Control", App: 0, Core: 0, Priority: 10, MaxActivations: 2,
				Resources: []kernel.ResourceID{ResBus},
				Budget:    kernel.Budget{Exec: 50_000_000}, BodyName: "control"},
			{Name: "Monitor", App: 0, Core: 0, Priority: 5, BodyName: "monitor"},
			{Name: "Logger", App: 0, Core: 0, Priority: 1, Extended: true,
				Autostart: []kernel.AppModeID{0}, BodyName: "logger"},
			{Name: "Comms", App: 1, Core: 1, Priority: 4,
				Rate: kernel.RateLimit{Count: 4, Window: 1_000_000_000}, BodyName: "comms"},
		},
		ISRs: []kernel.ISRConfig{
			{Name: "CanRx", App: 0, Core: 0, Level: 1, Resources: []kernel.ResourceID{ResBus}, HandlerName: "canrx"},
		},
		Resources: []kernel.ResourceConfig{
			{Name: "Bus", App: 0},
			{Name: "Scheduler", App: 0, Ceiling: kernel.TaskPriorityLimit - 1},
		},
		Counters: []kernel.CounterConfig{
			{Name: "SysTick", App: 0, Core: 0, MaxAllowedValue: 9999, Hardware: true},
			{Name: "Steps", App: 0, Core: 0, MaxAllowedValue: 0xFFFF},
			{Name: "CommsTick", App: 1, Core: 1, MaxAllowedValue: 9999, Hardware: true},
		},
		Alarms: []kernel.AlarmConfig{
			{Name: "MonitorAlarm", App: 0, Counter: CtrSysTick,
				Action:    kernel.Action{Kind: kernel.ActionActivateTask, Task: TaskMonitor},
				Autostart: []kernel.AlarmAutostart{{Mode: 0, Method: kernel.StartRelative, Start: 500, Cycle: 500}}},
			{Name: "CommsAlarm", App: 1, Counter: CtrCommsTick,
				Action:    kernel.Action{Kind: kernel.ActionActivateTask, Task: TaskComms},
				Autostart: []kernel.AlarmAutostart{{Mode: 0, Method: kernel.StartRelative, Start: 250, Cycle: 250}}},
		},
		ScheduleTables: []kernel.ScheduleTableConfig{
			{Name: "Cycle", App: 0, Counter: CtrSysTick, Period: 100, Repeating: true,
				Sync: kernel.SyncExplicit, Precision: 2,
				Points: []kernel.ExpiryPoint{
					point(0, kernel.Action{Kind: kernel.ActionActivateTask, Task: TaskControl}),
					point(50, kernel.Action{Kind: kernel.ActionSetEvent, Task: TaskLogger, Event: EvFlush}),
				}},
		},
		Spinlocks: []kernel.SpinlockConfig{{Name: "Shared", Order: 1}},
		CPULoad:   kernel.CPULoadConfig{Interval: 100_000_000, Windows: 10},
	}
}

// DemoBodies returns the code of the demo tasks and ISRs. Task bodies write
// their progress to log.
func DemoBodies(log hal.Logger) Bodies {
	if log == nil {
		log = hal.NopLogger{}
	}
	return Bodies{
		Tasks: map[string]kernel.TaskBody{
			"init":    kernel.TaskFunc(func(c *kernel.Context) { initBody(c, log) }),
			"control": kernel.TaskFunc(controlBody),
			"monitor": kernel.TaskFunc(func(c *kernel.Context) { monitorBody(c, log) }),
			"logger":  &loggerBody{log: log},
			"comms":   kernel.TaskFunc(commsBody),
		},
		ISRs: map[string]kernel.ISRBody{
			"canrx": kernel.ISRFunc(canRxHandler),
		},
	}
}

// DemoConfig returns Demo with DemoBodies bound.
func DemoConfig(log hal.Logger) kernel.Config {
	cfg := Demo()
	if err := Bind(&cfg, DemoBodies(log)); err != nil {
		panic(err)
	}
	return cfg
}

func initBody(c *kernel.Context, log hal.Logger) {
	k := c.Kernel()
	c.GetResource(ResScheduler)
	st := k.StartScheduleTableRel(TableCycle, 10)
	c.ReleaseResource(ResScheduler)
	log.WriteLineString(fmt.Sprintf("init: mode %d, cycle table %s", k.GetActiveApplicationMode(), st))
	c.TerminateTask()
}

func controlBody(c *kernel.Context) {
	if c.GetResource(ResBus) == kernel.StatusOK {
		c.IncrementCounter(CtrSteps)
		c.ReleaseResource(ResBus)
	}
	c.TerminateTask()
}

func monitorBody(c *kernel.Context, log hal.Logger) {
	k := c.Kernel()
	load, _ := k.GetCpuLoad(false)
	steps, _ := k.GetCounterValue(CtrSteps)
	log.WriteLineString(fmt.Sprintf("monitor: load=%d%% steps=%d", load, steps))
	c.TerminateTask()
}

// loggerBody flushes on EvFlush and otherwise waits for it.
type loggerBody struct {
	log     hal.Logger
	flushes uint64
}

func (b *loggerBody) Step(c *kernel.Context) {
	if ev, _ := c.Events(); ev&EvFlush != 0 {
		c.ClearEvent(EvFlush)
		b.flushes++
		if b.flushes%10 == 0 {
			b.log.WriteLineString(fmt.Sprintf("logger: %d flushes", b.flushes))
		}
	}
	c.WaitEvent(EvFlush)
}

func commsBody(c *kernel.Context) {
	if c.GetSpinlock(SpinShared) == kernel.StatusOK {
		c.SetEvent(TaskLogger, EvFlush)
		c.ReleaseSpinlock(SpinShared)
	}
	c.TerminateTask()
}

func canRxHandler(c *kernel.Context) {
	if c.GetResource(ResBus) != kernel.StatusOK {
		return
	}
	c.SetEvent(TaskLogger, EvFlush)
	c.ReleaseResource(ResBus)
}
