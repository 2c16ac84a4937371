package kernel

import (
	"strings"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	c, err := normalize(Config{
		Tasks:    []TaskConfig{{Name: "t", Priority: 3}},
		Counters: []CounterConfig{{Name: "c", MaxAllowedValue: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Cores != 1 || c.AppModes != 1 {
		t.Fatalf("cores, modes = %d, %d; want 1, 1", c.Cores, c.AppModes)
	}
	if len(c.Applications) != 1 || !c.Applications[0].Trusted {
		t.Fatalf("applications = %+v; want one trusted", c.Applications)
	}
	if tc := c.Tasks[0]; tc.RunPriority != 3 || tc.MaxActivations != 1 {
		t.Fatalf("task = %+v", tc)
	}
	if cc := c.Counters[0]; cc.MinCycle != 1 || cc.TicksPerBase != 1 {
		t.Fatalf("counter = %+v", cc)
	}
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	in := Config{Tasks: []TaskConfig{{Name: "t", Priority: 3}}}
	if _, err := normalize(in); err != nil {
		t.Fatal(err)
	}
	if in.Tasks[0].MaxActivations != 0 {
		t.Fatal("normalize wrote into the caller's task table")
	}
}

func TestNormalizeRejects(t *testing.T) {
	counter := []CounterConfig{{Name: "c", MaxAllowedValue: 99}}
	point := func(o Tick) ExpiryPoint {
		return ExpiryPoint{Offset: o, Actions: []Action{{Kind: ActionActivateTask, Task: 0}}}
	}
	task := []TaskConfig{{Name: "t", Priority: 1}}

	for _, tc := range []struct {
		name string
		cfg  Config
		want string
	}{
		{"cores", Config{Cores: 9}, "cores"},
		{"extended multi activation", Config{Tasks: []TaskConfig{{Name: "e", Extended: true, MaxActivations: 2}}}, "extended"},
		{"task priority", Config{Tasks: []TaskConfig{{Name: "t", Priority: 300}}}, "priority"},
		{"isr level", Config{ISRs: []ISRConfig{{Name: "i"}}}, "level 0"},
		{"ceiling", Config{
			Tasks:     []TaskConfig{{Name: "t", Priority: 4, Resources: []ResourceID{0}}},
			Resources: []ResourceConfig{{Name: "r", Ceiling: 2}},
		}, "ceiling"},
		{"unknown resource", Config{Tasks: []TaskConfig{{Name: "t", Resources: []ResourceID{3}}}}, "unknown resource"},
		{"event on basic task", Config{
			Tasks:    task,
			Counters: counter,
			Alarms:   []AlarmConfig{{Name: "a", Action: Action{Kind: ActionSetEvent, Task: 0, Event: 1}}},
		}, "basic task"},
		{"no action", Config{Counters: counter, Alarms: []AlarmConfig{{Name: "a"}}}, "no action"},
		{"offsets", Config{
			Tasks:          task,
			Counters:       counter,
			ScheduleTables: []ScheduleTableConfig{{Name: "s", Period: 20, Points: []ExpiryPoint{point(5), point(5)}}},
		}, "not increasing"},
		{"zero final delay", Config{
			Tasks:          task,
			Counters:       counter,
			ScheduleTables: []ScheduleTableConfig{{Name: "s", Period: 20, Repeating: true, Points: []ExpiryPoint{point(0), point(20)}}},
		}, "zero final delay"},
		{"implicit span", Config{
			Tasks:          task,
			Counters:       counter,
			ScheduleTables: []ScheduleTableConfig{{Name: "s", Period: 50, Sync: SyncImplicit, Points: []ExpiryPoint{point(0)}}},
		}, "span"},
		{"callback in table", Config{
			Counters: counter,
			ScheduleTables: []ScheduleTableConfig{{Name: "s", Period: 20, Points: []ExpiryPoint{
				{Offset: 1, Actions: []Action{{Kind: ActionCallback}}},
			}}},
		}, "callbacks"},
		{"wrong core", Config{
			Cores: 2,
			Tasks: []TaskConfig{{Name: "t", Core: 1}},
		}, "application lives on core"},
		{"rate", Config{Tasks: []TaskConfig{{Name: "t", Rate: RateLimit{Count: 2}}}}, "no window"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalize(tc.cfg)
			if err == nil {
				t.Fatal("normalize accepted the configuration")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %q; want it to mention %q", err, tc.want)
			}
		})
	}
}
