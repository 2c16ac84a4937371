// Package oscfg loads system configurations from JSON and binds task bodies
// and ISR handlers to them by name.
package oscfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"ecuos/kernel"
)

// Load reads the configuration stored at path.
func Load(path string) (kernel.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return kernel.Config{}, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return kernel.Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration. Unknown fields are rejected so typos in
// hand-written files do not silently fall back to defaults.
func Parse(r io.Reader) (kernel.Config, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var cfg kernel.Config
	if err := dec.Decode(&cfg); err != nil {
		return kernel.Config{}, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return kernel.Config{}, fmt.Errorf("decode: trailing data after configuration")
	}
	return cfg, nil
}

// Write encodes cfg as indented JSON. Bodies, handlers and hooks are not
// part of the encoding; only their names are.
func Write(w io.Writer, cfg kernel.Config) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Bodies maps body and handler names to code.
type Bodies struct {
	Tasks map[string]kernel.TaskBody
	ISRs  map[string]kernel.ISRBody
}

// Names returns the sorted task body names followed by the sorted handler
// names.
func (b Bodies) Names() (tasks, isrs []string) {
	for name := range b.Tasks {
		tasks = append(tasks, name)
	}
	for name := range b.ISRs {
		isrs = append(isrs, name)
	}
	sort.Strings(tasks)
	sort.Strings(isrs)
	return tasks, isrs
}

// Bind resolves every BodyName and HandlerName of cfg against b. Entries that
// already carry code are left alone; an empty name leaves the task bodyless.
func Bind(cfg *kernel.Config, b Bodies) error {
	for i := range cfg.Tasks {
		t := &cfg.Tasks[i]
		if t.Body != nil || t.BodyName == "" {
			continue
		}
		body, ok := b.Tasks[t.BodyName]
		if !ok {
			return fmt.Errorf("bind: task %q: unknown body %q", t.Name, t.BodyName)
		}
		t.Body = body
	}
	for i := range cfg.ISRs {
		isr := &cfg.ISRs[i]
		if isr.Handler != nil || isr.HandlerName == "" {
			continue
		}
		h, ok := b.ISRs[isr.HandlerName]
		if !ok {
			return fmt.Errorf("bind: isr %q: unknown handler %q", isr.Name, isr.HandlerName)
		}
		isr.Handler = h
	}
	return nil
}

// Lookup finds the index of the object called name in names.
func Lookup(names []string, name string) (int, bool) {
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// TaskNames lists the task names of cfg in ID order.
func TaskNames(cfg *kernel.Config) []string {
	out := make([]string, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		out[i] = t.Name
	}
	return out
}

// ISRNames lists the ISR names of cfg in ID order.
func ISRNames(cfg *kernel.Config) []string {
	out := make([]string, len(cfg.ISRs))
	for i, isr := range cfg.ISRs {
		out[i] = isr.Name
	}
	return out
}

// AlarmNames lists the alarm names of cfg in ID order.
func AlarmNames(cfg *kernel.Config) []string {
	out := make([]string, len(cfg.Alarms))
	for i, a := range cfg.Alarms {
		out[i] = a.Name
	}
	return out
}

// CounterNames lists the counter names of cfg in ID order.
func CounterNames(cfg *kernel.Config) []string {
	out := make([]string, len(cfg.Counters))
	for i, c := range cfg.Counters {
		out[i] = c.Name
	}
	return out
}

// TableNames lists the schedule table names of cfg in ID order.
func TableNames(cfg *kernel.Config) []string {
	out := make([]string, len(cfg.ScheduleTables))
	for i, st := range cfg.ScheduleTables {
		out[i] = st.Name
	}
	return out
}
