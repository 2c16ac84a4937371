package console

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type cmdFunc func(ctx context.Context, c *Console, args []string) error

type command struct {
	Name    string
	Aliases []string
	Usage   string
	Desc    string
	Run     cmdFunc
}

type registry struct {
	primary map[string]command
	lookup  map[string]string
}

func newRegistry() *registry {
	return &registry{
		primary: make(map[string]command),
		lookup:  make(map[string]string),
	}
}

// register adds cmd under its name and aliases. Nothing is added when any of
// them is taken.
func (r *registry) register(cmd command) error {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if cmd.Name == "" {
		return fmt.Errorf("console registry: empty command name")
	}
	if cmd.Run == nil {
		return fmt.Errorf("console registry: %q has no handler", cmd.Name)
	}
	keys := []string{cmd.Name}
	for _, alias := range cmd.Aliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			keys = append(keys, alias)
		}
	}
	seen := make(map[string]bool, len(keys))
	for i, key := range keys {
		if _, taken := r.lookup[key]; taken || seen[key] {
			what := "alias"
			if i == 0 {
				what = "command"
			}
			return fmt.Errorf("console registry: duplicate %s %q", what, key)
		}
		seen[key] = true
	}
	r.primary[cmd.Name] = cmd
	for _, key := range keys {
		r.lookup[key] = cmd.Name
	}
	return nil
}

func (r *registry) resolve(name string) (command, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return command{}, false
	}
	if primary, ok := r.lookup[name]; ok {
		cmd, ok := r.primary[primary]
		return cmd, ok
	}
	return command{}, false
}

func (r *registry) names() []string {
	out := make([]string, 0, len(r.primary))
	for name := range r.primary {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// matches returns the command names starting with prefix.
func (r *registry) matches(prefix string) []string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	var out []string
	for _, name := range r.names() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}
