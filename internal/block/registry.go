package block

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a block is registered with an interval below one second.
var ErrInvalidConfig = errors.New("invalid block config")

// Spec describes one block. It is immutable after Add.
type Spec struct {
	Prefix   string
	Suffix   string
	Interval int // seconds, >= 1
	Command  string
}

// State is the mutable half of a block.
type State struct {
	// Rendered is the last prefix + output + suffix, empty until the first run.
	Rendered string
}

// Def is the construction-time form of a block: (prefix, suffix, interval, command).
type Def struct {
	Prefix   string
	Suffix   string
	Interval int
	Command  string
}

// Registry is an ordered list of (Spec, State) pairs.
//
// It is not safe for concurrent use; the scheduler is its only writer.
type Registry struct {
	specs  []Spec
	states []State
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Build registers defs in order, prefixing every command with basePath.
//
// basePath is joined by plain concatenation, so "./scripts/" + "cpu" gives
// "./scripts/cpu"; callers that want a separator must include it.
func Build(basePath string, defs []Def) (*Registry, error) {
	r := &Registry{
		specs:  make([]Spec, 0, len(defs)),
		states: make([]State, 0, len(defs)),
	}
	for _, d := range defs {
		if _, err := r.Add(d.Prefix, d.Suffix, d.Interval, basePath+d.Command); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a block and returns its index.
func (r *Registry) Add(prefix, suffix string, interval int, command string) (int, error) {
	if interval < 1 {
		return 0, fmt.Errorf("block %d (%s): interval must be >= 1, got %d: %w",
			len(r.specs), command, interval, ErrInvalidConfig)
	}
	r.specs = append(r.specs, Spec{
		Prefix:   prefix,
		Suffix:   suffix,
		Interval: interval,
		Command:  command,
	})
	r.states = append(r.states, State{})
	return len(r.specs) - 1, nil
}

func (r *Registry) Len() int { return len(r.specs) }

func (r *Registry) Spec(i int) Spec { return r.specs[i] }

func (r *Registry) State(i int) State { return r.states[i] }

func (r *Registry) SetRendered(i int, text string) { r.states[i].Rendered = text }

// Commands returns every block command in registry order.
func (r *Registry) Commands() []string {
	out := make([]string, len(r.specs))
	for i, s := range r.specs {
		out[i] = s.Command
	}
	return out
}

// Join concatenates all rendered texts in registry order with sep between
// consecutive entries.
func (r *Registry) Join(sep string) string {
	switch len(r.states) {
	case 0:
		return ""
	case 1:
		return r.states[0].Rendered
	}

	n := len(sep) * (len(r.states) - 1)
	for _, st := range r.states {
		n += len(st.Rendered)
	}
	var b strings.Builder
	b.Grow(n)
	for i, st := range r.states {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(st.Rendered)
	}
	return b.String()
}

// Render decorates raw command output for display.
//
// Only leading and trailing whitespace is removed from output;
// prefix and suffix are applied verbatim.
func Render(s Spec, output string) string {
	return s.Prefix + strings.TrimSpace(output) + s.Suffix
}
