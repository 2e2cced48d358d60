package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"caravel/internal/faults"
	"caravel/internal/layout"
)

// Selector names a validator subset.
type Selector string

const (
	// SelectAll picks every validator registered for a family.
	SelectAll Selector = "all"
	// SelectStructural picks only the structural validators.
	SelectStructural Selector = "structural"
)

// SelectorFor maps the restricted-mode flag onto a selector.
func SelectorFor(restricted bool) Selector {
	if restricted {
		return SelectStructural
	}
	return SelectAll
}

// Baseline is the set of identifiers already integrated in a collected mount.
type Baseline map[string]struct{}

// NewBaseline builds a set from ids.
func NewBaseline(ids ...string) Baseline {
	b := make(Baseline, len(ids))
	for _, id := range ids {
		b[id] = struct{}{}
	}
	return b
}

// Has reports membership.
func (b Baseline) Has(id string) bool {
	_, ok := b[id]
	return ok
}

// Sorted returns the identifiers in order.
func (b Baseline) Sorted() []string {
	out := make([]string, 0, len(b))
	for id := range b {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Input is the bundle handed to each validator.
type Input struct {
	Family   string
	Index    *layout.Index
	Baseline Baseline
	// Subjects is the optional allow-list; nil disables the check.
	Subjects []string
}

// Validator checks one aspect of an upload and returns issue descriptions.
// A returned error is an internal failure, not a content issue.
type Validator struct {
	Name  string
	Check func(ctx context.Context, in Input) ([]string, error)
}

// Capabilities are the three hooks a family plugin supplies.
type Capabilities struct {
	Status       func(ctx context.Context, collectDir string) (Baseline, error)
	Validators   func(selector Selector) []Validator
	ListDatasets func(ctx context.Context, uploadDir string) ([]string, error)
}

func (c Capabilities) missing() []string {
	var out []string
	if c.Status == nil {
		out = append(out, "status")
	}
	if c.Validators == nil {
		out = append(out, "validators")
	}
	if c.ListDatasets == nil {
		out = append(out, "listDatasets")
	}
	return out
}

// Registry maps family names to capability sets.
type Registry struct {
	families map[string]Capabilities
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Capabilities)}
}

// Register adds a family. Registering a family twice is a configuration error.
func (r *Registry) Register(family string, caps Capabilities) error {
	family = strings.TrimSpace(family)
	if family == "" {
		return faults.Wrap(faults.ErrConfiguration, "validation", "register", "empty family name", nil)
	}
	if _, dup := r.families[family]; dup {
		return faults.Wrap(faults.ErrConfiguration, "validation", "register", fmt.Sprintf("family %q registered twice", family), nil)
	}
	r.families[family] = caps
	return nil
}

// Families returns the registered names, sorted.
func (r *Registry) Families() []string {
	out := make([]string, 0, len(r.families))
	for name := range r.families {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the capabilities of every requested family, failing with
// a configuration error on the first family that is absent or incomplete.
func (r *Registry) Resolve(families ...string) (map[string]Capabilities, error) {
	resolved := make(map[string]Capabilities, len(families))
	for _, family := range families {
		if _, done := resolved[family]; done {
			continue
		}
		caps, ok := r.families[family]
		if !ok {
			return nil, faults.Wrap(faults.ErrConfiguration, "validation", "resolve",
				fmt.Sprintf("no validator plugin registered for family %q", family), nil)
		}
		if missing := caps.missing(); len(missing) > 0 {
			return nil, faults.Wrap(faults.ErrConfiguration, "validation", "resolve",
				fmt.Sprintf("family %q lacks hooks: %s", family, strings.Join(missing, ", ")), nil)
		}
		resolved[family] = caps
	}
	return resolved, nil
}
