// Package mapping translates weewx observation names into Datadog metric names
// and converts their values between unit systems.
package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chrissnell/wxdatadog/internal/types"
)

// ErrUnmapped is returned for observations that have no entry in the table
var ErrUnmapped = errors.New("observation is not mapped")

// Mapping binds one observation to the metric it is reported as
type Mapping struct {
	Field  string
	Metric string
	Group  Group
}

// Convert converts a value of this observation between unit systems
func (m Mapping) Convert(v float64, from, to types.UnitSystem) (float64, error) {
	out, err := Convert(m.Group, v, from, to)
	if err != nil {
		var ce *ConversionError
		if errors.As(err, &ce) {
			ce.Field = m.Field
		}
		return 0, err
	}
	return out, nil
}

// Table is an immutable, validated set of mappings keyed by observation name
type Table struct {
	byField map[string]Mapping
	order   []Mapping
}

// NewTable builds a table and validates it. A table with a duplicate
// observation, a duplicate or empty metric name, or an unknown group is rejected.
func NewTable(mappings ...Mapping) (*Table, error) {
	t := &Table{
		byField: make(map[string]Mapping, len(mappings)),
		order:   make([]Mapping, 0, len(mappings)),
	}
	for _, m := range mappings {
		if _, dup := t.byField[m.Field]; dup {
			return nil, fmt.Errorf("observation %q is mapped more than once", m.Field)
		}
		t.byField[m.Field] = m
		t.order = append(t.order, m)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the table for mistakes that would otherwise surface as
// silently missing metrics at runtime
func (t *Table) Validate() error {
	metrics := make(map[string]string, len(t.order))
	for _, m := range t.order {
		if m.Field == "" {
			return errors.New("mapping with empty observation name")
		}
		if types.IsReserved(m.Field) {
			return fmt.Errorf("observation %q is record metadata and can't be mapped", m.Field)
		}
		if m.Metric == "" {
			return fmt.Errorf("observation %q has an empty metric name", m.Field)
		}
		if !validMetricName.MatchString(m.Metric) {
			return fmt.Errorf("observation %q: invalid metric name %q", m.Field, m.Metric)
		}
		if !m.Group.Valid() {
			return fmt.Errorf("observation %q: unknown unit group %q", m.Field, m.Group)
		}
		if other, dup := metrics[m.Metric]; dup {
			return fmt.Errorf("observations %q and %q both map to metric %q", other, m.Field, m.Metric)
		}
		metrics[m.Metric] = m.Field
	}
	return nil
}

// With returns a new table holding t's mappings plus extra. Extra mappings
// replace existing mappings for the same observation.
func (t *Table) With(extra ...Mapping) (*Table, error) {
	replaced := make(map[string]Mapping, len(extra))
	for _, m := range extra {
		replaced[m.Field] = m
	}

	merged := make([]Mapping, 0, len(t.order)+len(extra))
	for _, m := range t.order {
		if r, ok := replaced[m.Field]; ok {
			merged = append(merged, r)
			delete(replaced, m.Field)
			continue
		}
		merged = append(merged, m)
	}
	for _, m := range extra {
		if r, pending := replaced[m.Field]; pending {
			merged = append(merged, r)
			delete(replaced, m.Field)
		}
	}
	return NewTable(merged...)
}

// Lookup returns the mapping for an observation
func (t *Table) Lookup(field string) (Mapping, error) {
	m, ok := t.byField[field]
	if !ok {
		return Mapping{}, fmt.Errorf("%w: %s", ErrUnmapped, field)
	}
	return m, nil
}

// Len returns the number of mapped observations
func (t *Table) Len() int {
	return len(t.order)
}

// Mappings returns a copy of the mappings in table order
func (t *Table) Mappings() []Mapping {
	out := make([]Mapping, len(t.order))
	copy(out, t.order)
	return out
}

var validMetricName = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// SnakeCase turns a weewx camelCase observation name into a metric-friendly name:
// "outTemp" becomes "out_temp"
func SnakeCase(s string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(s, "${1}_${2}"))
}
