package filter

import (
	"fmt"
	"time"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

// Disjunctions maps value references to their criteria. Keys keep the order
// in which they were first seen and each list keeps insertion order.
type Disjunctions struct {
	keys     []string
	criteria map[string][]TimeCriterion
}

// Add appends c under its raw value reference.
func (d *Disjunctions) Add(c TimeCriterion) {
	if d.criteria == nil {
		d.criteria = make(map[string][]TimeCriterion)
	}
	if _, ok := d.criteria[c.ValueReference]; !ok {
		d.keys = append(d.keys, c.ValueReference)
	}
	d.criteria[c.ValueReference] = append(d.criteria[c.ValueReference], c)
}

// Keys returns the value references in first-seen order.
func (d Disjunctions) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Get returns the criteria stored under valueReference.
func (d Disjunctions) Get(valueReference string) []TimeCriterion {
	return d.criteria[valueReference]
}

// Len returns the number of value references.
func (d Disjunctions) Len() int {
	return len(d.keys)
}

func (d Disjunctions) IsEmpty() bool {
	return len(d.keys) == 0
}

// FieldValues looks up the start and end value of a set of fields for one
// candidate row. ok is false when the row has no value for them.
type FieldValues func(f Fields) (start, end time.Time, ok bool)

// Matches evaluates the AND of the per-reference ORs. An empty map matches
// everything.
func (d Disjunctions) Matches(values FieldValues) bool {
	for _, key := range d.keys {
		matched := false
		for _, c := range d.criteria[key] {
			start, end, ok := values(c.Fields)
			if ok && c.Matches(start, end) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// BuildDisjunctions filters every temporal filter and groups the results by
// value reference.
func BuildDisjunctions(filters []model.TemporalFilter) (Disjunctions, error) {
	var d Disjunctions
	for _, tf := range filters {
		c, err := Filter(tf)
		if err != nil {
			return Disjunctions{}, err
		}
		d.Add(c)
	}
	return d, nil
}

// SplitIndeterminate lifts filters whose time is "first" or "latest" out of
// filters. Only TEquals on the phenomenon time can be lifted. Conflicting
// indeterminate values are rejected.
func SplitIndeterminate(filters []model.TemporalFilter, requested model.IndeterminateTime) ([]model.TemporalFilter, model.IndeterminateTime, error) {
	ind := requested
	rest := make([]model.TemporalFilter, 0, len(filters))
	for _, tf := range filters {
		if tf.Time.Indeterminate == model.NotIndeterminate {
			rest = append(rest, tf)
			continue
		}
		fields, err := GetFields(tf.ValueReference)
		if err != nil {
			return nil, model.NotIndeterminate, err
		}
		if fields.Kind != PhenomenonTime || tf.Operator != model.Equals {
			return nil, model.NotIndeterminate, ows.UnsupportedTime("temporalFilter",
				fmt.Sprintf("%q is only supported with TEquals on the phenomenon time, got %s on %s",
					tf.Time.Indeterminate, tf.Operator, tf.ValueReference))
		}
		if ind != model.NotIndeterminate && ind != tf.Time.Indeterminate {
			return nil, model.NotIndeterminate, ows.UnsupportedTime("temporalFilter",
				fmt.Sprintf("conflicting indeterminate times %q and %q", ind, tf.Time.Indeterminate))
		}
		ind = tf.Time.Indeterminate
	}
	return rest, ind, nil
}
