// Package filter turns decoded temporal filters into time criteria grouped
// by value reference. Criteria that share a value reference are alternatives
// (OR); groups of different value references must all hold (AND).
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

// FieldKind identifies the time fields a criterion compares.
type FieldKind int

const (
	PhenomenonTime FieldKind = iota
	ResultTime
	ValidTime
	ProcedureValidTime
)

// Fields names the start and end properties compared by a criterion. For
// instant-valued properties Start and End are the same.
type Fields struct {
	Kind  FieldKind
	Start string
	End   string
}

var (
	phenomenonTimeFields     = Fields{Kind: PhenomenonTime, Start: "phenomenonTimeStart", End: "phenomenonTimeEnd"}
	resultTimeFields         = Fields{Kind: ResultTime, Start: "resultTime", End: "resultTime"}
	validTimeFields          = Fields{Kind: ValidTime, Start: "validTimeStart", End: "validTimeEnd"}
	procedureValidTimeFields = Fields{Kind: ProcedureValidTime, Start: "validFrom", End: "validTo"}
)

// value reference markers, matched as substrings in this order
var markers = []struct {
	marker string
	fields Fields
}{
	{"phenomenonTime", phenomenonTimeFields},
	{"resultTime", resultTimeFields},
	{"validDescribeSensorTime", procedureValidTimeFields},
	{"validTime", validTimeFields},
}

// GetFields resolves a value reference such as "om:phenomenonTime" to the
// time fields it names.
func GetFields(valueReference string) (Fields, error) {
	for _, m := range markers {
		if strings.Contains(valueReference, m.marker) {
			return m.fields, nil
		}
	}
	return Fields{}, ows.UnsupportedValueReference(valueReference)
}

var supportedOperators = []model.TemporalOperator{
	model.Before,
	model.After,
	model.Begins,
	model.Ends,
	model.BegunBy,
	model.EndedBy,
	model.During,
	model.Contains,
	model.Equals,
	model.Overlaps,
	model.OverlappedBy,
	model.Meets,
	model.MetBy,
}

// operators that compare against the two distinct bounds of a period
var periodOnly = map[model.TemporalOperator]bool{
	model.Begins:       true,
	model.Ends:         true,
	model.During:       true,
	model.Overlaps:     true,
	model.OverlappedBy: true,
}

// Operators returns the supported temporal operators.
func Operators() []model.TemporalOperator {
	return append([]model.TemporalOperator(nil), supportedOperators...)
}

// Supported reports whether op is one of the thirteen supported operators.
func Supported(op model.TemporalOperator) bool {
	for _, s := range supportedOperators {
		if s == op {
			return true
		}
	}
	return false
}

// TimeCriterion is one resolved temporal predicate.
type TimeCriterion struct {
	ValueReference string
	Fields         Fields
	Operator       model.TemporalOperator
	Time           model.Time
}

// Filter resolves and validates one temporal filter.
func Filter(tf model.TemporalFilter) (TimeCriterion, error) {
	fields, err := GetFields(tf.ValueReference)
	if err != nil {
		return TimeCriterion{}, err
	}
	if !Supported(tf.Operator) {
		return TimeCriterion{}, ows.UnsupportedOperator(string(tf.Operator), tf.ValueReference)
	}
	if tf.Time.IsZero() {
		return TimeCriterion{}, ows.UnsupportedTime("temporalFilter", fmt.Sprintf("filter on %s carries no time value", tf.ValueReference))
	}
	if tf.Time.Indeterminate != model.NotIndeterminate {
		return TimeCriterion{}, ows.UnsupportedTime("temporalFilter",
			fmt.Sprintf("indeterminate time %q cannot be combined with operator %s", tf.Time.Indeterminate, tf.Operator))
	}
	if periodOnly[tf.Operator] && tf.Time.IsInstant() {
		return TimeCriterion{}, ows.UnsupportedTime("temporalFilter",
			fmt.Sprintf("operator %s requires a time period", tf.Operator))
	}
	return TimeCriterion{
		ValueReference: tf.ValueReference,
		Fields:         fields,
		Operator:       tf.Operator,
		Time:           tf.Time,
	}, nil
}

// Matches evaluates the criterion against the values of its fields.
func (c TimeCriterion) Matches(start, end time.Time) bool {
	b, e := c.Time.Begin, c.Time.End
	switch c.Operator {
	case model.Before:
		return end.Before(b)
	case model.After:
		return start.After(e)
	case model.Begins:
		return start.Equal(b) && end.Before(e)
	case model.Ends:
		return start.After(b) && end.Equal(e)
	case model.BegunBy:
		return start.Equal(b) && end.After(e)
	case model.EndedBy:
		return start.Before(b) && end.Equal(e)
	case model.During:
		return !start.Before(b) && !end.After(e)
	case model.Contains:
		return start.Before(b) && end.After(e)
	case model.Equals:
		return start.Equal(b) && end.Equal(e)
	case model.Overlaps:
		return start.Before(b) && end.After(b) && end.Before(e)
	case model.OverlappedBy:
		return start.After(b) && start.Before(e) && end.After(e)
	case model.Meets:
		return end.Equal(b)
	case model.MetBy:
		return start.Equal(e)
	}
	return false
}
