package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(1 * time.Hour)
	t2 = t0.Add(2 * time.Hour)
	t3 = t0.Add(3 * time.Hour)
	t4 = t0.Add(4 * time.Hour)
)

func TestGetFields(t *testing.T) {
	tests := []struct {
		ref  string
		want FieldKind
	}{
		{"om:phenomenonTime", PhenomenonTime},
		{"phenomenonTime", PhenomenonTime},
		{"om:resultTime", ResultTime},
		{"om:validTime", ValidTime},
		{"sml:validDescribeSensorTime", ProcedureValidTime},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := GetFields(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Kind)

			again, err := GetFields(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestGetFieldsRejectsUnknownReference(t *testing.T) {
	for _, ref := range []string{"", "om:samplingTime", "time", "om:PhenomenonTime"} {
		_, err := GetFields(ref)
		require.Error(t, err, ref)
		assert.True(t, errors.Is(err, ows.ErrUnsupportedValueReference), ref)
	}
}

func TestFilterAcceptsAllSupportedOperators(t *testing.T) {
	require.Len(t, Operators(), 13)
	for _, op := range Operators() {
		c, err := Filter(model.TemporalFilter{
			Operator:       op,
			ValueReference: "om:phenomenonTime",
			Time:           model.Period(t1, t3),
		})
		require.NoError(t, err, op)
		assert.Equal(t, op, c.Operator)
		assert.Equal(t, PhenomenonTime, c.Fields.Kind)
	}
}

func TestFilterRejectsUnsupportedOperators(t *testing.T) {
	for _, op := range []model.TemporalOperator{"AnyInteracts", "TM_Begins", "Near", ""} {
		_, err := Filter(model.TemporalFilter{
			Operator:       op,
			ValueReference: "om:phenomenonTime",
			Time:           model.Period(t1, t3),
		})
		require.Error(t, err, op)
		assert.True(t, errors.Is(err, ows.ErrUnsupportedOperator), op)
	}
}

func TestFilterRejectsUnsupportedTime(t *testing.T) {
	periodOps := []model.TemporalOperator{model.Begins, model.Ends, model.During, model.Overlaps, model.OverlappedBy}
	for _, op := range periodOps {
		_, err := Filter(model.TemporalFilter{Operator: op, ValueReference: "om:phenomenonTime", Time: model.Instant(t1)})
		assert.True(t, errors.Is(err, ows.ErrUnsupportedTime), op)
	}

	_, err := Filter(model.TemporalFilter{Operator: model.Equals, ValueReference: "om:phenomenonTime"})
	assert.True(t, errors.Is(err, ows.ErrUnsupportedTime))

	_, err = Filter(model.TemporalFilter{
		Operator:       model.Equals,
		ValueReference: "om:phenomenonTime",
		Time:           model.Time{Indeterminate: model.Latest},
	})
	assert.True(t, errors.Is(err, ows.ErrUnsupportedTime))
}

func TestCriterionMatches(t *testing.T) {
	// filter period [t1, t3]
	tests := []struct {
		op         model.TemporalOperator
		start, end time.Time
		want       bool
	}{
		{model.Before, t0, t0, true},
		{model.Before, t0, t1, false},
		{model.After, t4, t4, true},
		{model.After, t3, t4, false},
		{model.Begins, t1, t2, true},
		{model.Begins, t1, t3, false},
		{model.Ends, t2, t3, true},
		{model.Ends, t1, t3, false},
		{model.BegunBy, t1, t4, true},
		{model.BegunBy, t1, t2, false},
		{model.EndedBy, t0, t3, true},
		{model.EndedBy, t2, t3, false},
		{model.During, t2, t2, true},
		{model.During, t1, t3, true},
		{model.During, t0, t2, false},
		{model.Contains, t0, t4, true},
		{model.Contains, t1, t4, false},
		{model.Equals, t1, t3, true},
		{model.Equals, t1, t2, false},
		{model.Overlaps, t0, t2, true},
		{model.Overlaps, t0, t4, false},
		{model.OverlappedBy, t2, t4, true},
		{model.OverlappedBy, t0, t4, false},
		{model.Meets, t0, t1, true},
		{model.Meets, t0, t2, false},
		{model.MetBy, t3, t4, true},
		{model.MetBy, t2, t4, false},
	}
	for _, tt := range tests {
		c, err := Filter(model.TemporalFilter{Operator: tt.op, ValueReference: "om:phenomenonTime", Time: model.Period(t1, t3)})
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.Matches(tt.start, tt.end), "%s [%s, %s]", tt.op, tt.start.Format("15:04"), tt.end.Format("15:04"))
	}
}

func TestInstantCriterion(t *testing.T) {
	c, err := Filter(model.TemporalFilter{Operator: model.Equals, ValueReference: "om:resultTime", Time: model.Instant(t2)})
	require.NoError(t, err)
	assert.True(t, c.Matches(t2, t2))
	assert.False(t, c.Matches(t1, t2))

	c, err = Filter(model.TemporalFilter{Operator: model.Contains, ValueReference: "om:phenomenonTime", Time: model.Instant(t2)})
	require.NoError(t, err)
	assert.True(t, c.Matches(t1, t3))
	assert.False(t, c.Matches(t2, t3))
}

func TestBuildDisjunctionsGroupsByValueReference(t *testing.T) {
	filters := []model.TemporalFilter{
		{Operator: model.During, ValueReference: "om:phenomenonTime", Time: model.Period(t0, t1)},
		{Operator: model.Equals, ValueReference: "om:resultTime", Time: model.Instant(t2)},
		{Operator: model.During, ValueReference: "om:phenomenonTime", Time: model.Period(t3, t4)},
		{Operator: model.After, ValueReference: "phenomenonTime", Time: model.Instant(t2)},
	}
	d, err := BuildDisjunctions(filters)
	require.NoError(t, err)

	assert.Equal(t, []string{"om:phenomenonTime", "om:resultTime", "phenomenonTime"}, d.Keys())
	require.Len(t, d.Get("om:phenomenonTime"), 2)
	assert.Equal(t, model.Period(t0, t1), d.Get("om:phenomenonTime")[0].Time)
	assert.Equal(t, model.Period(t3, t4), d.Get("om:phenomenonTime")[1].Time)
	assert.Len(t, d.Get("om:resultTime"), 1)
	assert.Len(t, d.Get("phenomenonTime"), 1)
}

func TestBuildDisjunctionsFailsOnFirstInvalidFilter(t *testing.T) {
	_, err := BuildDisjunctions([]model.TemporalFilter{
		{Operator: model.During, ValueReference: "om:phenomenonTime", Time: model.Period(t0, t1)},
		{Operator: model.During, ValueReference: "om:samplingTime", Time: model.Period(t0, t1)},
	})
	assert.True(t, errors.Is(err, ows.ErrUnsupportedValueReference))
}

func TestDisjunctionsMatchesAndOfOrs(t *testing.T) {
	d, err := BuildDisjunctions([]model.TemporalFilter{
		{Operator: model.During, ValueReference: "om:phenomenonTime", Time: model.Period(t0, t1)},
		{Operator: model.During, ValueReference: "om:phenomenonTime", Time: model.Period(t3, t4)},
		{Operator: model.After, ValueReference: "om:resultTime", Time: model.Instant(t2)},
	})
	require.NoError(t, err)

	row := func(phen, result time.Time) FieldValues {
		return func(f Fields) (time.Time, time.Time, bool) {
			if f.Kind == ResultTime {
				return result, result, true
			}
			return phen, phen, true
		}
	}

	assert.True(t, d.Matches(row(t0, t3)), "first phenomenon alternative, late result")
	assert.True(t, d.Matches(row(t4, t4)), "second phenomenon alternative")
	assert.False(t, d.Matches(row(t2, t4)), "phenomenon time in neither alternative")
	assert.False(t, d.Matches(row(t0, t1)), "result time too early")

	assert.True(t, Disjunctions{}.Matches(row(t0, t0)))

	missing := func(Fields) (time.Time, time.Time, bool) { return time.Time{}, time.Time{}, false }
	assert.False(t, d.Matches(missing))
}

func TestSplitIndeterminate(t *testing.T) {
	filters := []model.TemporalFilter{
		{Operator: model.Equals, ValueReference: "om:phenomenonTime", Time: model.Time{Indeterminate: model.Latest}},
		{Operator: model.During, ValueReference: "om:resultTime", Time: model.Period(t0, t1)},
	}
	rest, ind, err := SplitIndeterminate(filters, model.NotIndeterminate)
	require.NoError(t, err)
	assert.Equal(t, model.Latest, ind)
	require.Len(t, rest, 1)
	assert.Equal(t, "om:resultTime", rest[0].ValueReference)

	_, _, err = SplitIndeterminate(filters, model.First)
	assert.True(t, errors.Is(err, ows.ErrUnsupportedTime))
}

func TestSplitIndeterminateRequiresPhenomenonTimeEquality(t *testing.T) {
	tests := []struct {
		name   string
		filter model.TemporalFilter
	}{
		{"after latest", model.TemporalFilter{Operator: model.After, ValueReference: "om:phenomenonTime", Time: model.Time{Indeterminate: model.Latest}}},
		{"latest result time", model.TemporalFilter{Operator: model.Equals, ValueReference: "om:resultTime", Time: model.Time{Indeterminate: model.Latest}}},
		{"after first result time", model.TemporalFilter{Operator: model.After, ValueReference: "om:resultTime", Time: model.Time{Indeterminate: model.First}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SplitIndeterminate([]model.TemporalFilter{tt.filter}, model.NotIndeterminate)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ows.ErrUnsupportedTime))
		})
	}
}
