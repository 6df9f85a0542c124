package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	instant, err := ParseTime("2024-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, instant.IsInstant())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), instant.Begin)

	period, err := ParseTime("2024-05-01T10:00:00Z/2024-05-02T10:00:00Z")
	require.NoError(t, err)
	assert.False(t, period.IsInstant())
	assert.Equal(t, "2024-05-01T10:00:00Z/2024-05-02T10:00:00Z", period.String())

	latest, err := ParseTime("latest")
	require.NoError(t, err)
	assert.Equal(t, Latest, latest.Indeterminate)

	first, err := ParseTime("getFirst")
	require.NoError(t, err)
	assert.Equal(t, First, first.Indeterminate)

	_, err = ParseTime("2024-05-02T10:00:00Z/2024-05-01T10:00:00Z")
	assert.Error(t, err)
	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestParseTemporalOperator(t *testing.T) {
	assert.Equal(t, Before, ParseTemporalOperator("TM_Before"))
	assert.Equal(t, Equals, ParseTemporalOperator("TEquals"))
	assert.Equal(t, Equals, ParseTemporalOperator("tm_equals"))
	assert.Equal(t, Contains, ParseTemporalOperator("contains"))
	assert.Equal(t, OverlappedBy, ParseTemporalOperator("OverlappedBy"))
	assert.Equal(t, TemporalOperator("AnyInteracts"), ParseTemporalOperator(" AnyInteracts "))
}

func TestParseSpatialOperator(t *testing.T) {
	assert.Equal(t, BBOX, ParseSpatialOperator("bbox"))
	assert.Equal(t, SpatialContains, ParseSpatialOperator("Contains"))
	assert.Equal(t, Within, ParseSpatialOperator(" WITHIN "))
	assert.Equal(t, SpatialOperator("DWithin"), ParseSpatialOperator("DWithin"))
}

func TestNewValueUsesKindRegistry(t *testing.T) {
	num := 4.25
	v, err := NewValue(KindQuantity, RawValue{Numeric: &num})
	require.NoError(t, err)
	assert.Equal(t, KindQuantity, v.Kind)
	assert.Equal(t, 4.25, v.Quantity)
	assert.Equal(t, "4,25", v.Format(","))

	cat := "rain"
	v, err = NewValue(KindCategory, RawValue{Category: &cat})
	require.NoError(t, err)
	assert.Equal(t, "rain", v.Format("."))

	_, err = NewValue(KindCount, RawValue{Numeric: &num})
	assert.Error(t, err, "count column is null")

	_, err = NewValue(KindArray, RawValue{})
	assert.Error(t, err, "arrays are never stored")
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Quantity")
	require.NoError(t, err)
	assert.Equal(t, KindQuantity, k)
	assert.Equal(t, "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_Measurement", k.ObservationType())

	_, err = ParseKind("complex")
	assert.Error(t, err)
}

func TestEveryStorableKindHasAConstructor(t *testing.T) {
	for _, k := range []Kind{KindBoolean, KindCount, KindCategory, KindGeometry, KindQuantity, KindText, KindBlob} {
		parsed, err := ParseKind(string(k))
		require.NoError(t, err, k)
		_, err = NewValue(parsed, RawValue{})
		assert.ErrorContains(t, err, "is null", k)
	}

	_, err := ParseKind("array")
	assert.Error(t, err)
	assert.NotEmpty(t, KindArray.ObservationType())
}

func TestObservationCloneAndAddValue(t *testing.T) {
	tmpl := &Observation{Procedure: "p", Offerings: []string{"o1"}}
	c := tmpl.Clone()
	c.Offerings[0] = "changed"
	assert.Equal(t, "o1", tmpl.Offerings[0])

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	rt := t2.Add(time.Minute)
	c.AddValue(TimeValuePair{Time: Instant(t2), ResultTime: &rt})
	c.AddValue(TimeValuePair{Time: Instant(t1)})
	assert.Equal(t, Period(t1, t2), c.PhenomenonTime)
	assert.Equal(t, rt, c.ResultTime)
	assert.Len(t, c.Values, 2)
	assert.Empty(t, tmpl.Values)
}
