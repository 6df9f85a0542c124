package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-sos/services/sos/filter"
	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func plan(class model.ValueClass, instances ...int64) *query.Plan {
	p := &query.Plan{Class: class}
	for _, id := range instances {
		p.FKs = append(p.FKs, model.ValueFK{Class: class, Instance: id})
	}
	return p
}

func TestFetchSQLBase(t *testing.T) {
	sql, args, err := fetchSQL(plan(model.RawValues, 1, 2), 4326, 0, -1)
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM sos.raw_values v")
	assert.Contains(t, sql, "v.instance_id = ANY($1)")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY v.phenomenon_time_start, v.id"))
	assert.NotContains(t, sql, "LIMIT")
	assert.Equal(t, []any{[]int64{1, 2}}, args)

	sql, args, err = fetchSQL(plan(model.CalculatedValues, 3), 4326, 20, 11)
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM sos.calculated_values v")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $2 OFFSET $3"))
	assert.Equal(t, []any{[]int64{3}, 11, 20}, args)
}

func TestFetchSQLDisjunctions(t *testing.T) {
	p := plan(model.RawValues, 1)
	var err error
	p.Temporal, err = filter.BuildDisjunctions([]model.TemporalFilter{
		{Operator: model.During, ValueReference: "om:phenomenonTime", Time: model.Period(t0, t1)},
		{Operator: model.Equals, ValueReference: "om:phenomenonTime", Time: model.Instant(t1)},
		{Operator: model.After, ValueReference: "om:resultTime", Time: model.Instant(t0)},
	})
	require.NoError(t, err)

	sql, args, err := fetchSQL(p, 4326, 0, -1)
	require.NoError(t, err)
	assert.Contains(t, sql,
		"((v.phenomenon_time_start >= $2 AND v.phenomenon_time_end <= $3) OR (v.phenomenon_time_start = $4 AND v.phenomenon_time_end = $5))")
	assert.Contains(t, sql, "AND (v.result_time > $6)")
	assert.Equal(t, []any{[]int64{1}, t0, t1, t1, t1, t0}, args)
}

func TestFetchSQLProcedureValidity(t *testing.T) {
	p := plan(model.RawValues, 1)
	var err error
	p.Temporal, err = filter.BuildDisjunctions([]model.TemporalFilter{
		{Operator: model.During, ValueReference: "sml:validDescribeSensorTime", Time: model.Period(t0, t1)},
	})
	require.NoError(t, err)

	sql, _, err := fetchSQL(p, 4326, 0, -1)
	require.NoError(t, err)
	assert.Contains(t, sql, "s.valid_from >= $2")
	assert.Contains(t, sql, "COALESCE(s.valid_to, 'infinity'::timestamptz) <= $3")
	assert.Contains(t, sql, "JOIN sos.sensors s ON s.id = i.sensor_id")
}

func TestFetchSQLRestrictions(t *testing.T) {
	p := plan(model.RawValues, 1)
	p.Offerings = []string{"rain"}
	p.Extremum = &query.TimeEquality{Property: "phenomenonTimeEnd", At: t1}
	p.Spatial = &query.SpatialRestriction{Operator: model.Within, Geometry: geom.NewEnvelope(0, 0, 1, 1, 3857)}

	sql, args, err := fetchSQL(p, 4326, 0, 100)
	require.NoError(t, err)
	assert.Contains(t, sql, "o.offering = ANY($2)")
	assert.Contains(t, sql, "v.phenomenon_time_end = $3")
	assert.Contains(t, sql, "ST_Within(v.sampling_geometry, ST_Transform(ST_GeomFromText($4, $5), $6))")
	assert.Equal(t, []any{[]int64{1}, []string{"rain"}, t1, "POLYGON((0 0,1 0,1 1,0 1,0 0))", 3857, 4326, 100}, args)

	p.Spatial.Geometry.SRID = 4326
	sql, _, err = fetchSQL(p, 4326, 0, -1)
	require.NoError(t, err)
	assert.NotContains(t, sql, "ST_Transform")
}

func TestCriterionOperators(t *testing.T) {
	for _, op := range filter.Operators() {
		c, err := filter.Filter(model.TemporalFilter{Operator: op, ValueReference: "om:phenomenonTime", Time: model.Period(t0, t1)})
		require.NoError(t, err)
		b := &sqlBuilder{}
		clause, err := b.criterion(c)
		require.NoError(t, err, op)
		assert.NotEmpty(t, clause, op)
		assert.NotEmpty(t, b.args, op)
	}
}

func TestAggregateSQL(t *testing.T) {
	sql, _, err := extremumSQL(plan(model.RawValues, 1), 4326, query.MaxPhenomenonTimeEnd)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "SELECT MAX(v.phenomenon_time_end) FROM sos.raw_values v"))

	sql, _, err = extremumSQL(plan(model.RawValues, 1), 4326, query.MinPhenomenonTimeStart)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "SELECT MIN(v.phenomenon_time_start)"))

	sql, _, err = countSQL(plan(model.CalculatedValues, 1), 4326)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "SELECT COUNT(*) FROM sos.calculated_values v"))
}

func TestFeaturesSQL(t *testing.T) {
	sql, args, err := featuresSQL(nil, nil, 4326)
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.Empty(t, args)

	sql, args, err = featuresSQL([]string{"station_1"}, &store.ShapeFilter{
		Operator: model.BBOX,
		Geometry: geom.NewEnvelope(0, 0, 1, 1, 4326),
	}, 4326)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE f.id = ANY($1) AND ST_Intersects(f.shape, ST_GeomFromText($2, $3))")
	assert.Len(t, args, 3)
}

func TestPropertyInstancesSQL(t *testing.T) {
	sql, args := propertyInstancesSQL(nil)
	assert.NotContains(t, sql, "i.observed_property = ANY")
	assert.Empty(t, args)

	sql, args = propertyInstancesSQL([]string{"precipitation"})
	assert.Contains(t, sql, "WHERE i.observed_property = ANY($1)")
	assert.Equal(t, []any{[]string{"precipitation"}}, args)
}

func TestGeometriesAreSelectedWhole(t *testing.T) {
	sql, _, err := featuresSQL(nil, nil, 4326)
	require.NoError(t, err)
	assert.Contains(t, sql, "ST_AsEWKB(f.shape)")
	assert.NotContains(t, sql, "ST_XMin")

	sql, _, err = fetchSQL(plan(model.RawValues, 1), 4326, 0, 10)
	require.NoError(t, err)
	assert.Contains(t, sql, "ST_AsEWKB(v.sampling_geometry)")
	assert.NotContains(t, sql, "ST_XMin")
}

func TestReleasedSessionRejectsQueries(t *testing.T) {
	s := &session{}
	ctx := context.Background()

	_, err := s.Features(ctx, nil, nil)
	assert.ErrorIs(t, err, errReleased)
	_, err = s.PropertyInstances(ctx, nil)
	assert.ErrorIs(t, err, errReleased)
	_, err = s.Procedures(ctx)
	assert.ErrorIs(t, err, errReleased)
	_, err = s.Fetch(ctx, plan(model.RawValues, 1), 0, 10)
	assert.ErrorIs(t, err, errReleased)
}
