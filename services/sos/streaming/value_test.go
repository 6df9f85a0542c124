package streaming

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store/memstore"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func fixture(t *testing.T, n int) *memstore.Store {
	t.Helper()
	s := memstore.New()
	s.AddInstance(model.PropertyInstance{ID: 1, Procedure: "pluvio_1", ObservedProperty: "precipitation", Feature: "station_1", Kind: model.KindQuantity, Unit: "mm"})
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.AddValues(1, model.ValueRow{
			PhenomenonTimeStart: at,
			PhenomenonTimeEnd:   at,
			ResultTime:          at.Add(30 * time.Second),
			Value:               model.ObservationValue{Kind: model.KindQuantity, Quantity: float64(i) + 0.5},
		}))
	}
	return s
}

func seriesPlan() *query.Plan {
	fk := model.ValueFK{Class: model.RawValues, Instance: 1}
	return &query.Plan{
		Series: &model.Series{Procedure: "pluvio_1", ObservedProperty: "precipitation", FeatureOfInterest: "station_1", ValueFK: fk},
		Class:  model.RawValues,
		FKs:    []model.ValueFK{fk},
	}
}

func drain(t *testing.T, v *Value) [][]model.ValueRow {
	t.Helper()
	var batches [][]model.ValueRow
	for {
		ok, err := v.HasNextValue(context.Background())
		require.NoError(t, err)
		if !ok {
			return batches
		}
		rows, err := v.NextEntities()
		require.NoError(t, err)
		batches = append(batches, rows)
	}
}

func TestChunkedFetchCount(t *testing.T) {
	tests := []struct {
		rows, chunk int
		wantFetches int
		wantLast    int
	}{
		{10, 5, 2, 5},
		{11, 5, 3, 1},
		{3, 5, 1, 3},
		{5, 5, 1, 5},
		{4, 1, 4, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("R=%d,C=%d", tt.rows, tt.chunk), func(t *testing.T) {
			s := fixture(t, tt.rows)
			v := NewFactory(s, Options{Strategy: Chunk, ChunkSize: tt.chunk}, nil, nil).New(seriesPlan(), nil, 0)

			batches := drain(t, v)
			require.Len(t, batches, tt.wantFetches)
			assert.Len(t, batches[len(batches)-1], tt.wantLast)
			for _, b := range batches {
				assert.LessOrEqual(t, len(b), tt.chunk)
			}

			var prev time.Time
			total := 0
			for _, b := range batches {
				for _, r := range b {
					assert.False(t, r.PhenomenonTimeStart.Before(prev), "ascending order")
					prev = r.PhenomenonTimeStart
					total++
				}
			}
			assert.Equal(t, tt.rows, total)

			st := s.Stats()
			assert.Equal(t, tt.wantFetches, st.Fetches)
			assert.Equal(t, 1, st.Released)
			assert.Zero(t, st.DoubleReleases)
			assert.Equal(t, Exhausted, v.State())
			require.NoError(t, v.Close())
			assert.Zero(t, s.Stats().DoubleReleases)
		})
	}
}

func TestEmptySeriesIssuesNoValueQuery(t *testing.T) {
	s := fixture(t, 0)
	v := NewFactory(s, Options{ChunkSize: 5}, nil, nil).New(seriesPlan(), nil, 0)
	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Stats().Fetches)
	assert.Equal(t, 0, s.Outstanding())
}

func TestEmptyPlanAcquiresNothing(t *testing.T) {
	s := fixture(t, 3)
	plan := seriesPlan()
	plan.Empty = true
	v := NewFactory(s, Options{ChunkSize: 5}, nil, nil).New(plan, nil, 0)
	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Stats().Acquired)
	require.NoError(t, v.Close())
}

func TestUnchunkedSingleFetch(t *testing.T) {
	s := fixture(t, 7)
	v := NewFactory(s, Options{ChunkSize: 0}, nil, nil).New(seriesPlan(), nil, 0)
	batches := drain(t, v)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 7)
	assert.Equal(t, 1, s.Stats().Fetches)
	assert.Equal(t, 0, s.Outstanding())
}

func TestUnchunkedBudgetExceeded(t *testing.T) {
	s := fixture(t, 7)
	v := NewFactory(s, Options{ChunkSize: 0}, nil, nil).New(seriesPlan(), nil, 5)
	ok, err := v.HasNextValue(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ows.ErrResponseExceedsSizeLimit))
	assert.Equal(t, Failed, v.State())
	assert.Equal(t, 1, s.Stats().Released)
}

func TestChunkedBudgetAcrossBatches(t *testing.T) {
	s := fixture(t, 5)
	v := NewFactory(s, Options{ChunkSize: 2}, nil, nil).New(seriesPlan(), nil, 3)

	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = v.NextEntities()
	require.NoError(t, err)

	_, err = v.HasNextValue(context.Background())
	assert.True(t, errors.Is(err, ows.ErrResponseExceedsSizeLimit))
	assert.Equal(t, 0, s.Outstanding())
}

func TestScrollableBatches(t *testing.T) {
	s := fixture(t, 7)
	v := NewFactory(s, Options{Strategy: Scroll, ChunkSize: 3}, nil, nil).New(seriesPlan(), nil, 0)
	batches := drain(t, v)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)

	st := s.Stats()
	assert.Equal(t, 1, st.Scrolls)
	assert.Zero(t, st.Fetches)
	assert.Equal(t, 1, st.Released)
}

func TestScrollableExactMultiple(t *testing.T) {
	s := fixture(t, 6)
	v := NewFactory(s, Options{Strategy: Scroll, ChunkSize: 3}, nil, nil).New(seriesPlan(), nil, 0)
	batches := drain(t, v)
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 3)
}

func TestScrollableUnchunkedStopsPastBudget(t *testing.T) {
	s := fixture(t, 1000)
	v := NewFactory(s, Options{Strategy: Scroll, ChunkSize: 0}, nil, nil).New(seriesPlan(), nil, 5)

	ok, err := v.HasNextValue(context.Background())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ows.ErrResponseExceedsSizeLimit))

	st := s.Stats()
	assert.Equal(t, 6, st.Scrolled)
	assert.Equal(t, 1, st.Released)
	assert.Equal(t, 0, s.Outstanding())
}

func TestScrollableUnchunkedWithinBudget(t *testing.T) {
	s := fixture(t, 4)
	v := NewFactory(s, Options{Strategy: Scroll, ChunkSize: 0}, nil, nil).New(seriesPlan(), nil, 5)
	batches := drain(t, v)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 4)
	assert.Equal(t, 4, s.Stats().Scrolled)
}

func TestFailureOnSecondFetchReleasesOnce(t *testing.T) {
	s := fixture(t, 6)
	boom := errors.New("connection reset by peer")
	s.FailFetchAt(2, boom)
	v := NewFactory(s, Options{ChunkSize: 2}, nil, nil).New(seriesPlan(), nil, 0)

	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = v.NextEntities()
	require.NoError(t, err)

	ok, err = v.HasNextValue(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ows.ErrStorage))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 500, ows.StatusOf(err))

	_, again := v.HasNextValue(context.Background())
	assert.Equal(t, err, again)
	require.NoError(t, v.Close())

	st := s.Stats()
	assert.Equal(t, 2, st.Fetches, "no fetch after the failure")
	assert.Equal(t, 1, st.Released)
	assert.Zero(t, st.DoubleReleases)
}

func TestCloseAbandonsStream(t *testing.T) {
	s := fixture(t, 6)
	v := NewFactory(s, Options{ChunkSize: 2}, nil, nil).New(seriesPlan(), nil, 0)
	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.Outstanding())

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 0, s.Outstanding())
	assert.Zero(t, s.Stats().DoubleReleases)

	ok, err = v.HasNextValue(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCancellationBetweenBatches(t *testing.T) {
	s := fixture(t, 6)
	v := NewFactory(s, Options{ChunkSize: 2}, nil, nil).New(seriesPlan(), nil, 0)
	ctx, cancel := context.WithCancel(context.Background())

	ok, err := v.HasNextValue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = v.NextEntities()
	require.NoError(t, err)

	cancel()
	_, err = v.HasNextValue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ows.ErrTimeout)
	assert.Equal(t, Failed, v.State())
	assert.Equal(t, 1, s.Stats().Fetches)
	assert.Equal(t, 0, s.Outstanding())
}

func TestNextEntitiesRequiresBufferedBatch(t *testing.T) {
	s := fixture(t, 1)
	v := NewFactory(s, Options{ChunkSize: 2}, nil, nil).New(seriesPlan(), nil, 0)
	_, err := v.NextEntities()
	assert.Error(t, err)
}

func TestNextSingleObservation(t *testing.T) {
	s := fixture(t, 3)
	template := &model.Observation{
		Procedure:         "urn:ogc:def:procedure:pluvio_1",
		ObservedProperty:  "urn:ogc:def:property:precipitation",
		FeatureOfInterest: "urn:ogc:def:feature:station_1",
		Offerings:         []string{"urn:ogc:def:offering:rain"},
		ObservationType:   model.KindQuantity.ObservationType(),
	}
	v := NewFactory(s, Options{ChunkSize: 10}, nil, nil).New(seriesPlan(), template, 0)

	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mm", template.UnitOfMeasure)
	assert.Equal(t, model.Period(base, base.Add(2*time.Minute)), template.PhenomenonTime)

	obs, err := v.NextSingleObservation()
	require.NoError(t, err)
	assert.NotSame(t, template, obs)
	assert.Equal(t, template.Procedure, obs.Procedure)
	require.Len(t, obs.Values, 3)
	assert.Equal(t, model.Instant(base), obs.Values[0].Time)
	assert.Equal(t, 2.5, obs.Values[2].Value.Quantity)
	assert.Equal(t, "mm", obs.Values[0].Value.Unit)
	assert.Nil(t, obs.Values[0].ResultTime)
	assert.Equal(t, model.Period(base, base.Add(2*time.Minute)), obs.PhenomenonTime)
	assert.Equal(t, base.Add(2*time.Minute+30*time.Second), obs.ResultTime)
	assert.Empty(t, template.Values)
}

func TestNextValueEncodesDataArray(t *testing.T) {
	s := fixture(t, 2)
	v := NewFactory(s, Options{
		ChunkSize:          10,
		Encoding:           model.TextEncoding{TokenSeparator: ";", TupleSeparator: "@@", DecimalSeparator: ","},
		IncludeResultTimes: true,
	}, nil, nil).New(seriesPlan(), nil, 0)

	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	pair, err := v.NextValue()
	require.NoError(t, err)
	assert.Equal(t, model.KindArray, pair.Value.Kind)
	require.NotNil(t, pair.Value.Array)
	assert.Equal(t, []string{"phenomenonTime", "resultTime", "value"}, pair.Value.Array.Fields)
	assert.Equal(t, 2, pair.Value.Array.Count)
	assert.Equal(t,
		"2024-03-01T10:00:00Z;2024-03-01T10:00:30Z;0,5@@2024-03-01T10:01:00Z;2024-03-01T10:01:30Z;1,5",
		pair.Value.Array.Values)
	assert.Equal(t, model.Period(base, base.Add(time.Minute)), pair.Time)
	require.NotNil(t, pair.ResultTime)
	assert.Equal(t, base.Add(time.Minute+30*time.Second), *pair.ResultTime)
}

func TestIsAllocationFailure(t *testing.T) {
	assert.True(t, isAllocationFailure(errors.New("runtime error: makeslice: len out of range")))
	assert.True(t, isAllocationFailure("out of memory"))
	assert.False(t, isAllocationFailure(errors.New("index out of range [3] with length 2")))
	assert.False(t, isAllocationFailure(42))
}

func TestAllocationPanicBecomesSizeLimit(t *testing.T) {
	s := fixture(t, 6)
	v := NewFactory(s, Options{ChunkSize: 2}, nil, nil).New(seriesPlan(), nil, 0)
	ok, err := v.HasNextValue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = v.NextEntities()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Outstanding())

	v.src = panicSource{}
	_, err = v.HasNextValue(context.Background())
	assert.True(t, errors.Is(err, ows.ErrResponseExceedsSizeLimit))
	assert.Equal(t, Failed, v.State())
	assert.Equal(t, 0, s.Outstanding())
}

type panicSource struct{}

func (panicSource) next(context.Context) ([]model.ValueRow, bool, error) {
	panic(errors.New("runtime error: makeslice: len out of range"))
}

func (panicSource) close() error { return nil }

func TestParseStrategy(t *testing.T) {
	st, err := ParseStrategy(" Scroll ")
	require.NoError(t, err)
	assert.Equal(t, Scroll, st)
	_, err = ParseStrategy("cursor")
	assert.Error(t, err)
}
