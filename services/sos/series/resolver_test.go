package series

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store/memstore"
)

func catalog(t *testing.T) store.Session {
	t.Helper()
	s := memstore.New()
	a := geom.NewPoint(-75.57, 6.25, 4326)
	b := geom.NewPoint(-75.60, 6.20, 4326)
	s.AddFeature(model.Feature{Identifier: "station_a", Geometry: &a})
	s.AddFeature(model.Feature{Identifier: "station_b", Geometry: &b})
	s.AddInstance(model.PropertyInstance{ID: 1, Procedure: "pluvio_1", ObservedProperty: "precipitation", Feature: "station_a", Offerings: []string{"rain"}, Kind: model.KindQuantity})
	s.AddInstance(model.PropertyInstance{ID: 2, Procedure: "pluvio_2", ObservedProperty: "precipitation", Feature: "station_b", Offerings: []string{"rain"}, Kind: model.KindQuantity})
	s.AddInstance(model.PropertyInstance{ID: 3, Procedure: "pluvio_1", ObservedProperty: "battery", Feature: "station_a", Calculated: true, Kind: model.KindCount})
	sess, err := s.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(sess.Release)
	return sess
}

func TestGetSeriesWithoutRestrictions(t *testing.T) {
	res, err := NewResolver(nil).GetSeries(context.Background(), catalog(t), Request{})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.Len(t, res.Series, 3)

	s := res.Series[2]
	assert.Equal(t, "pluvio_1", s.Procedure)
	assert.Equal(t, "battery", s.ObservedProperty)
	assert.Equal(t, "station_a", s.FeatureOfInterest)
	assert.Equal(t, model.ValueFK{Class: model.CalculatedValues, Instance: 3}, s.ValueFK)
}

func TestGetSeriesRestrictions(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []int64
	}{
		{"observed property", Request{ObservedProperties: []string{"precipitation"}}, []int64{1, 2}},
		{"feature", Request{Features: []string{"station_b"}}, []int64{2}},
		{"procedure after construction", Request{Procedures: []string{"pluvio_1"}}, []int64{1, 3}},
		{"all dimensions", Request{Procedures: []string{"pluvio_1"}, ObservedProperties: []string{"precipitation"}, Features: []string{"station_a"}}, []int64{1}},
		{"unknown procedure matches but is empty", Request{Procedures: []string{"pluvio_9"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResolver(nil).GetSeries(context.Background(), catalog(t), tt.req)
			require.NoError(t, err)
			assert.True(t, res.Matched)
			var got []int64
			for _, s := range res.Series {
				got = append(got, s.ValueFK.Instance)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetSeriesNoMatchingFeature(t *testing.T) {
	res, err := NewResolver(nil).GetSeries(context.Background(), catalog(t), Request{Features: []string{"station_z"}})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, res.Series)

	res, err = NewResolver(nil).GetSeries(context.Background(), catalog(t), Request{
		Shape: &store.ShapeFilter{Operator: model.BBOX, Geometry: geom.NewEnvelope(0, 0, 1, 1, 4326)},
	})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestGetSeriesByShape(t *testing.T) {
	res, err := NewResolver(nil).GetSeries(context.Background(), catalog(t), Request{
		Shape: &store.ShapeFilter{Operator: model.BBOX, Geometry: geom.NewEnvelope(-75.58, 6.24, -75.56, 6.26, 4326)},
	})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.Len(t, res.Series, 2)
	for _, s := range res.Series {
		assert.Equal(t, "station_a", s.FeatureOfInterest)
	}
}

type failingCatalog struct{ store.Catalog }

func (failingCatalog) Features(context.Context, []string, *store.ShapeFilter) ([]model.Feature, error) {
	return nil, errors.New("db down")
}

func TestGetSeriesPropagatesCatalogErrors(t *testing.T) {
	_, err := NewResolver(nil).GetSeries(context.Background(), failingCatalog{}, Request{})
	assert.EqualError(t, err, "db down")
}
