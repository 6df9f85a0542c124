// Package series resolves the procedure × observed property × feature
// combinations a GetObservation request addresses.
package series

import (
	"context"

	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

// Resolution is the outcome of a resolve call. When Matched is false the
// request addresses no feature at all and callers skip value retrieval; a
// match may still hold zero series.
type Resolution struct {
	Matched bool
	Series  []model.Series
}

// NoMatch is the resolution of a request whose feature restriction is empty.
var NoMatch = Resolution{}

// Request holds the internal identifiers of a resolve call. Empty lists do
// not restrict.
type Request struct {
	Procedures         []string
	ObservedProperties []string
	Features           []string
	Shape              *store.ShapeFilter
}

type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger.Named("series")}
}

// GetSeries resolves the feature universe, builds one series per matching
// property instance and then keeps the series of the requested procedures.
// Procedures are filtered after construction because values reach their
// sensor only through the property instance.
func (r *Resolver) GetSeries(ctx context.Context, catalog store.Catalog, req Request) (Resolution, error) {
	features, err := catalog.Features(ctx, req.Features, req.Shape)
	if err != nil {
		return Resolution{}, err
	}
	if len(features) == 0 {
		r.logger.Debug("no feature matches the request",
			zap.Strings("features", req.Features),
			zap.Bool("shape", req.Shape != nil))
		return NoMatch, nil
	}
	universe := make(map[string]bool, len(features))
	for _, f := range features {
		universe[f.Identifier] = true
	}

	instances, err := catalog.PropertyInstances(ctx, req.ObservedProperties)
	if err != nil {
		return Resolution{}, err
	}

	candidates := make([]model.Series, 0, len(instances))
	for _, inst := range instances {
		if !universe[inst.Feature] {
			continue
		}
		candidates = append(candidates, model.Series{
			Procedure:         inst.Procedure,
			ObservedProperty:  inst.ObservedProperty,
			FeatureOfInterest: inst.Feature,
			Offerings:         append([]string(nil), inst.Offerings...),
			Kind:              inst.Kind,
			ValueFK:           inst.FK(),
		})
	}

	res := Resolution{Matched: true, Series: filterProcedures(candidates, req.Procedures)}
	r.logger.Debug("resolved series",
		zap.Int("features", len(features)),
		zap.Int("instances", len(instances)),
		zap.Int("series", len(res.Series)))
	return res, nil
}

func filterProcedures(series []model.Series, procedures []string) []model.Series {
	if len(procedures) == 0 {
		return series
	}
	wanted := make(map[string]bool, len(procedures))
	for _, p := range procedures {
		wanted[p] = true
	}
	out := series[:0]
	for _, s := range series {
		if wanted[s.Procedure] {
			out = append(out, s)
		}
	}
	return out
}
