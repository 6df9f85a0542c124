package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/filter"
	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

// Params are the restrictions shared by every series of one request.
type Params struct {
	Offerings     []string
	Temporal      filter.Disjunctions
	Indeterminate model.IndeterminateTime
	SpatialFilter *model.SpatialFilter
}

// Options configure a Constructor.
type Options struct {
	// MaxSeries bounds the number of series in one response; 0 disables it.
	MaxSeries int
	AxisOrder geom.AxisOrder
}

// Constructor builds query plans.
type Constructor struct {
	opts   Options
	logger *zap.Logger
}

func NewConstructor(opts Options, logger *zap.Logger) *Constructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Constructor{opts: opts, logger: logger.Named("query")}
}

// CheckSeriesCount fails when n series exceed the configured maximum.
func (c *Constructor) CheckSeriesCount(n int) error {
	if c.opts.MaxSeries > 0 && n > c.opts.MaxSeries {
		return ows.SizeLimit(fmt.Sprintf(
			"the request matches %d time series but at most %d are allowed; "+
				"please restrict the request by procedure, observedProperty, featureOfInterest or offering",
			n, c.opts.MaxSeries))
	}
	return nil
}

// Build creates the plan for one series. For first/latest requests the
// extremum is queried from src first and the plan is restricted to it, so
// every value sharing the extreme timestamp is returned.
func (c *Constructor) Build(ctx context.Context, src ExtremaSource, s model.Series, p Params) (*Plan, error) {
	spatial, err := c.spatialRestriction(p.SpatialFilter)
	if err != nil {
		return nil, err
	}
	series := s
	plan := &Plan{
		Series:    &series,
		Class:     s.ValueFK.Class,
		FKs:       []model.ValueFK{s.ValueFK},
		Offerings: p.Offerings,
		Temporal:  p.Temporal,
		Spatial:   spatial,
	}
	if p.Indeterminate == model.NotIndeterminate {
		return plan, nil
	}

	e := MinPhenomenonTimeStart
	if p.Indeterminate == model.Latest {
		e = MaxPhenomenonTimeEnd
	}
	at, ok, err := src.Extremum(ctx, plan.WithoutTime(), e)
	if err != nil {
		if _, coded := ows.As(err); coded {
			return nil, err
		}
		return nil, ows.Storage(err, "computing the "+string(p.Indeterminate)+" observation time")
	}
	if !ok {
		c.logger.Debug("series has no values for indeterminate time",
			zap.String("procedure", s.Procedure),
			zap.String("observedProperty", s.ObservedProperty),
			zap.String("indeterminate", string(p.Indeterminate)))
		plan.Empty = true
		return plan, nil
	}
	plan.Extremum = &TimeEquality{Property: e.Property(), At: at}
	return plan, nil
}

// BuildBulk creates plans spanning many series, one per value class in
// raw-then-calculated order. It serves aggregate queries such as counts.
func (c *Constructor) BuildBulk(series []model.Series, p Params) ([]*Plan, error) {
	if p.Indeterminate != model.NotIndeterminate {
		return nil, ows.NotYetSupported("bulk queries with first/latest time")
	}
	spatial, err := c.spatialRestriction(p.SpatialFilter)
	if err != nil {
		return nil, err
	}
	byClass := map[model.ValueClass]*Plan{}
	var plans []*Plan
	for _, class := range []model.ValueClass{model.RawValues, model.CalculatedValues} {
		for _, s := range series {
			if s.ValueFK.Class != class {
				continue
			}
			plan, ok := byClass[class]
			if !ok {
				plan = &Plan{Class: class, Offerings: p.Offerings, Temporal: p.Temporal, Spatial: spatial}
				byClass[class] = plan
				plans = append(plans, plan)
			}
			plan.FKs = append(plan.FKs, s.ValueFK)
		}
	}
	return plans, nil
}

func (c *Constructor) spatialRestriction(sf *model.SpatialFilter) (*SpatialRestriction, error) {
	if sf == nil || !sf.IsSamplingGeometry() {
		return nil, nil
	}
	switch sf.Operator {
	case model.BBOX, model.Intersects, model.Within, model.SpatialContains:
	default:
		return nil, ows.NotYetSupported(fmt.Sprintf("spatial operator %s", sf.Operator))
	}
	return &SpatialRestriction{
		Operator: sf.Operator,
		Geometry: c.opts.AxisOrder.Normalize(sf.Geometry),
	}, nil
}
