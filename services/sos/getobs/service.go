// Package getobs assembles GetObservation responses: it validates and
// translates the request, resolves the series, builds one query plan per
// series and attaches an unconsumed value stream to every observation
// template.
package getobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/filter"
	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/identifier"
	"github.com/02loveslollipop/shizuku-sos/services/sos/metric"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/series"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
	"github.com/02loveslollipop/shizuku-sos/services/sos/streaming"
)

const (
	service  = "SOS"
	version1 = "1.0.0"
	version2 = "2.0.0"
)

// Options configure a Service.
type Options struct {
	Prefixes identifier.Prefixes
	// MaxValues bounds the values of a whole response; it is split evenly
	// between the series. 0 disables the bound.
	MaxValues int
	MaxSeries int
	AxisOrder geom.AxisOrder
	Streaming streaming.Options
}

// Service answers GetObservation requests.
type Service struct {
	provider    store.Provider
	translator  *identifier.Translator
	resolver    *series.Resolver
	constructor *query.Constructor
	streams     *streaming.Factory
	opts        Options
	logger      *zap.Logger
	metrics     *metric.Metrics
}

func NewService(provider store.Provider, opts Options, logger *zap.Logger, metrics *metric.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:    provider,
		translator:  identifier.NewTranslator(opts.Prefixes),
		resolver:    series.NewResolver(logger),
		constructor: query.NewConstructor(query.Options{MaxSeries: opts.MaxSeries, AxisOrder: opts.AxisOrder}, logger),
		streams:     streaming.NewFactory(provider, opts.Streaming, logger, metrics),
		opts:        opts,
		logger:      logger.Named("getobs"),
		metrics:     metrics,
	}
}

// Translator returns the identifier translator of the service.
func (s *Service) Translator() *identifier.Translator {
	return s.translator
}

// internal request identifiers and filters
type resolved struct {
	procedures         []string
	observedProperties []string
	features           []string
	offerings          []string
	shape              *store.ShapeFilter
	params             query.Params
}

// GetObservation builds the response of req. Series are processed in order;
// the first failure aborts the request and closes the streams created so
// far.
func (s *Service) GetObservation(ctx context.Context, req *model.GetObservationRequest) (*model.GetObservationResponse, error) {
	start := time.Now()
	if err := validate(req); err != nil {
		return nil, err
	}
	r, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	resp := &model.GetObservationResponse{
		Service:        service,
		Version:        req.Version,
		ResponseFormat: req.ResponseFormat,
	}

	sess, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, ows.Storage(err, "opening a session")
	}
	defer sess.Release()

	res, err := s.resolver.GetSeries(ctx, sess, series.Request{
		Procedures:         r.procedures,
		ObservedProperties: r.observedProperties,
		Features:           r.features,
		Shape:              r.shape,
	})
	if err != nil {
		return nil, ows.Storage(err, "resolving series")
	}
	if !res.Matched {
		s.logger.Debug("request matches no feature")
		if req.Extensions.ShowCount {
			var zero int64
			resp.Count = &zero
		}
		return resp, nil
	}

	matched := withOfferings(res.Series, r.offerings)
	if err := s.constructor.CheckSeriesCount(len(matched)); err != nil {
		return nil, err
	}

	budget := 0
	if s.opts.MaxValues > 0 && len(matched) > 0 {
		budget = s.opts.MaxValues / len(matched)
		if budget == 0 {
			budget = 1
		}
	}

	streams := s.streams
	if req.Extensions.IncludeResultTimes {
		streams = streams.WithResultTimes()
	}

	plans := make([]*query.Plan, 0, len(matched))
	for _, ser := range matched {
		plan, err := s.constructor.Build(ctx, sess, ser, r.params)
		if err != nil {
			resp.Close()
			return nil, err
		}
		plans = append(plans, plan)
		template := s.template(ser, r.offerings)
		template.Stream = streams.New(plan, template, budget)
		resp.Observations = append(resp.Observations, template)
	}

	if req.Extensions.ShowCount {
		n, err := s.count(ctx, sess, matched, plans, r.params)
		if err != nil {
			resp.Close()
			return nil, err
		}
		resp.Count = &n
	}

	s.metrics.Request(len(matched), time.Since(start))
	s.logger.Info("getobservation assembled",
		zap.Int("series", len(matched)),
		zap.Int("budget", budget),
		zap.String("indeterminate", string(r.params.Indeterminate)),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

func validate(req *model.GetObservationRequest) error {
	switch {
	case req == nil:
		return ows.MissingParameter("request")
	case req.Service == "":
		return ows.MissingParameter("service")
	case !strings.EqualFold(req.Service, service):
		return ows.InvalidParameter("service", fmt.Sprintf("service %q is not supported", req.Service))
	case req.Version == "":
		return ows.MissingParameter("version")
	case req.Version != version1 && req.Version != version2:
		return ows.InvalidParameter("version", fmt.Sprintf("version %q is not supported", req.Version))
	case req.Version == version1 && len(req.ObservedProperties) == 0:
		return ows.MissingParameter("observedProperty")
	case req.ResultFilter != "":
		return ows.NotYetSupported("result filtering")
	}
	return nil
}

// resolve translates identifiers and builds the filters of req.
func (s *Service) resolve(req *model.GetObservationRequest) (*resolved, error) {
	var (
		r   resolved
		err error
	)
	if r.procedures, err = s.translator.StripAll(identifier.Procedure, req.Procedures); err != nil {
		return nil, err
	}
	if r.observedProperties, err = s.translator.StripAll(identifier.ObservedProperty, req.ObservedProperties); err != nil {
		return nil, err
	}
	if r.features, err = s.translator.StripAll(identifier.Feature, req.FeaturesOfInterest); err != nil {
		return nil, err
	}
	if r.offerings, err = s.translator.StripAll(identifier.Offering, req.Offerings); err != nil {
		return nil, err
	}

	rest, ind, err := filter.SplitIndeterminate(req.TemporalFilters, req.Indeterminate)
	if err != nil {
		return nil, err
	}
	temporal, err := filter.BuildDisjunctions(rest)
	if err != nil {
		return nil, err
	}
	r.params = query.Params{Offerings: r.offerings, Temporal: temporal, Indeterminate: ind}

	if sf := req.SpatialFilter; sf != nil {
		switch {
		case sf.IsFeatureShape():
			switch sf.Operator {
			case model.BBOX, model.Intersects, model.Within, model.SpatialContains:
			default:
				return nil, ows.NotYetSupported(fmt.Sprintf("spatial operator %s", sf.Operator))
			}
			r.shape = &store.ShapeFilter{Operator: sf.Operator, Geometry: s.opts.AxisOrder.Normalize(sf.Geometry)}
		case sf.IsSamplingGeometry():
			r.params.SpatialFilter = sf
		default:
			return nil, ows.UnsupportedValueReference(sf.ValueReference)
		}
	}
	return &r, nil
}

func withOfferings(all []model.Series, offerings []string) []model.Series {
	if len(offerings) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(offerings))
	for _, o := range offerings {
		wanted[o] = true
	}
	out := make([]model.Series, 0, len(all))
	for _, s := range all {
		for _, o := range s.Offerings {
			if wanted[o] {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// template builds the metadata of the observation of one series with
// external identifiers.
func (s *Service) template(ser model.Series, requested []string) *model.Observation {
	offerings := ser.Offerings
	if len(requested) > 0 {
		offerings = intersect(ser.Offerings, requested)
	}
	return &model.Observation{
		Identifier:        fmt.Sprintf("o_%s_%d", ser.ValueFK.Class, ser.ValueFK.Instance),
		Procedure:         s.translator.Apply(identifier.Procedure, ser.Procedure),
		ObservedProperty:  s.translator.Apply(identifier.ObservedProperty, ser.ObservedProperty),
		FeatureOfInterest: s.translator.Apply(identifier.Feature, ser.FeatureOfInterest),
		Offerings:         s.translator.ApplyAll(identifier.Offering, offerings),
		ObservationType:   ser.Kind.ObservationType(),
	}
}

func intersect(have, want []string) []string {
	var out []string
	for _, h := range have {
		for _, w := range want {
			if h == w {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// count totals the values of all series with one query per value class.
// First/latest plans are restricted per series and are counted one by one.
func (s *Service) count(ctx context.Context, values store.ValueSource, matched []model.Series, perSeries []*query.Plan, params query.Params) (int64, error) {
	if len(matched) == 0 {
		return 0, nil
	}
	plans := perSeries
	if params.Indeterminate == model.NotIndeterminate {
		var err error
		if plans, err = s.constructor.BuildBulk(matched, params); err != nil {
			return 0, err
		}
	}
	var total int64
	for _, plan := range plans {
		if plan.Empty {
			continue
		}
		n, err := values.Count(ctx, plan)
		if err != nil {
			return 0, ows.Storage(err, "counting observations")
		}
		total += n
	}
	return total, nil
}
