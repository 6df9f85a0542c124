package model

import (
	"strings"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
)

// TemporalOperator names a temporal comparison (FES 2.0 spelling).
type TemporalOperator string

const (
	Before       TemporalOperator = "Before"
	After        TemporalOperator = "After"
	Begins       TemporalOperator = "Begins"
	Ends         TemporalOperator = "Ends"
	BegunBy      TemporalOperator = "BegunBy"
	EndedBy      TemporalOperator = "EndedBy"
	During       TemporalOperator = "During"
	Contains     TemporalOperator = "TContains"
	Equals       TemporalOperator = "TEquals"
	Overlaps     TemporalOperator = "TOverlaps"
	OverlappedBy TemporalOperator = "OverlappedBy"
	Meets        TemporalOperator = "Meets"
	MetBy        TemporalOperator = "MetBy"
)

var operatorAliases = map[string]TemporalOperator{
	"before":        Before,
	"after":         After,
	"begins":        Begins,
	"ends":          Ends,
	"begunby":       BegunBy,
	"endedby":       EndedBy,
	"during":        During,
	"tcontains":     Contains,
	"contains":      Contains,
	"tequals":       Equals,
	"equals":        Equals,
	"toverlaps":     Overlaps,
	"overlaps":      Overlaps,
	"overlappedby":  OverlappedBy,
	"toverlappedby": OverlappedBy,
	"meets":         Meets,
	"tmeets":        Meets,
	"metby":         MetBy,
	"tmetby":        MetBy,
}

// ParseTemporalOperator maps the FES 1.1 ("TM_Before"), FES 2.0 ("Before")
// and lower-case spellings onto the canonical operator. Unknown names are
// returned unchanged so validation can report them.
func ParseTemporalOperator(s string) TemporalOperator {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "tm_")
	if op, ok := operatorAliases[key]; ok {
		return op
	}
	return TemporalOperator(strings.TrimSpace(s))
}

// TemporalFilter is one value-reference-tagged time predicate.
type TemporalFilter struct {
	Operator       TemporalOperator
	ValueReference string
	Time           Time
}

// SpatialOperator names a spatial predicate.
type SpatialOperator string

const (
	BBOX            SpatialOperator = "BBOX"
	Intersects      SpatialOperator = "Intersects"
	Within          SpatialOperator = "Within"
	SpatialContains SpatialOperator = "Contains"
)

// ParseSpatialOperator maps case variants onto the canonical operator.
// Unknown names are returned unchanged.
func ParseSpatialOperator(s string) SpatialOperator {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bbox":
		return BBOX
	case "intersects":
		return Intersects
	case "within":
		return Within
	case "contains":
		return SpatialContains
	}
	return SpatialOperator(strings.TrimSpace(s))
}

// Value references of the sampling geometry (Spatial-Filtering-Profile) and
// of the feature shape.
const (
	SamplingGeometryReference  = "om:parameter/om:NamedValue/om:value"
	SamplingGeometryDefinition = "http://www.opengis.net/def/param-name/OGC-OM/2.0/samplingGeometry"
	FeatureShapeReference      = "om:featureOfInterest/*/sams:shape"
	FeatureShapeShortReference = "sams:shape"
)

// SpatialFilter is a spatial predicate against a geometry value reference.
type SpatialFilter struct {
	Operator       SpatialOperator
	ValueReference string
	Geometry       geom.Geometry
}

// IsSamplingGeometry reports whether the filter targets the per-observation
// sampling geometry rather than the feature shape.
func (f SpatialFilter) IsSamplingGeometry() bool {
	ref := strings.TrimSpace(f.ValueReference)
	return ref == SamplingGeometryReference || ref == SamplingGeometryDefinition
}

// IsFeatureShape reports whether the filter targets the feature shape.
func (f SpatialFilter) IsFeatureShape() bool {
	ref := strings.TrimSpace(f.ValueReference)
	return ref == FeatureShapeReference || ref == FeatureShapeShortReference
}

// Extensions are the boolean request extensions understood by the service.
type Extensions struct {
	MergeObservationsIntoDataArray bool
	ShowCount                      bool
	IncludeResultTimes             bool
}

// GetObservationRequest is a decoded GetObservation request.
type GetObservationRequest struct {
	Service            string
	Version            string
	Offerings          []string
	Procedures         []string
	ObservedProperties []string
	FeaturesOfInterest []string
	TemporalFilters    []TemporalFilter
	SpatialFilter      *SpatialFilter
	ResponseFormat     string
	Indeterminate      IndeterminateTime
	ResultFilter       string
	Extensions         Extensions
}

// GetObservationResponse carries one observation template per series, each
// with an attached, not yet drained, value stream.
type GetObservationResponse struct {
	Service        string
	Version        string
	ResponseFormat string
	Observations   []*Observation
	Count          *int64
}

// Close closes every attached stream and returns the first error.
func (r *GetObservationResponse) Close() error {
	var first error
	for _, o := range r.Observations {
		if o.Stream == nil {
			continue
		}
		if err := o.Stream.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
