// Package query builds the not-yet-executed value queries of the
// GetObservation read path. A Plan says which rows of the value store belong
// to a response; stores translate it into SQL or evaluate it in memory.
package query

import (
	"context"
	"time"

	"github.com/02loveslollipop/shizuku-sos/services/sos/filter"
	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
)

// Extremum is a MIN/MAX aggregate over a time field.
type Extremum int

const (
	MinPhenomenonTimeStart Extremum = iota
	MaxPhenomenonTimeEnd
)

// Property returns the time property the aggregate is computed over.
func (e Extremum) Property() string {
	if e == MaxPhenomenonTimeEnd {
		return "phenomenonTimeEnd"
	}
	return "phenomenonTimeStart"
}

// TimeEquality restricts a time property to one instant.
type TimeEquality struct {
	Property string
	At       time.Time
}

// SpatialRestriction restricts the sampling geometry of the values. The
// geometry is already in the axis order of the store.
type SpatialRestriction struct {
	Operator model.SpatialOperator
	Geometry geom.Geometry
}

// Plan selects value rows. Every FK in a plan has the same value class.
// Rows are always returned in ascending phenomenon time order.
type Plan struct {
	Series    *model.Series
	Class     model.ValueClass
	FKs       []model.ValueFK
	Offerings []string
	Temporal  filter.Disjunctions
	Extremum  *TimeEquality
	Spatial   *SpatialRestriction

	// Empty is set when the plan is known to match nothing, so no value
	// query needs to be issued.
	Empty bool
}

// Instances returns the instance handles of the plan.
func (p *Plan) Instances() []int64 {
	ids := make([]int64, len(p.FKs))
	for i, fk := range p.FKs {
		ids[i] = fk.Instance
	}
	return ids
}

// WithoutTime returns a copy of p without its temporal restrictions.
func (p *Plan) WithoutTime() *Plan {
	c := *p
	c.Temporal = filter.Disjunctions{}
	c.Extremum = nil
	return &c
}

// ExtremaSource computes time aggregates over the rows a plan selects.
// ok is false when the plan selects no rows.
type ExtremaSource interface {
	Extremum(ctx context.Context, plan *Plan, e Extremum) (at time.Time, ok bool, err error)
}
