package model

import (
	"context"
	"time"
)

// TimeValuePair is one value of a series at its phenomenon time.
type TimeValuePair struct {
	Time       Time
	ResultTime *time.Time
	Value      ObservationValue
}

// ValueStream is a lazily evaluated, forward-only sequence of the values of
// one observation. Consumers pull until HasNextValue returns false and must
// call Close when they stop early.
type ValueStream interface {
	HasNextValue(ctx context.Context) (bool, error)
	NextValue() (TimeValuePair, error)
	NextSingleObservation() (*Observation, error)
	Close() error
}

// Observation is an O&M observation. A template carries metadata and an
// attached Stream; merged observations carry Values.
type Observation struct {
	Identifier        string
	Procedure         string
	ObservedProperty  string
	FeatureOfInterest string
	Offerings         []string
	ObservationType   string
	UnitOfMeasure     string
	PhenomenonTime    Time
	ResultTime        time.Time
	Values            []TimeValuePair
	Stream            ValueStream
}

// Clone copies the metadata of o. Values and the stream are not copied.
func (o *Observation) Clone() *Observation {
	c := *o
	c.Offerings = append([]string(nil), o.Offerings...)
	c.Values = nil
	c.Stream = nil
	return &c
}

// AddValue appends v and widens the phenomenon and result time to cover it.
func (o *Observation) AddValue(v TimeValuePair) {
	if len(o.Values) == 0 {
		o.PhenomenonTime = v.Time
	} else {
		if v.Time.Begin.Before(o.PhenomenonTime.Begin) {
			o.PhenomenonTime.Begin = v.Time.Begin
		}
		if v.Time.End.After(o.PhenomenonTime.End) {
			o.PhenomenonTime.End = v.Time.End
		}
	}
	if v.ResultTime != nil && v.ResultTime.After(o.ResultTime) {
		o.ResultTime = *v.ResultTime
	}
	o.Values = append(o.Values, v)
}
