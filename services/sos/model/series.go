// Package model holds the types shared along the GetObservation read path:
// catalog entries, series, stored value rows, observation values, observation
// documents and the request/response envelopes.
package model

import (
	"time"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
)

// ValueClass selects the value table a series reads from.
type ValueClass int

const (
	RawValues ValueClass = iota
	CalculatedValues
)

func (c ValueClass) String() string {
	if c == CalculatedValues {
		return "calculated"
	}
	return "raw"
}

// ValueFK ties a series to its rows in the value store.
type ValueFK struct {
	Class    ValueClass
	Instance int64
}

// Feature is a feature of interest.
type Feature struct {
	Identifier string
	Name       string
	Geometry   *geom.Geometry
}

// Procedure is a sensor with the validity period of its current description.
type Procedure struct {
	Identifier string
	Name       string
	ValidFrom  time.Time
	ValidTo    *time.Time
}

// PropertyInstance is one observed property measured by one sensor at one
// feature. Instances are the unit the value store is keyed by.
type PropertyInstance struct {
	ID               int64
	Procedure        string
	ObservedProperty string
	Feature          string
	Offerings        []string
	Calculated       bool
	Kind             Kind
	Unit             string
}

// FK returns the value foreign key of the instance.
func (p PropertyInstance) FK() ValueFK {
	class := RawValues
	if p.Calculated {
		class = CalculatedValues
	}
	return ValueFK{Class: class, Instance: p.ID}
}

// Series is a fixed procedure × observed property × feature combination.
// Series are built per request and passed by value; nothing mutates them.
type Series struct {
	Procedure         string
	ObservedProperty  string
	FeatureOfInterest string
	Offerings         []string
	Kind              Kind
	ValueFK           ValueFK
}

// ValueRow is one stored observation value.
type ValueRow struct {
	ID                  int64
	Instance            int64
	PhenomenonTimeStart time.Time
	PhenomenonTimeEnd   time.Time
	ResultTime          time.Time
	ValidTimeStart      *time.Time
	ValidTimeEnd        *time.Time
	SamplingGeometry    *geom.Geometry
	Value               ObservationValue
}

// PhenomenonTime returns the phenomenon time of the row.
func (r ValueRow) PhenomenonTime() Time {
	return Period(r.PhenomenonTimeStart, r.PhenomenonTimeEnd)
}
