// Package store defines the session-scoped storage contract of the
// GetObservation read path. The PostgreSQL implementation lives in package db,
// an in-memory one in store/memstore.
package store

import (
	"context"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
)

// Provider hands out storage sessions.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is one scoped storage connection. Release returns it to its
// provider and must be called exactly once.
type Session interface {
	Catalog
	ValueSource
	Release()
}

// ShapeFilter restricts features by their shape.
type ShapeFilter struct {
	Operator model.SpatialOperator
	Geometry geom.Geometry
}

// Catalog answers metadata lookups.
type Catalog interface {
	// Features returns the features with the given identifiers, or all
	// features when ids is empty, restricted by shape when it is set.
	Features(ctx context.Context, ids []string, shape *ShapeFilter) ([]model.Feature, error)
	// PropertyInstances returns the instances measuring the given observed
	// properties, or all instances when none are given.
	PropertyInstances(ctx context.Context, observedProperties []string) ([]model.PropertyInstance, error)
	Procedures(ctx context.Context) ([]model.Procedure, error)
}

// ValueSource executes value plans.
type ValueSource interface {
	query.ExtremaSource

	// Fetch returns the rows of plan in ascending phenomenon time order,
	// skipping offset rows. A negative limit fetches everything.
	Fetch(ctx context.Context, plan *query.Plan, offset, limit int) ([]model.ValueRow, error)
	// Scroll opens a forward-only cursor over the rows of plan.
	Scroll(ctx context.Context, plan *query.Plan) (Cursor, error)
	TimeExtrema(ctx context.Context, plan *query.Plan) (model.TimeExtrema, error)
	Unit(ctx context.Context, fk model.ValueFK) (string, error)
	Count(ctx context.Context, plan *query.Plan) (int64, error)
}

// Cursor iterates over value rows. ok is false once the rows are exhausted.
type Cursor interface {
	Next(ctx context.Context) (row model.ValueRow, ok bool, err error)
	Close() error
}
