// Package memstore is an in-memory store.Provider. It evaluates query plans
// with the same semantics as the PostgreSQL store and records how sessions
// and fetches were used.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/02loveslollipop/shizuku-sos/services/sos/filter"
	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

// end of an open sensor validity period
var openEnd = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Stats counts session and query usage.
type Stats struct {
	Acquired       int
	Released       int
	DoubleReleases int
	Fetches        int
	Scrolls        int
	Scrolled       int
	Extrema        int
}

// Store keeps catalog entries and value rows in memory.
type Store struct {
	mu         sync.Mutex
	features   []model.Feature
	procedures []model.Procedure
	instances  []model.PropertyInstance
	rows       map[model.ValueClass][]model.ValueRow
	stats      Stats

	failFetchAt  int
	failFetchErr error
	acquireErr   error
}

func New() *Store {
	return &Store{rows: make(map[model.ValueClass][]model.ValueRow)}
}

func (s *Store) AddFeature(f model.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, f)
}

func (s *Store) AddProcedure(p model.Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedures = append(s.procedures, p)
}

func (s *Store) AddInstance(p model.PropertyInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, p)
}

// AddValues stores rows for instance. Rows without an ID are numbered.
func (s *Store) AddValues(instance int64, rows ...model.ValueRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instance(instance)
	if !ok {
		return fmt.Errorf("unknown instance %d", instance)
	}
	class := inst.FK().Class
	for _, r := range rows {
		r.Instance = instance
		if r.ID == 0 {
			r.ID = int64(len(s.rows[class]) + 1)
		}
		s.rows[class] = append(s.rows[class], r)
	}
	return nil
}

// FailFetchAt makes the n-th Fetch (1-based) fail with err.
func (s *Store) FailFetchAt(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFetchAt = n
	s.failFetchErr = err
}

// FailAcquire makes every Acquire fail with err.
func (s *Store) FailAcquire(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Outstanding returns the number of acquired sessions not yet released.
func (s *Store) Outstanding() int {
	st := s.Stats()
	return st.Acquired - st.Released
}

func (s *Store) Acquire(ctx context.Context) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.stats.Acquired++
	return &session{store: s}, nil
}

func (s *Store) instance(id int64) (model.PropertyInstance, bool) {
	for _, inst := range s.instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return model.PropertyInstance{}, false
}

func (s *Store) procedure(id string) (model.Procedure, bool) {
	for _, p := range s.procedures {
		if p.Identifier == id {
			return p, true
		}
	}
	return model.Procedure{}, false
}

// selectRows evaluates plan. Callers hold s.mu.
func (s *Store) selectRows(plan *query.Plan) []model.ValueRow {
	if plan.Empty {
		return nil
	}
	wanted := make(map[int64]model.PropertyInstance, len(plan.FKs))
	for _, fk := range plan.FKs {
		if fk.Class != plan.Class {
			continue
		}
		if inst, ok := s.instance(fk.Instance); ok && offered(inst, plan.Offerings) {
			wanted[fk.Instance] = inst
		}
	}

	var out []model.ValueRow
	for _, r := range s.rows[plan.Class] {
		inst, ok := wanted[r.Instance]
		if !ok {
			continue
		}
		if !plan.Temporal.Matches(s.fieldValues(r, inst)) {
			continue
		}
		if plan.Extremum != nil && !extremumMatches(r, plan.Extremum) {
			continue
		}
		if plan.Spatial != nil && !spatialMatches(r.SamplingGeometry, plan.Spatial.Operator, plan.Spatial.Geometry) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PhenomenonTimeStart.Equal(out[j].PhenomenonTimeStart) {
			return out[i].PhenomenonTimeStart.Before(out[j].PhenomenonTimeStart)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) fieldValues(r model.ValueRow, inst model.PropertyInstance) filter.FieldValues {
	return func(f filter.Fields) (time.Time, time.Time, bool) {
		switch f.Kind {
		case filter.PhenomenonTime:
			return r.PhenomenonTimeStart, r.PhenomenonTimeEnd, true
		case filter.ResultTime:
			return r.ResultTime, r.ResultTime, true
		case filter.ValidTime:
			if r.ValidTimeStart == nil || r.ValidTimeEnd == nil {
				return time.Time{}, time.Time{}, false
			}
			return *r.ValidTimeStart, *r.ValidTimeEnd, true
		case filter.ProcedureValidTime:
			p, ok := s.procedure(inst.Procedure)
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			end := openEnd
			if p.ValidTo != nil {
				end = *p.ValidTo
			}
			return p.ValidFrom, end, true
		}
		return time.Time{}, time.Time{}, false
	}
}

func offered(inst model.PropertyInstance, offerings []string) bool {
	if len(offerings) == 0 {
		return true
	}
	for _, want := range offerings {
		for _, have := range inst.Offerings {
			if want == have {
				return true
			}
		}
	}
	return false
}

func extremumMatches(r model.ValueRow, eq *query.TimeEquality) bool {
	switch eq.Property {
	case query.MaxPhenomenonTimeEnd.Property():
		return r.PhenomenonTimeEnd.Equal(eq.At)
	default:
		return r.PhenomenonTimeStart.Equal(eq.At)
	}
}

func spatialMatches(g *geom.Geometry, op model.SpatialOperator, target geom.Geometry) bool {
	if g == nil {
		return false
	}
	switch op {
	case model.Within:
		return geom.Within(*g, target)
	case model.SpatialContains:
		return geom.Contains(*g, target)
	default:
		return geom.Intersects(*g, target)
	}
}

type session struct {
	store    *Store
	released bool
}

func (ss *session) Release() {
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss.released {
		s.stats.DoubleReleases++
		return
	}
	ss.released = true
	s.stats.Released++
}

func (ss *session) Features(ctx context.Context, ids []string, shape *store.ShapeFilter) ([]model.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	want := toSet(ids)
	var out []model.Feature
	for _, f := range s.features {
		if len(want) > 0 && !want[f.Identifier] {
			continue
		}
		if shape != nil && !spatialMatches(f.Geometry, shape.Operator, shape.Geometry) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (ss *session) PropertyInstances(ctx context.Context, observedProperties []string) ([]model.PropertyInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	want := toSet(observedProperties)
	var out []model.PropertyInstance
	for _, inst := range s.instances {
		if len(want) > 0 && !want[inst.ObservedProperty] {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (ss *session) Procedures(ctx context.Context) ([]model.Procedure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Procedure(nil), s.procedures...), nil
}

func (ss *session) Fetch(ctx context.Context, plan *query.Plan, offset, limit int) ([]model.ValueRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Fetches++
	if s.failFetchAt > 0 && s.stats.Fetches == s.failFetchAt {
		return nil, s.failFetchErr
	}
	rows := s.selectRows(plan)
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (ss *session) Scroll(ctx context.Context, plan *query.Plan) (store.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Scrolls++
	return &cursor{store: s, rows: s.selectRows(plan)}, nil
}

func (ss *session) Extremum(ctx context.Context, plan *query.Plan, e query.Extremum) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Extrema++
	rows := s.selectRows(plan)
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	var at time.Time
	for i, r := range rows {
		switch {
		case e == query.MaxPhenomenonTimeEnd && (i == 0 || r.PhenomenonTimeEnd.After(at)):
			at = r.PhenomenonTimeEnd
		case e == query.MinPhenomenonTimeStart && (i == 0 || r.PhenomenonTimeStart.Before(at)):
			at = r.PhenomenonTimeStart
		}
	}
	return at, true, nil
}

func (ss *session) TimeExtrema(ctx context.Context, plan *query.Plan) (model.TimeExtrema, error) {
	if err := ctx.Err(); err != nil {
		return model.TimeExtrema{}, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var ext model.TimeExtrema
	for i, r := range s.selectRows(plan) {
		if i == 0 || r.PhenomenonTimeStart.Before(ext.PhenomenonTimeStart) {
			ext.PhenomenonTimeStart = r.PhenomenonTimeStart
		}
		if i == 0 || r.PhenomenonTimeEnd.After(ext.PhenomenonTimeEnd) {
			ext.PhenomenonTimeEnd = r.PhenomenonTimeEnd
		}
		if i == 0 || r.ResultTime.Before(ext.ResultTimeMin) {
			ext.ResultTimeMin = r.ResultTime
		}
		if i == 0 || r.ResultTime.After(ext.ResultTimeMax) {
			ext.ResultTimeMax = r.ResultTime
		}
	}
	return ext, nil
}

func (ss *session) Unit(ctx context.Context, fk model.ValueFK) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instance(fk.Instance)
	if !ok {
		return "", fmt.Errorf("unknown instance %d", fk.Instance)
	}
	return inst.Unit, nil
}

func (ss *session) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.selectRows(plan))), nil
}

type cursor struct {
	store  *Store
	rows   []model.ValueRow
	pos    int
	closed bool
}

func (c *cursor) Next(ctx context.Context) (model.ValueRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.ValueRow{}, false, err
	}
	if c.closed || c.pos >= len(c.rows) {
		return model.ValueRow{}, false, nil
	}
	r := c.rows[c.pos]
	c.pos++
	c.store.mu.Lock()
	c.store.stats.Scrolled++
	c.store.mu.Unlock()
	return r, true, nil
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
