package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

var errReleased = errors.New("session already released")

func scanValueRow(rows pgx.Rows) (model.ValueRow, error) {
	var (
		r        model.ValueRow
		sampling []byte
		kind     string
		unit     *string
		raw      model.RawValue
	)
	if err := rows.Scan(
		&r.ID,
		&r.Instance,
		&r.PhenomenonTimeStart,
		&r.PhenomenonTimeEnd,
		&r.ResultTime,
		&r.ValidTimeStart,
		&r.ValidTimeEnd,
		&sampling,
		&kind,
		&unit,
		&raw.Numeric,
		&raw.Count,
		&raw.Boolean,
		&raw.Category,
		&raw.Text,
		&raw.Geometry,
		&raw.Blob,
	); err != nil {
		return r, err
	}
	sg, err := geom.FromEWKB(sampling)
	if err != nil {
		return r, err
	}
	r.SamplingGeometry = sg

	k, err := model.ParseKind(kind)
	if err != nil {
		return r, err
	}
	if r.Value, err = model.NewValue(k, raw); err != nil {
		return r, err
	}
	if unit != nil {
		r.Value.Unit = *unit
	}
	return r, nil
}

// Fetch runs one page of the value query of plan.
func (s *session) Fetch(ctx context.Context, plan *query.Plan, offset, limit int) ([]model.ValueRow, error) {
	if s.conn == nil {
		return nil, errReleased
	}
	if plan.Empty {
		return nil, nil
	}
	sql, args, err := fetchSQL(plan, s.storageSRID, offset, limit)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ValueRow, 0)
	for rows.Next() {
		r, err := scanValueRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("fetched values",
		zap.String("class", plan.Class.String()),
		zap.Int("offset", offset),
		zap.Int("limit", limit),
		zap.Int("rows", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// Scroll opens a server-side cursor over the rows of plan. The connection is
// busy until the cursor is closed.
func (s *session) Scroll(ctx context.Context, plan *query.Plan) (store.Cursor, error) {
	if s.conn == nil {
		return nil, errReleased
	}
	if plan.Empty {
		return emptyCursor{}, nil
	}
	sql, args, err := fetchSQL(plan, s.storageSRID, 0, -1)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &cursor{rows: rows}, nil
}

// Extremum computes MIN(phenomenon_time_start) or MAX(phenomenon_time_end).
func (s *session) Extremum(ctx context.Context, plan *query.Plan, e query.Extremum) (time.Time, bool, error) {
	if s.conn == nil {
		return time.Time{}, false, errReleased
	}
	sql, args, err := extremumSQL(plan, s.storageSRID, e)
	if err != nil {
		return time.Time{}, false, err
	}
	var at *time.Time
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&at); err != nil {
		return time.Time{}, false, err
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}

func (s *session) TimeExtrema(ctx context.Context, plan *query.Plan) (model.TimeExtrema, error) {
	if s.conn == nil {
		return model.TimeExtrema{}, errReleased
	}
	var ext model.TimeExtrema
	if plan.Empty {
		return ext, nil
	}
	sql, args, err := timeExtremaSQL(plan, s.storageSRID)
	if err != nil {
		return ext, err
	}
	var pStart, pEnd, rMin, rMax *time.Time
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&pStart, &pEnd, &rMin, &rMax); err != nil {
		return ext, err
	}
	if pStart != nil {
		ext.PhenomenonTimeStart = *pStart
	}
	if pEnd != nil {
		ext.PhenomenonTimeEnd = *pEnd
	}
	if rMin != nil {
		ext.ResultTimeMin = *rMin
	}
	if rMax != nil {
		ext.ResultTimeMax = *rMax
	}
	return ext, nil
}

const unitSQL = `SELECT COALESCE(unit, '') FROM sos.property_instances WHERE id = $1`

func (s *session) Unit(ctx context.Context, fk model.ValueFK) (string, error) {
	if s.conn == nil {
		return "", errReleased
	}
	var unit string
	err := s.conn.QueryRow(ctx, unitSQL, fk.Instance).Scan(&unit)
	return unit, err
}

func (s *session) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	if s.conn == nil {
		return 0, errReleased
	}
	if plan.Empty {
		return 0, nil
	}
	sql, args, err := countSQL(plan, s.storageSRID)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.conn.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

type cursor struct {
	rows pgx.Rows
}

func (c *cursor) Next(ctx context.Context) (model.ValueRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.ValueRow{}, false, err
	}
	if !c.rows.Next() {
		return model.ValueRow{}, false, c.rows.Err()
	}
	r, err := scanValueRow(c.rows)
	if err != nil {
		return model.ValueRow{}, false, err
	}
	return r, true, nil
}

func (c *cursor) Close() error {
	c.rows.Close()
	return c.rows.Err()
}

type emptyCursor struct{}

func (emptyCursor) Next(context.Context) (model.ValueRow, bool, error) {
	return model.ValueRow{}, false, nil
}

func (emptyCursor) Close() error { return nil }
