package streaming

import (
	"context"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

// source yields row batches of one plan. done reports that the store holds
// no rows beyond the returned batch.
type source interface {
	next(ctx context.Context) (rows []model.ValueRow, done bool, err error)
	close() error
}

// chunked re-queries the store with LIMIT/OFFSET. Each query asks for one
// row more than a chunk so the end of the data is known without an extra
// empty query.
type chunked struct {
	values store.ValueSource
	plan   *query.Plan
	size   int
	offset int
}

func (c *chunked) next(ctx context.Context) ([]model.ValueRow, bool, error) {
	rows, err := c.values.Fetch(ctx, c.plan, c.offset, c.size+1)
	if err != nil {
		return nil, false, err
	}
	if len(rows) > c.size {
		c.offset += c.size
		return rows[:c.size], false, nil
	}
	c.offset += len(rows)
	return rows, true, nil
}

func (c *chunked) close() error { return nil }

// unchunked issues a single query for all rows. With a value budget the
// query asks for one row beyond it so an oversized result is detected
// without materializing it.
type unchunked struct {
	values store.ValueSource
	plan   *query.Plan
	budget int
}

func (u *unchunked) next(ctx context.Context) ([]model.ValueRow, bool, error) {
	limit := -1
	if u.budget > 0 {
		limit = u.budget + 1
	}
	rows, err := u.values.Fetch(ctx, u.plan, 0, limit)
	return rows, true, err
}

func (u *unchunked) close() error { return nil }

// scrollable reads batches from one forward-only cursor. It looks one row
// ahead so that the batch holding the last row already reports done.
// Without a batch size the single batch stops one row past the budget.
type scrollable struct {
	values  store.ValueSource
	plan    *query.Plan
	size    int
	budget  int
	cursor  store.Cursor
	pending *model.ValueRow
}

func (s *scrollable) next(ctx context.Context) ([]model.ValueRow, bool, error) {
	if s.cursor == nil {
		cur, err := s.values.Scroll(ctx, s.plan)
		if err != nil {
			return nil, false, err
		}
		s.cursor = cur
	}

	var batch []model.ValueRow
	if s.pending != nil {
		batch = append(batch, *s.pending)
		s.pending = nil
	}
	limit := s.size
	if limit <= 0 && s.budget > 0 {
		limit = s.budget + 1
	}
	for limit <= 0 || len(batch) < limit {
		row, ok, err := s.cursor.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return batch, true, nil
		}
		batch = append(batch, row)
	}
	if s.size <= 0 {
		return batch, false, nil
	}

	row, ok, err := s.cursor.Next(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return batch, true, nil
	}
	s.pending = &row
	return batch, false, nil
}

func (s *scrollable) close() error {
	if s.cursor == nil {
		return nil
	}
	err := s.cursor.Close()
	s.cursor = nil
	return err
}
