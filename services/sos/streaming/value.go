// Package streaming turns a query plan into a lazily evaluated stream of
// observation values. A Value acquires its store session on first access,
// pulls row batches with a chunked or scrollable strategy and releases the
// session exactly once.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/metric"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

// Strategy selects how rows are paged out of the store.
type Strategy string

const (
	Chunk  Strategy = "chunk"
	Scroll Strategy = "scroll"
)

// ParseStrategy accepts "chunk" and "scroll".
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Chunk:
		return Chunk, nil
	case Scroll:
		return Scroll, nil
	}
	return "", fmt.Errorf("unknown streaming strategy %q", s)
}

// State is the lifecycle state of a Value.
type State int

const (
	NotStarted State = iota
	Fetching
	HasBuffered
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Fetching:
		return "fetching"
	case HasBuffered:
		return "has_buffered"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Options configure the values created by a Factory.
type Options struct {
	Strategy Strategy
	// ChunkSize bounds the rows fetched per batch; <= 0 disables chunking.
	ChunkSize          int
	Encoding           model.TextEncoding
	IncludeResultTimes bool
}

// Factory creates values sharing a provider and options.
type Factory struct {
	provider store.Provider
	opts     Options
	logger   *zap.Logger
	metrics  *metric.Metrics
}

func NewFactory(provider store.Provider, opts Options, logger *zap.Logger, metrics *metric.Metrics) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Strategy == "" {
		opts.Strategy = Chunk
	}
	return &Factory{provider: provider, opts: opts, logger: logger.Named("streaming"), metrics: metrics}
}

// WithResultTimes returns a factory whose values carry the result time of
// every value.
func (f *Factory) WithResultTimes() *Factory {
	c := *f
	c.opts.IncludeResultTimes = true
	return &c
}

// New creates a value streaming the rows of plan into copies of template.
// budget bounds the values the stream may return; 0 disables the bound.
func (f *Factory) New(plan *query.Plan, template *model.Observation, budget int) *Value {
	return &Value{
		provider: f.provider,
		plan:     plan,
		template: template,
		budget:   budget,
		opts:     f.opts,
		logger:   f.logger,
		metrics:  f.metrics,
	}
}

// Value is the stream of one series. It is not safe for concurrent use.
type Value struct {
	provider store.Provider
	plan     *query.Plan
	template *model.Observation
	budget   int
	opts     Options
	logger   *zap.Logger
	metrics  *metric.Metrics

	state    State
	session  store.Session
	released bool
	src      source
	done     bool
	buffer   []model.ValueRow
	returned int
	err      error

	extrema model.TimeExtrema
	unit    string
}

var _ model.ValueStream = (*Value)(nil)

func (v *Value) State() State { return v.state }

// Extrema returns the time extrema of the series, known after the first
// HasNextValue call.
func (v *Value) Extrema() model.TimeExtrema { return v.extrema }

func (v *Value) Unit() string { return v.unit }

// HasNextValue reports whether a batch is buffered, fetching the next one
// from the store when needed.
func (v *Value) HasNextValue(ctx context.Context) (bool, error) {
	switch v.state {
	case Failed:
		return false, v.err
	case Exhausted:
		return false, nil
	case HasBuffered:
		return true, nil
	case NotStarted:
		if err := v.start(ctx); err != nil {
			return false, v.fail(err)
		}
		if v.state == Exhausted {
			return false, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return false, v.fail(err)
	}
	rows, done, err := v.fetch(ctx)
	if err != nil {
		return false, v.fail(err)
	}
	v.metrics.Fetch(string(v.opts.Strategy))
	if done {
		v.done = true
		v.release()
	}
	if v.budget > 0 && v.returned+len(rows) > v.budget {
		return false, v.fail(ows.SizeLimit(fmt.Sprintf(
			"the response exceeds the limit of %d values per series; "+
				"please restrict the request with a temporal or spatial filter",
			v.budget)))
	}
	if len(rows) == 0 {
		v.state = Exhausted
		return false, nil
	}
	v.buffer = rows
	v.state = HasBuffered
	return true, nil
}

// start acquires the session and caches the extrema and unit of the series.
func (v *Value) start(ctx context.Context) error {
	v.state = Fetching
	if v.plan.Empty || len(v.plan.FKs) == 0 {
		v.state = Exhausted
		v.released = true
		return nil
	}
	sess, err := v.provider.Acquire(ctx)
	if err != nil {
		v.released = true
		return err
	}
	v.session = sess

	if v.extrema, err = sess.TimeExtrema(ctx, v.plan); err != nil {
		return err
	}
	if v.unit, err = sess.Unit(ctx, v.plan.FKs[0]); err != nil {
		return err
	}
	if v.template != nil {
		v.template.UnitOfMeasure = v.unit
		if !v.extrema.IsEmpty() {
			v.template.PhenomenonTime = v.extrema.PhenomenonTime()
			v.template.ResultTime = v.extrema.ResultTimeMax
		}
	}
	if v.extrema.IsEmpty() {
		v.state = Exhausted
		v.done = true
		v.release()
		return nil
	}

	switch {
	case v.opts.Strategy == Scroll:
		v.src = &scrollable{values: sess, plan: v.plan, size: v.opts.ChunkSize, budget: v.budget}
	case v.opts.ChunkSize > 0:
		v.src = &chunked{values: sess, plan: v.plan, size: v.opts.ChunkSize}
	default:
		v.src = &unchunked{values: sess, plan: v.plan, budget: v.budget}
	}
	return nil
}

// fetch pulls the next batch. Allocation failures surfacing as runtime
// panics are turned into a size limit error.
func (v *Value) fetch(ctx context.Context) (rows []model.ValueRow, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if !isAllocationFailure(r) {
				v.release()
				panic(r)
			}
			v.logger.Error("allocation failure while fetching values", zap.Any("panic", r))
			rows, done = nil, false
			err = ows.SizeLimit("the response is too large to be materialized; " +
				"please restrict the request or ask the administrator to raise the memory limit")
		}
	}()
	start := time.Now()
	rows, done, err = v.src.next(ctx)
	if err == nil {
		v.logger.Debug("fetched batch",
			zap.String("strategy", string(v.opts.Strategy)),
			zap.Int("rows", len(rows)),
			zap.Bool("done", done),
			zap.Duration("took", time.Since(start)))
	}
	return rows, done, err
}

func isAllocationFailure(r any) bool {
	var msg string
	switch e := r.(type) {
	case error:
		msg = e.Error()
	case string:
		msg = e
	default:
		return false
	}
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "len out of range") ||
		strings.Contains(msg, "cap out of range")
}

// NextEntities returns and clears the buffered batch.
func (v *Value) NextEntities() ([]model.ValueRow, error) {
	if v.state != HasBuffered {
		return nil, fmt.Errorf("no buffered values in state %s", v.state)
	}
	rows := v.buffer
	v.buffer = nil
	v.returned += len(rows)
	v.metrics.Values(string(v.opts.Strategy), len(rows))
	if v.done {
		v.state = Exhausted
	} else {
		v.state = Fetching
	}
	return rows, nil
}

// NextValue merges the buffered batch into one array valued pair.
func (v *Value) NextValue() (model.TimeValuePair, error) {
	rows, err := v.NextEntities()
	if err != nil {
		return model.TimeValuePair{}, err
	}
	return v.mergeArray(rows), nil
}

// NextSingleObservation merges the buffered batch into a copy of the
// template.
func (v *Value) NextSingleObservation() (*model.Observation, error) {
	rows, err := v.NextEntities()
	if err != nil {
		return nil, err
	}
	var obs *model.Observation
	if v.template != nil {
		obs = v.template.Clone()
	} else {
		obs = &model.Observation{}
	}
	obs.Values = make([]model.TimeValuePair, 0, len(rows))
	var latest time.Time
	for _, r := range rows {
		obs.AddValue(v.pair(r))
		if r.ResultTime.After(latest) {
			latest = r.ResultTime
		}
	}
	obs.ResultTime = latest
	return obs, nil
}

func (v *Value) pair(r model.ValueRow) model.TimeValuePair {
	p := model.TimeValuePair{Time: phenomenonTime(r), Value: r.Value}
	if p.Value.Unit == "" {
		p.Value.Unit = v.unit
	}
	if v.opts.IncludeResultTimes {
		rt := r.ResultTime
		p.ResultTime = &rt
	}
	return p
}

func phenomenonTime(r model.ValueRow) model.Time {
	if r.PhenomenonTimeStart.Equal(r.PhenomenonTimeEnd) {
		return model.Instant(r.PhenomenonTimeStart)
	}
	return r.PhenomenonTime()
}

func (v *Value) mergeArray(rows []model.ValueRow) model.TimeValuePair {
	enc := v.opts.Encoding
	fields := []string{"phenomenonTime"}
	if v.opts.IncludeResultTimes {
		fields = append(fields, "resultTime")
	}
	fields = append(fields, "value")

	var (
		b        strings.Builder
		span     model.Time
		resultAt *time.Time
	)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(enc.TupleSeparator)
		}
		t := phenomenonTime(r)
		b.WriteString(t.String())
		if v.opts.IncludeResultTimes {
			b.WriteString(enc.TokenSeparator)
			b.WriteString(r.ResultTime.UTC().Format(time.RFC3339Nano))
			if resultAt == nil || r.ResultTime.After(*resultAt) {
				rt := r.ResultTime
				resultAt = &rt
			}
		}
		b.WriteString(enc.TokenSeparator)
		b.WriteString(r.Value.Format(enc.DecimalSeparator))

		if i == 0 || r.PhenomenonTimeStart.Before(span.Begin) {
			span.Begin = r.PhenomenonTimeStart
		}
		if i == 0 || r.PhenomenonTimeEnd.After(span.End) {
			span.End = r.PhenomenonTimeEnd
		}
	}
	return model.TimeValuePair{
		Time:       span,
		ResultTime: resultAt,
		Value: model.ObservationValue{
			Kind: model.KindArray,
			Unit: v.unit,
			Array: &model.DataArray{
				Fields:   fields,
				Encoding: enc,
				Values:   b.String(),
				Count:    len(rows),
			},
		},
	}
}

// Close abandons the stream and releases its session if still held.
func (v *Value) Close() error {
	v.buffer = nil
	if v.state != Failed {
		v.state = Exhausted
	}
	return v.release()
}

// fail moves the value to the terminal failed state. Errors that are not
// already coded are reported as storage failures.
func (v *Value) fail(err error) error {
	reason := "storage"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "canceled"
		err = ows.Timeout(fmt.Errorf("streaming values: %w", err))
	case errors.Is(err, ows.ErrResponseExceedsSizeLimit):
		reason = "size_limit"
	default:
		if _, coded := ows.As(err); !coded {
			err = ows.Storage(err, "querying observation data")
		}
	}
	v.metrics.Failure(reason)
	v.logger.Warn("value stream failed", zap.String("reason", reason), zap.Error(err))
	v.buffer = nil
	v.state = Failed
	v.err = err
	v.release()
	return err
}

// release closes the source and returns the session exactly once.
func (v *Value) release() error {
	if v.released {
		return nil
	}
	v.released = true
	var err error
	if v.src != nil {
		err = v.src.close()
	}
	if v.session != nil {
		v.session.Release()
		v.session = nil
	}
	return err
}
