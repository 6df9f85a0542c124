// Package db is the PostgreSQL/PostGIS implementation of the store contract.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

// Store wraps a pgx pool and hands out one pooled connection per session.
type Store struct {
	pool        *pgxpool.Pool
	storageSRID int
	logger      *zap.Logger
}

// New creates a Store backed by a pgx pool. storageSRID is the SRID of the
// stored geometries.
func New(ctx context.Context, databaseURL string, storageSRID int, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, storageSRID: storageSRID, logger: logger.Named("db")}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Acquire takes a connection from the pool for the lifetime of a session.
func (s *Store) Acquire(ctx context.Context) (store.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &session{conn: conn, storageSRID: s.storageSRID, logger: s.logger, acquired: time.Now()}, nil
}

type session struct {
	conn        *pgxpool.Conn
	storageSRID int
	logger      *zap.Logger
	acquired    time.Time
}

// Release returns the connection to the pool. Later calls are no-ops.
func (s *session) Release() {
	if s.conn == nil {
		s.logger.Warn("session released twice")
		return
	}
	s.conn.Release()
	s.conn = nil
	s.logger.Debug("session released", zap.Duration("held", time.Since(s.acquired)))
}
