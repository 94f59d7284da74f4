package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	createStateTableSQL = `CREATE TABLE IF NOT EXISTS monitor_state (
        name       TEXT PRIMARY KEY,
        doc        JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	selectStateSQL = `SELECT doc FROM monitor_state WHERE name = $1;`

	upsertStateSQL = `INSERT INTO monitor_state (name, doc, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (name) DO UPDATE
    SET doc        = EXCLUDED.doc,
        updated_at = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresOptions parameterise the postgres state backend.
type PostgresOptions struct {
	DSN             string
	DocumentName    string
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore keeps the document as a single jsonb row, so a save is one
// atomic upsert. It also exposes advisory locks for multi-replica
// deployments.
type PostgresStore struct {
	pool   *pgxpool.Pool
	name   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewPostgresStore connects a pool and ensures the state table exists.
func NewPostgresStore(ctx context.Context, opts PostgresOptions, logger zerolog.Logger) (*PostgresStore, error) {
	if opts.DSN == "" {
		return nil, errors.New("state: postgres dsn required")
	}

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse state dsn: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxOpenConns)
	}
	if opts.MinIdleConns > 0 {
		poolConfig.MinConns = int32(opts.MinIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create state pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createStateTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure state table: %w", err)
	}

	name := opts.DocumentName
	if name == "" {
		name = "monitor"
	}

	return &PostgresStore{
		pool:   pool,
		name:   name,
		logger: logger.With().Str("component", "state_postgres").Logger(),
		now:    time.Now,
	}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the document row. A missing or unreadable row degrades to an
// empty document.
func (s *PostgresStore) Load(ctx context.Context) Document {
	var raw []byte
	err := s.pool.QueryRow(ctx, selectStateSQL, s.name).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Info().Str("name", s.name).Msg("no state row yet, starting fresh")
		} else {
			s.logger.Warn().Err(err).Str("name", s.name).Msg("state row unreadable, starting fresh")
		}
		return Document{}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn().Err(err).Str("name", s.name).Msg("state row corrupt, starting fresh")
		return Document{}
	}
	if doc == nil {
		doc = Document{}
	}
	return doc
}

// Save stamps metadata and upserts the single document row.
func (s *PostgresStore) Save(ctx context.Context, doc Document) error {
	out := stamp(doc, s.now())

	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if _, err := s.pool.Exec(ctx, upsertStateSQL, s.name, raw); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	s.logger.Debug().Str("name", s.name).Int("keys", len(out)).Msg("state saved")
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns
// a release func. The lock rides a dedicated connection held until unlock.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, errors.New("state: pool not configured")
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logger.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return unlock, true, nil
}

var _ Store = (*PostgresStore)(nil)
var _ AdvisoryLocker = (*PostgresStore)(nil)
