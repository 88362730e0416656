package pgxstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brct-james/titans-insider/internal/adapters/store/sqlbuild"
	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const paramLimit = 65535

type Options struct {
	MaxConns int
	// ViaBouncer switches to the simple protocol for transaction-pooling bouncers.
	ViaBouncer bool
}

// PgxStore writes history rows through a pgx connection pool.
type PgxStore struct {
	pool  *pgxpool.Pool
	table string
}

func Open(ctx context.Context, dsn, table string, opts Options) (*PgxStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.ViaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return New(pool, table), nil
}

func New(pool *pgxpool.Pool, table string) *PgxStore {
	return &PgxStore{pool: pool, table: table}
}

func (s *PgxStore) Name() string    { return "pgx" }
func (s *PgxStore) ParamLimit() int { return paramLimit }

func (s *PgxStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqlbuild.CreateTable(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *PgxStore) Session(ctx context.Context, fn func(ports.ChunkWriter) error) error {
	return s.pool.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		return fn(&chunkWriter{conn: conn, table: s.table})
	})
}

func (s *PgxStore) History(ctx context.Context, uid string) ([]domain.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, sqlbuild.SelectByUID(s.table, sqlbuild.Dollar), uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var r domain.HistoryRecord
		if err := rows.Scan(sqlbuild.Targets(&r)...); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}

type chunkWriter struct {
	conn  *pgxpool.Conn
	table string
}

func (w *chunkWriter) InsertIgnore(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	q, args := sqlbuild.InsertIgnore(w.table, sqlbuild.Dollar, records)
	tag, err := w.conn.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var (
	_ ports.HistoryStore  = (*PgxStore)(nil)
	_ ports.HistoryReader = (*PgxStore)(nil)
)
