package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/brct-james/titans-insider/internal/adapters/store/sqlbuild"
	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) placeholder() sqlbuild.Placeholder {
	if d == SQLite {
		return sqlbuild.Question
	}
	return sqlbuild.Dollar
}

// paramLimit is the bound-parameter ceiling of one statement.
func (d Dialect) paramLimit() int {
	if d == SQLite {
		return 32766
	}
	return 65535
}

// SQLStore writes history rows through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// Open connects with the driver registered for dialect.
func Open(dialect Dialect, dsn, table string, maxConns int) (*SQLStore, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	return New(db, dialect, table), nil
}

func New(db *sql.DB, dialect Dialect, table string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, table: table}
}

func (s *SQLStore) Name() string    { return string(s.dialect) }
func (s *SQLStore) ParamLimit() int { return s.dialect.paramLimit() }

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqlbuild.CreateTable(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", s.table, err)
		}
	}
	return nil
}

// Session pins one pooled connection for every chunk of a write.
func (s *SQLStore) Session(ctx context.Context, fn func(ports.ChunkWriter) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(&chunkWriter{conn: conn, store: s})
}

func (s *SQLStore) History(ctx context.Context, uid string) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlbuild.SelectByUID(s.table, s.dialect.placeholder()), uid)
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

func (s *SQLStore) Close() error { return s.db.Close() }

type chunkWriter struct {
	conn  *sql.Conn
	store *SQLStore
}

func (w *chunkWriter) InsertIgnore(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	q, args := sqlbuild.InsertIgnore(w.store.table, w.store.dialect.placeholder(), records)
	res, err := w.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var (
	_ ports.HistoryStore  = (*SQLStore)(nil)
	_ ports.HistoryReader = (*SQLStore)(nil)
)
