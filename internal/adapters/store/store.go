// Package store picks a history backend by name.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brct-james/titans-insider/internal/adapters/store/gormstore"
	"github.com/brct-james/titans-insider/internal/adapters/store/pgxstore"
	"github.com/brct-james/titans-insider/internal/adapters/store/sqlstore"
	"github.com/brct-james/titans-insider/internal/ports"
)

const (
	BackendPostgres = "postgres"
	BackendPgx      = "pgx"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
)

// Backend is a store that can also read history back.
type Backend interface {
	ports.HistoryStore
	ports.HistoryReader
}

type Options struct {
	Backend    string
	DSN        string // postgres, pgx and mysql
	Path       string // sqlite
	Table      string
	MaxConns   int
	ViaBouncer bool // pgx only
}

func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Backend {
	case BackendPostgres:
		b, err = wrap(sqlstore.Open(sqlstore.Postgres, opts.DSN, opts.Table, opts.MaxConns))
	case BackendSQLite:
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn := "file:" + opts.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		b, err = wrap(sqlstore.Open(sqlstore.SQLite, dsn, opts.Table, opts.MaxConns))
	case BackendPgx:
		b, err = wrap(pgxstore.Open(ctx, opts.DSN, opts.Table, pgxstore.Options{MaxConns: opts.MaxConns, ViaBouncer: opts.ViaBouncer}))
	case BackendMySQL:
		b, err = wrap(gormstore.Open(opts.DSN, opts.Table, opts.MaxConns))
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Backend, err)
	}
	return b, nil
}

func wrap[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
