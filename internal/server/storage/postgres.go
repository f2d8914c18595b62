// Package storage provides PostgreSQL-backed persistence for the relay:
// accounts, API keys and the durable clipboard history.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/clipsync/internal/server/storage/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Postgres bundles the relay's repositories over a single connection pool.
type Postgres struct {
	db      *sql.DB
	users   *UserRepository
	apiKeys *ApiKeyRepository
	entries *EntryRepository
}

// NewPostgres opens the pool, verifies connectivity and runs pending
// migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	p := &Postgres{
		db:      db,
		users:   NewUserRepository(db),
		apiKeys: NewApiKeyRepository(db),
		entries: NewEntryRepository(db),
	}

	if err := p.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return p, nil
}

func (p *Postgres) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, p.db, ".")
}

func (p *Postgres) Conn() *sql.DB { return p.db }

func (p *Postgres) Users() *UserRepository { return p.users }

func (p *Postgres) ApiKeys() *ApiKeyRepository { return p.apiKeys }

func (p *Postgres) Entries() *EntryRepository { return p.entries }

func (p *Postgres) Close() error { return p.db.Close() }
