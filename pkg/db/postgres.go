package db

import (
	"context"
	"fmt"
	"marketplace/pkg/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
)

const (
	defaultMaxConns      = 5
	defaultMigrationsDir = "resources/migrations"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close()
}

type Postgres struct {
	Pool *pgxpool.Pool
	// connConfig opens the database/sql handle goose needs.
	connConfig pgx.ConnConfig
}

// NewPostgres opens the pool and brings the schema up to date.
func NewPostgres(ctx context.Context, conf config.Postgres) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(conf.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	applyPoolLimits(poolCfg, conf)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	p := &Postgres{Pool: pool, connConfig: *poolCfg.ConnConfig}
	if err := p.Migrate(conf.MigrationsDir); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func applyPoolLimits(poolCfg *pgxpool.Config, conf config.Postgres) {
	poolCfg.MaxConns = defaultMaxConns
	if conf.MaxConnections > 0 {
		poolCfg.MaxConns = conf.MaxConnections
	}
	if conf.MinConnections > 0 && conf.MinConnections <= poolCfg.MaxConns {
		poolCfg.MinConns = conf.MinConnections
	}
	if conf.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = conf.MaxConnLifetime
	}
}

// Migrate applies pending goose migrations from dir. goose works on
// database/sql, so it runs over the pgx stdlib adapter.
func (p *Postgres) Migrate(dir string) error {
	if dir == "" {
		dir = defaultMigrationsDir
	}

	sqlDB := stdlib.OpenDB(p.connConfig)
	defer sqlDB.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, dir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

type txKey struct{}

func (p *Postgres) InjectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func (p *Postgres) ExtractTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// Exec, Query and QueryRow run inside the transaction carried by ctx, if any.

func (p *Postgres) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if tx := p.ExtractTx(ctx); tx != nil {
		return tx.Exec(ctx, query, args...)
	}
	return p.Pool.Exec(ctx, query, args...)
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if tx := p.ExtractTx(ctx); tx != nil {
		return tx.Query(ctx, query, args...)
	}
	return p.Pool.Query(ctx, query, args...)
}

func (p *Postgres) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if tx := p.ExtractTx(ctx); tx != nil {
		return tx.QueryRow(ctx, query, args...)
	}
	return p.Pool.QueryRow(ctx, query, args...)
}

// WithinTransaction commits when fn returns nil and rolls back otherwise.
// A nested call joins the transaction already in ctx instead of opening a new one.
func (p *Postgres) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if tx := p.ExtractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(p.InjectTx(ctx, tx))
	return
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
