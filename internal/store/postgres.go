// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id           TEXT PRIMARY KEY,
	slug         TEXT UNIQUE NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	protected    BOOLEAN NOT NULL DEFAULT FALSE,
	price        TEXT NOT NULL DEFAULT '0',
	block_humans BOOLEAN NOT NULL DEFAULT FALSE,
	redirect_url TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bindings (
	resource_id TEXT PRIMARY KEY REFERENCES resources(id),
	nonce       TEXT NOT NULL,
	bind_hash   TEXT NOT NULL,
	invoice_id  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

func Connect(databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 2 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("Database connected successfully")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) GetResourceBySlug(ctx context.Context, slug string) (*Resource, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, slug, title, body, protected, price, block_humans, redirect_url
		 FROM resources WHERE slug = $1`, slug)

	var res Resource
	err := row.Scan(&res.ID, &res.Slug, &res.Title, &res.Body,
		&res.Protected, &res.Price, &res.BlockHumans, &res.RedirectURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource %q: %w", slug, err)
	}
	return &res, nil
}

func (p *Postgres) ListProtected(ctx context.Context) ([]Resource, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, slug, title, body, protected, price, block_humans, redirect_url
		 FROM resources WHERE protected ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list protected resources: %w", err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.Slug, &res.Title, &res.Body,
			&res.Protected, &res.Price, &res.BlockHumans, &res.RedirectURL); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (p *Postgres) GetBinding(ctx context.Context, resourceID string) (*Binding, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT nonce, bind_hash, invoice_id FROM bindings WHERE resource_id = $1`, resourceID)

	var b Binding
	err := row.Scan(&b.Nonce, &b.BindHash, &b.InvoiceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load binding for %q: %w", resourceID, err)
	}
	return &b, nil
}

// EnsureBinding inserts the candidate with ON CONFLICT DO NOTHING, then
// reads back whichever row won. Two concurrent first writers both get
// the single persisted pair.
func (p *Postgres) EnsureBinding(ctx context.Context, resourceID string, candidate Binding) (Binding, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO bindings (resource_id, nonce, bind_hash, invoice_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (resource_id) DO NOTHING`,
		resourceID, candidate.Nonce, candidate.BindHash, candidate.InvoiceID)
	if err != nil {
		return Binding{}, fmt.Errorf("failed to insert binding for %q: %w", resourceID, err)
	}

	durable, err := p.GetBinding(ctx, resourceID)
	if err != nil {
		return Binding{}, err
	}
	if durable == nil {
		return Binding{}, fmt.Errorf("binding for %q missing after insert", resourceID)
	}
	return *durable, nil
}

func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
		slog.Info("Database connection closed")
	}
}
