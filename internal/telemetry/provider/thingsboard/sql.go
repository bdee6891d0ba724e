// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package thingsboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wneessen/homewatch/internal/telemetry"
)

const nameSQL = "thingsboard-sql"

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQL reads the device location directly from the ThingsBoard PostgreSQL database.
type SQL struct {
	db   rowQuerier
	pool *pgxpool.Pool
}

// NewSQL connects to the database identified by dsn and verifies the connection.
func NewSQL(ctx context.Context, dsn string) (*SQL, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQL{db: pool, pool: pool}, nil
}

func (s *SQL) Name() string {
	return nameSQL
}

func (s *SQL) FetchLatest(ctx context.Context, device string) (telemetry.Observation, error) {
	var obs telemetry.Observation
	err := s.db.QueryRow(ctx, latestQuery, device).Scan(&obs.Timestamp, &obs.Latitude, &obs.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return obs, telemetry.ErrNoObservation
	}
	if err != nil {
		return obs, fmt.Errorf("failed to query latest location: %w", err)
	}
	return obs, nil
}

func (s *SQL) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
