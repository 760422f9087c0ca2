// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists orders and care plans in PostgreSQL. It is the
// single source of truth for order status: every lifecycle transition is a
// conditional UPDATE, and the duplicate gate is a partial unique index, so
// two workers (or two concurrent submissions) can never both win a race.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Store provides access to the order and care-plan tables.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New wraps an existing database handle. Used by tests with sqlmock.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[Store] ", log.LstdFlags),
	}
}

// Open connects to PostgreSQL and verifies connectivity.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InitSchema creates the pipeline tables if they do not exist. The partial
// unique index on duplicate_check_hash is the atomic duplicate gate: it
// admits at most one non-failed order per fingerprint, hence a failed order
// can be resubmitted.
func (s *Store) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		patient_id VARCHAR(64) NOT NULL,
		provider_npi VARCHAR(20) NOT NULL,
		medication_name VARCHAR(255) NOT NULL,
		clinical_notes TEXT NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		duplicate_check_hash CHAR(64) NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_active_fingerprint
		ON orders (duplicate_check_hash) WHERE status <> 'failed';

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_patient ON orders(patient_id);

	CREATE TABLE IF NOT EXISTS care_plans (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL UNIQUE REFERENCES orders(id),
		content TEXT NOT NULL,
		source VARCHAR(16) NOT NULL CHECK (source IN ('generated', 'manual')),
		provider VARCHAR(64) NOT NULL DEFAULT '',
		model VARCHAR(128) NOT NULL DEFAULT '',
		prompt_tokens INT NOT NULL DEFAULT 0,
		completion_tokens INT NOT NULL DEFAULT 0,
		generation_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Println("Order schema initialized")
	return nil
}
