// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// KV is the persistence backend for the queue: get/set of JSON blobs under a
// string key. Implementations do not need to be safe for concurrent use;
// Store serializes every access behind its lock.
type KV interface {
	// Get returns the stored value and true, or (nil, false) when the key has
	// never been written.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// SQLiteKV stores blobs in a single SQLite table. This is the production
// backend on device.
type SQLiteKV struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteKV opens (or creates) a SQLite database at path and prepares it
// for use as a key-value backend. Use ":memory:" for an ephemeral store.
func OpenSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	kv, err := NewSQLiteKV(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	kv.owned = true
	return kv, nil
}

// NewSQLiteKV wraps an existing database handle. The caller keeps ownership
// of db and is responsible for closing it.
func NewSQLiteKV(db *sql.DB) (*SQLiteKV, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _offline_store (
			key        TEXT NOT NULL PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create offline store table: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM _offline_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _offline_store (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value))
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database if this KV opened it.
func (s *SQLiteKV) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// MemoryKV is an in-memory KV backend for tests and ephemeral sessions.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string][]byte

	// FailReads/FailWrites force errors, for exercising storage failure paths.
	FailReads  error
	FailWrites error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, false, m.FailReads
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	return nil
}
