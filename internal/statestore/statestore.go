// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package statestore provides access to the host application's embedded
// key/value state database. The host owns the file and mutates it on its
// own schedule; this package only relies on SQLite's single-statement
// atomicity, so a reader sees either the pre- or post-update value of a
// key, never a torn one.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store is the minimal key/value surface the credential core needs from
// the host state database.
type Store interface {
	// Get returns the raw value for key. The boolean reports presence;
	// a missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value under key as a single atomic statement, inserting
	// or replacing as needed.
	Set(ctx context.Context, key string, value []byte) error
}

// SQLiteStore reads and writes the host's ItemTable. Every call opens and
// closes its own connection so no handle is ever held across operations;
// the host keeps the file open for its whole lifetime and long-lived
// readers would extend lock windows on it.
type SQLiteStore struct {
	path  string
	table string
}

// NewSQLiteStore creates a store over the state database at path.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path, table: "ItemTable"}
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?%s", s.path, url.Values{
		"_busy_timeout": {"2000"},
		"_journal_mode": {"WAL"},
	}.Encode())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: failed to open %s: %w", s.path, err)
	}
	return db, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.open()
	if err != nil {
		return nil, false, err
	}
	defer db.Close()

	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", s.table)
	err = db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statestore: read %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store. Parameter binding handles quote escaping; the
// upsert is one statement, so the store's atomicity guarantee applies.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	query := fmt.Sprintf(
		"INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		s.table)
	if _, err := db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("statestore: write %q: %w", key, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements Store.
func (m *MemStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}
