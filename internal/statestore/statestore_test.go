// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package statestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value BLOB)")
	require.NoError(t, err)
	return path
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t))

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte(`{"email":"a@x.com"}`)))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"email":"a@x.com"}`, string(got))
}

func TestSQLiteStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t))

	require.NoError(t, store.Set(ctx, "k", []byte("v1")))
	require.NoError(t, store.Set(ctx, "k", []byte("v2")))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(got))
}

func TestSQLiteStore_ValuesWithQuotes(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t))

	// Identity blobs carry embedded quotes; parameter binding must keep
	// them byte-for-byte.
	blob := []byte(`{"name":"O'Brien","token":"a\"b"}`)
	require.NoError(t, store.Set(ctx, "identity", blob))

	got, ok, err := store.Get(ctx, "identity")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blob, got)
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	// Mutating the returned slice must not affect the stored value.
	got[0] = 'x'
	again, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(again))
}
