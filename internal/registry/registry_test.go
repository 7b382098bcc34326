// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/switchAccount/internal/util"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	t.Setenv("SWITCHACCT_STATE_DIR", t.TempDir())
	sb, err := util.NewStateBox()
	require.NoError(t, err)
	return New(sb)
}

func TestAdd_FirstAccountIsActive(t *testing.T) {
	r := newRegistry(t)

	a, err := r.Add("A@X.com", "work")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", a.Email)
	assert.True(t, a.Active)
	assert.Equal(t, "work", a.Note)

	b, err := r.Add("b@x.com", "")
	require.NoError(t, err)
	assert.False(t, b.Active)
}

func TestAdd_DuplicateIsNoop(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Add("a@x.com", "first")
	require.NoError(t, err)
	again, err := r.Add("a@x.com", "second")
	require.NoError(t, err)
	assert.Equal(t, "first", again.Note)

	entries, err := r.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestList_PreservesInsertionOrder(t *testing.T) {
	r := newRegistry(t)
	for _, email := range []string{"c@x.com", "a@x.com", "b@x.com"} {
		_, err := r.Add(email, "")
		require.NoError(t, err)
	}

	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c@x.com", entries[0].Email)
	assert.Equal(t, "a@x.com", entries[1].Email)
	assert.Equal(t, "b@x.com", entries[2].Email)
}

func TestSetActive_MovesFlag(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Add("a@x.com", "")
	require.NoError(t, err)
	_, err = r.Add("b@x.com", "")
	require.NoError(t, err)

	require.NoError(t, r.SetActive("b@x.com"))
	a, err := r.Get("a@x.com")
	require.NoError(t, err)
	b, err := r.Get("b@x.com")
	require.NoError(t, err)
	assert.False(t, a.Active)
	assert.True(t, b.Active)

	assert.ErrorIs(t, r.SetActive("ghost@x.com"), ErrNotRegistered)
}

func TestRemove(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Add("a@x.com", "")
	require.NoError(t, err)

	require.NoError(t, r.Remove("a@x.com"))
	_, err = r.Get("a@x.com")
	assert.ErrorIs(t, err, ErrNotRegistered)

	assert.ErrorIs(t, r.Remove("a@x.com"), ErrNotRegistered)
}

func TestPersistsAcrossInstances(t *testing.T) {
	t.Setenv("SWITCHACCT_STATE_DIR", t.TempDir())
	sb, err := util.NewStateBox()
	require.NoError(t, err)

	r1 := New(sb)
	_, err = r1.Add("a@x.com", "keep")
	require.NoError(t, err)

	r2 := New(sb)
	got, err := r2.Get("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Note)
}
