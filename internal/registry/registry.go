// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry keeps the on-disk list of known accounts. It stores no
// secret material, only emails and per-account flags; tokens and
// snapshots live in the OS keyring. Entries keep their insertion order,
// which is the iteration order shown to users.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/traylinx/switchAccount/internal/util"
)

// ErrNotRegistered is returned when an email is not in the registry.
var ErrNotRegistered = errors.New("registry: account not registered")

// Entry is one known account.
type Entry struct {
	Email   string    `json:"email"`
	Active  bool      `json:"active"`
	Note    string    `json:"note,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// Registry is a file-backed account list. Every mutation rewrites the
// whole file atomically.
type Registry struct {
	sb   *util.StateBox
	path string
	mu   sync.Mutex
}

// New creates a registry persisted at the state box registry path.
func New(sb *util.StateBox) *Registry {
	return &Registry{sb: sb, path: sb.RegistryPath()}
}

// Add registers email, ignoring duplicates. The first registered account
// is marked active.
func (r *Registry) Add(email, note string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(email)
	for _, e := range entries {
		if e.Email == email {
			return e, nil
		}
	}
	entry := &Entry{
		Email:   email,
		Active:  len(entries) == 0,
		Note:    note,
		AddedAt: time.Now(),
	}
	entries = append(entries, entry)
	if err := r.save(entries); err != nil {
		return nil, err
	}
	return entry, nil
}

// Remove deletes email from the registry.
func (r *Registry) Remove(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	email = strings.ToLower(email)
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.Email == email {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotRegistered, email)
	}
	return r.save(kept)
}

// SetActive marks email as the active account and clears the flag on all
// others.
func (r *Registry) SetActive(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	email = strings.ToLower(email)
	found := false
	for _, e := range entries {
		e.Active = e.Email == email
		if e.Active {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotRegistered, email)
	}
	return r.save(entries)
}

// Get returns the entry for email.
func (r *Registry) Get(email string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(email)
	for _, e := range entries {
		if e.Email == email {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRegistered, email)
}

// List returns all entries in registration order.
func (r *Registry) List() ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *Registry) load() ([]*Entry, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("registry: decode %s: %w", r.path, err)
	}
	return entries, nil
}

func (r *Registry) save(entries []*Entry) error {
	return util.SecureWriteJSON(r.sb, r.path, entries)
}
