// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package secretstore persists secret material (tokens, identity
// snapshots) through the operating system's credential manager. Nothing
// in this package ever writes a plaintext application file.
package secretstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no secret exists under the requested key.
var ErrNotFound = errors.New("secretstore: secret not found")

// Store holds JSON string values under namespaced keys.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	// List returns all known keys in sorted order.
	List() ([]string, error)
}

// indexKey tracks the set of stored keys. OS keyrings cannot enumerate
// entries for a service, so the index is maintained alongside the data.
const indexKey = "__index"

// Keyring is a Store over the OS credential manager. All entries share
// one keyring service name; the key is the keyring account.
type Keyring struct {
	service string
	mu      sync.Mutex
}

// NewKeyring creates a keyring-backed store under the given service name.
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

// Get implements Store.
func (k *Keyring) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("secretstore: read %q: %w", key, err)
	}
	return v, nil
}

// Set implements Store.
func (k *Keyring) Set(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("secretstore: write %q: %w", key, err)
	}
	return k.updateIndex(func(keys map[string]bool) {
		keys[key] = true
	})
}

// Delete implements Store. Deleting a missing key is not an error.
func (k *Keyring) Delete(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("secretstore: delete %q: %w", key, err)
	}
	return k.updateIndex(func(keys map[string]bool) {
		delete(keys, key)
	})
}

// List implements Store.
func (k *Keyring) List() ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys, err := k.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

func (k *Keyring) readIndex() (map[string]bool, error) {
	raw, err := keyring.Get(k.service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: read index: %w", err)
	}
	var keys map[string]bool
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		// A corrupt index loses enumeration, not data; start fresh.
		return map[string]bool{}, nil
	}
	return keys, nil
}

func (k *Keyring) updateIndex(mutate func(map[string]bool)) error {
	keys, err := k.readIndex()
	if err != nil {
		return err
	}
	mutate(keys)
	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("secretstore: encode index: %w", err)
	}
	if err := keyring.Set(k.service, indexKey, string(raw)); err != nil {
		return fmt.Errorf("secretstore: write index: %w", err)
	}
	return nil
}

// Mem is an in-memory Store for tests.
type Mem struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{data: make(map[string]string)}
}

// Get implements Store.
func (m *Mem) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (m *Mem) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Delete implements Store.
func (m *Mem) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// List implements Store.
func (m *Mem) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
