// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package snapshot captures and restores the host's opaque
// current-identity value. A snapshot is taken verbatim and replayed
// verbatim; the blob is only ever decoded best-effort to derive an index
// key, never to rewrite its contents. Switching relies on the state
// store's single-statement atomicity: the identity key is either fully
// replaced or untouched.
package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/switchAccount/internal/secretstore"
	"github.com/traylinx/switchAccount/internal/statestore"
)

var (
	// ErrSnapshotNotFound is returned by SwitchTo when no snapshot exists
	// for the email. The identity key is left untouched.
	ErrSnapshotNotFound = errors.New("snapshot: no snapshot for account")
	// ErrStoreWrite wraps a failed identity-key write. The write is a
	// single atomic statement, so the store is unchanged on failure.
	ErrStoreWrite = errors.New("snapshot: state store write failed")
	// ErrNothingToSave is returned when the identity key is absent.
	ErrNothingToSave = errors.New("snapshot: identity key not present in state store")
)

// SentinelEmail indexes snapshots whose blob yielded no email.
const SentinelEmail = "unknown"

// snapshotsKey is the secret-store key holding the snapshot map.
const snapshotsKey = "snapshots"

// Snapshot is one verbatim capture of the identity key, indexed by the
// email found inside the blob. Binary blobs are stored base64-encoded.
type Snapshot struct {
	Email        string    `json:"email"`
	IdentityBlob string    `json:"identityBlob"`
	Encoding     string    `json:"encoding,omitempty"` // "" (raw text) or "base64"
	SavedAt      time.Time `json:"savedAt"`
}

// Manager saves, lists, and restores identity snapshots.
type Manager struct {
	state       statestore.Store
	secrets     secretstore.Store
	identityKey string
	now         func() time.Time
}

// NewManager creates a snapshot manager over the given stores.
// identityKey names the host's current-identity entry.
func NewManager(state statestore.Store, secrets secretstore.Store, identityKey string) *Manager {
	return &Manager{
		state:       state,
		secrets:     secrets,
		identityKey: identityKey,
		now:         time.Now,
	}
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// emailFromBlob extracts an email from the identity blob, purely for use
// as an index key. JSON records are read with gjson; anything else falls
// back to a pattern scan of the raw and base64-decoded bytes.
func emailFromBlob(blob []byte) string {
	doc := string(blob)
	if gjson.Valid(doc) {
		if email := gjson.Get(doc, "email").String(); email != "" {
			return strings.ToLower(email)
		}
	}
	if m := emailPattern.Find(blob); m != nil {
		return strings.ToLower(string(m))
	}
	trimmed := strings.Trim(strings.TrimSpace(doc), `"`)
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		if m := emailPattern.Find(decoded); m != nil {
			return strings.ToLower(string(m))
		}
	}
	return ""
}

// Save captures the current identity value verbatim and stores it under
// the email found inside it, overwriting any prior snapshot for that
// email. A blob with no recoverable email is indexed under SentinelEmail.
func (m *Manager) Save(ctx context.Context) (*Snapshot, error) {
	blob, ok, err := m.state.Get(ctx, m.identityKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(blob) == 0 {
		return nil, ErrNothingToSave
	}

	snap := &Snapshot{SavedAt: m.now()}
	if utf8.Valid(blob) {
		snap.IdentityBlob = string(blob)
	} else {
		snap.IdentityBlob = base64.StdEncoding.EncodeToString(blob)
		snap.Encoding = "base64"
	}

	snap.Email = emailFromBlob(blob)
	if snap.Email == "" {
		log.WithField("key", m.identityKey).Warn("identity blob yielded no email; indexing snapshot under sentinel")
		snap.Email = SentinelEmail
	}

	if err := m.put(snap); err != nil {
		return nil, err
	}
	log.WithField("email", snap.Email).Info("saved identity snapshot")
	return snap, nil
}

// SwitchTo overwrites the identity key with the verbatim blob saved for
// email. One blind atomic write; no read-modify-verify step.
func (m *Manager) SwitchTo(ctx context.Context, email string) error {
	snap, err := m.get(email)
	if err != nil {
		return err
	}
	blob := []byte(snap.IdentityBlob)
	if snap.Encoding == "base64" {
		blob, err = base64.StdEncoding.DecodeString(snap.IdentityBlob)
		if err != nil {
			return fmt.Errorf("snapshot: stored blob for %s is corrupt: %w", email, err)
		}
	}
	if err := m.state.Set(ctx, m.identityKey, blob); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	log.WithField("email", snap.Email).Info("switched active identity")
	return nil
}

// Delete removes the snapshot for email. Missing snapshots are ignored.
func (m *Manager) Delete(email string) error {
	doc, err := m.loadDoc()
	if err != nil {
		return err
	}
	updated, err := sjson.Delete(doc, keyPath(email))
	if err != nil {
		return fmt.Errorf("snapshot: remove %s: %w", email, err)
	}
	return m.secrets.Set(snapshotsKey, updated)
}

// List returns all snapshots ordered by email.
func (m *Manager) List() ([]*Snapshot, error) {
	doc, err := m.loadDoc()
	if err != nil {
		return nil, err
	}
	var out []*Snapshot
	var decodeErr error
	gjson.Parse(doc).ForEach(func(_, value gjson.Result) bool {
		var snap Snapshot
		if err := json.Unmarshal([]byte(value.Raw), &snap); err != nil {
			decodeErr = fmt.Errorf("snapshot: decode stored snapshot: %w", err)
			return false
		}
		out = append(out, &snap)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Manager) get(email string) (*Snapshot, error) {
	doc, err := m.loadDoc()
	if err != nil {
		return nil, err
	}
	result := gjson.Get(doc, keyPath(email))
	if !result.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, strings.ToLower(email))
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(result.Raw), &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode stored snapshot: %w", err)
	}
	return &snap, nil
}

func (m *Manager) put(snap *Snapshot) error {
	doc, err := m.loadDoc()
	if err != nil {
		return err
	}
	updated, err := sjson.Set(doc, keyPath(snap.Email), snap)
	if err != nil {
		return fmt.Errorf("snapshot: store %s: %w", snap.Email, err)
	}
	return m.secrets.Set(snapshotsKey, updated)
}

// loadDoc returns the snapshot map document, defaulting to empty.
func (m *Manager) loadDoc() (string, error) {
	doc, err := m.secrets.Get(snapshotsKey)
	if errors.Is(err, secretstore.ErrNotFound) {
		return "{}", nil
	}
	if err != nil {
		return "", err
	}
	return doc, nil
}

// keyPath escapes the email for use as a single gjson/sjson map key;
// emails contain dots, which are path separators otherwise.
func keyPath(email string) string {
	email = strings.ToLower(email)
	email = strings.ReplaceAll(email, "\\", "\\\\")
	email = strings.ReplaceAll(email, ".", "\\.")
	email = strings.ReplaceAll(email, "*", "\\*")
	email = strings.ReplaceAll(email, "?", "\\?")
	return email
}
