// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package creds keeps one cached OAuth credential per account fresh:
// serving from cache inside the expiry skew, refreshing through the token
// endpoint when possible, and re-extracting from the host state store
// when refresh fails.
package creds

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Account is the persisted credential record for one email. ExpiresAt
// tracks only the access token's lifetime; the refresh token is assumed
// valid until the authority rejects it.
type Account struct {
	Email        string    `json:"email"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// State describes where an account credential sits in its lifecycle.
type State string

const (
	StateAbsent       State = "absent"
	StateValid        State = "valid"
	StateExpiringSoon State = "expiring-soon"
	StateExpired      State = "expired"
	StateRecovering   State = "recovering"
)

// credentialKeyPrefix namespaces per-account records in the secret store.
const credentialKeyPrefix = "credential."

// credentialKey returns the secret-store key for email. Emails are
// case-insensitive, so the key is always lowercase.
func credentialKey(email string) string {
	return credentialKeyPrefix + strings.ToLower(email)
}

// stateAt derives the lifecycle state of a at the given instant.
func (a *Account) stateAt(now time.Time, skew time.Duration) State {
	if a == nil {
		return StateAbsent
	}
	switch {
	case now.Before(a.ExpiresAt.Add(-skew)):
		return StateValid
	case now.Before(a.ExpiresAt):
		return StateExpiringSoon
	default:
		return StateExpired
	}
}

// fresh reports whether the cached access token can be served without
// contacting anything: now < expiresAt - skew.
func (a *Account) fresh(now time.Time, skew time.Duration) bool {
	return now.Before(a.ExpiresAt.Add(-skew))
}

func encodeAccount(a *Account) (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("creds: encode record for %s: %w", a.Email, err)
	}
	return string(raw), nil
}

func decodeAccount(raw string) (*Account, error) {
	var a Account
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("creds: decode record: %w", err)
	}
	return &a, nil
}
