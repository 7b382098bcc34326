// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package creds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAccount/internal/extract"
	"github.com/traylinx/switchAccount/internal/secretstore"
)

// ErrAccountNotFound is returned when no record exists for an email and
// recovery from the state store also produced nothing.
var ErrAccountNotFound = errors.New("creds: account not found")

const (
	// defaultSkew is subtracted from expiry to refresh proactively.
	defaultSkew = 5 * time.Minute
	// defaultRecoveredTTL bounds tokens recovered out-of-band, where the
	// true server lifetime is unknown.
	defaultRecoveredTTL = 30 * time.Minute
	// defaultServerLifetime stands in when the endpoint omits expiry.
	defaultServerLifetime = time.Hour
)

// Options tune the lifecycle service. Zero values select the defaults.
type Options struct {
	Skew         time.Duration
	RecoveredTTL time.Duration
	Now          func() time.Time
}

// Service is the per-account credential lifecycle store. It takes no
// per-account lock: GetToken is idempotent within the skew window and the
// refresh grant is idempotent at the authority for a reusable refresh
// token, so last-writer-wins on the secret store is acceptable.
type Service struct {
	secrets      secretstore.Store
	pipeline     *extract.Pipeline
	refresher    Refresher
	skew         time.Duration
	recoveredTTL time.Duration
	now          func() time.Time
}

// NewService wires the lifecycle store. pipeline and refresher may be
// exercised lazily, never at construction.
func NewService(secrets secretstore.Store, pipeline *extract.Pipeline, refresher Refresher, opts *Options) *Service {
	s := &Service{
		secrets:      secrets,
		pipeline:     pipeline,
		refresher:    refresher,
		skew:         defaultSkew,
		recoveredTTL: defaultRecoveredTTL,
		now:          time.Now,
	}
	if opts != nil {
		if opts.Skew > 0 {
			s.skew = opts.Skew
		}
		if opts.RecoveredTTL > 0 {
			s.recoveredTTL = opts.RecoveredTTL
		}
		if opts.Now != nil {
			s.now = opts.Now
		}
	}
	return s
}

// Capture extracts the currently active identity from the state store and
// persists it. The extracted email is authoritative: when it differs from
// the caller's argument a warning is logged but the capture proceeds.
func (s *Service) Capture(ctx context.Context, email string) (*Account, error) {
	tuple, err := s.pipeline.Extract(ctx)
	if err != nil {
		return nil, err
	}
	resolved := strings.ToLower(tuple.Email)
	if resolved == "" {
		resolved = strings.ToLower(email)
	}
	if resolved == "" {
		return nil, fmt.Errorf("creds: captured credentials carry no email and none was given")
	}
	if email != "" && !strings.EqualFold(email, resolved) {
		log.WithFields(log.Fields{"requested": email, "active": resolved}).
			Warn("active identity does not match requested account; capturing active identity")
	}
	return s.persistTuple(resolved, tuple)
}

// GetToken returns the best access token available for email. Cache hit
// inside the skew window is served directly; otherwise refresh, then
// recovery, then the last-known stale token. A stale token is still
// returned without error so the downstream protected call reports the
// authorization failure itself rather than this layer inventing one.
func (s *Service) GetToken(ctx context.Context, email string) (string, error) {
	acc, err := s.load(email)
	if err != nil {
		recovered, rerr := s.Recover(ctx, email)
		if rerr != nil {
			return "", fmt.Errorf("%w: %s", ErrAccountNotFound, strings.ToLower(email))
		}
		return recovered.AccessToken, nil
	}

	now := s.now()
	if acc.fresh(now, s.skew) {
		return acc.AccessToken, nil
	}

	if err := s.refresh(ctx, acc); err == nil {
		return acc.AccessToken, nil
	} else {
		log.WithFields(log.Fields{"email": acc.Email, "state": acc.stateAt(now, s.skew)}).
			WithError(err).Debug("refresh failed, attempting recovery")
	}

	if recovered, err := s.Recover(ctx, email); err == nil {
		return recovered.AccessToken, nil
	}

	log.WithField("email", acc.Email).Warn("serving stale access token; refresh and recovery both failed")
	return acc.AccessToken, nil
}

// refresh exchanges the record's refresh token and updates the record in
// place on success. Not retried within the call.
func (s *Service) refresh(ctx context.Context, acc *Account) error {
	if acc.RefreshToken == "" {
		return fmt.Errorf("%w: record has no refresh token", ErrRefreshRejected)
	}
	tok, err := s.refresher.Refresh(ctx, acc.RefreshToken)
	if err != nil {
		return err
	}
	acc.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" && tok.RefreshToken != acc.RefreshToken {
		// The authority rotated the grant; keep the replacement.
		acc.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		acc.ExpiresAt = s.now().Add(defaultServerLifetime)
	} else {
		acc.ExpiresAt = tok.Expiry
	}
	return s.save(acc)
}

// Recover re-runs the extraction pipeline and overwrites the record for
// email with a fixed short TTL, since the true server lifetime is unknown
// for tokens recovered out-of-band.
func (s *Service) Recover(ctx context.Context, email string) (*Account, error) {
	tuple, err := s.pipeline.Extract(ctx)
	if err != nil {
		return nil, err
	}
	resolved := strings.ToLower(email)
	if resolved == "" {
		resolved = strings.ToLower(tuple.Email)
	}
	if resolved == "" {
		return nil, fmt.Errorf("creds: recovery found credentials but no account email")
	}
	if tuple.Email != "" && !strings.EqualFold(tuple.Email, resolved) {
		log.WithFields(log.Fields{"requested": resolved, "active": tuple.Email}).
			Warn("recovered credentials belong to a different active identity")
	}
	return s.persistTuple(resolved, tuple)
}

// persistTuple stores tuple under email, preserving CreatedAt across
// overwrites of an existing record.
func (s *Service) persistTuple(email string, tuple *extract.Tuple) (*Account, error) {
	now := s.now()
	acc := &Account{
		Email:        email,
		AccessToken:  tuple.AccessToken,
		RefreshToken: tuple.RefreshToken,
		ExpiresAt:    now.Add(s.recoveredTTL),
		CreatedAt:    now,
	}
	if prev, err := s.load(email); err == nil {
		acc.CreatedAt = prev.CreatedAt
		if acc.RefreshToken == "" {
			// A status-record capture has no refresh token; keep the
			// one already on file rather than losing refresh ability.
			acc.RefreshToken = prev.RefreshToken
		}
	}
	if err := s.save(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// HasValidOrRecoverable reports whether a record exists that is either
// unexpired or still carries a refresh token.
func (s *Service) HasValidOrRecoverable(email string) bool {
	acc, err := s.load(email)
	if err != nil {
		return false
	}
	return s.now().Before(acc.ExpiresAt) || acc.RefreshToken != ""
}

// StateOf reports the lifecycle state of email's record.
func (s *Service) StateOf(email string) State {
	acc, err := s.load(email)
	if err != nil {
		return StateAbsent
	}
	return acc.stateAt(s.now(), s.skew)
}

// Get returns the stored record for email without touching its lifecycle.
func (s *Service) Get(email string) (*Account, error) {
	return s.load(email)
}

// Delete removes the record for email.
func (s *Service) Delete(email string) error {
	return s.secrets.Delete(credentialKey(email))
}

// List returns all stored accounts ordered by email.
func (s *Service) List() ([]*Account, error) {
	keys, err := s.secrets.List()
	if err != nil {
		return nil, err
	}
	var out []*Account
	for _, key := range keys {
		if !strings.HasPrefix(key, credentialKeyPrefix) {
			continue
		}
		raw, err := s.secrets.Get(key)
		if err != nil {
			continue
		}
		acc, err := decodeAccount(raw)
		if err != nil {
			log.WithField("key", key).WithError(err).Warn("skipping undecodable credential record")
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Service) load(email string) (*Account, error) {
	raw, err := s.secrets.Get(credentialKey(email))
	if err != nil {
		return nil, err
	}
	return decodeAccount(raw)
}

func (s *Service) save(acc *Account) error {
	raw, err := encodeAccount(acc)
	if err != nil {
		return err
	}
	return s.secrets.Set(credentialKey(acc.Email), raw)
}
