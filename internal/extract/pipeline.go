// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package extract recovers OAuth credentials from the host application's
// state store. The host publishes no schema and has reshaped its identity
// records across releases, so extraction is an ordered set of strategies
// that each fail independently; the pipeline returns the first non-empty
// access token. Extraction is best-effort by design.
package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/traylinx/switchAccount/internal/wire"
)

// Source identifies which strategy produced a credential tuple.
type Source string

const (
	// SourceStatus is the inline JSON identity record.
	SourceStatus Source = "status"
	// SourceTokenBlob is the structured binary token message.
	SourceTokenBlob Source = "token-blob"
	// SourceByteScan is the raw pattern-match fallback.
	SourceByteScan Source = "byte-scan"
)

// ErrNoCredentials is returned when every strategy came up empty. It is
// the pipeline's only failure mode; decoder errors never escape.
var ErrNoCredentials = errors.New("extract: no credentials found in state store")

// Tuple is a normalized credential extraction result. AccessToken is
// always non-empty; RefreshToken and Email are best-effort.
type Tuple struct {
	AccessToken  string
	RefreshToken string
	Email        string
	Source       Source
	ExtractedAt  time.Time
}

// Keys names the state-store entries the pipeline reads. Key names vary
// by host version, so they are injected rather than hardcoded here.
type Keys struct {
	// Status holds the inline JSON identity record {email, apiKey}.
	Status string
	// TokenBlob holds the base64 binary token message.
	TokenBlob string
	// Identity holds the opaque current-identity value; only the raw
	// byte-scan fallback reads it.
	Identity string
}

// DefaultKeys returns the key names used by current host builds.
func DefaultKeys() Keys {
	return Keys{
		Status:    "auth.userStatus",
		TokenBlob: "auth.tokenState",
		Identity:  "auth.currentUser",
	}
}

// Field numbers inside the binary token blob. The outer wrapper moved
// from field 6 to field 1 when the host switched to its unified store
// layout, so both are tried in order.
var (
	wrapperFields = []int{6, 1}

	innerFieldMap = map[int]string{
		1: "access",
		3: "refresh",
	}
)

// Reader abstracts the read half of statestore.Store so the pipeline can
// also run over captured fixtures.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Pipeline runs the extraction strategies against one state store.
type Pipeline struct {
	store Reader
	keys  Keys
}

// NewPipeline creates a pipeline over store using the given key names.
func NewPipeline(store Reader, keys Keys) *Pipeline {
	return &Pipeline{store: store, keys: keys}
}

// Extract runs strategies in order and returns the first tuple with a
// non-empty access token, or ErrNoCredentials. Individual strategy
// failures are logged at debug and never surfaced.
func (p *Pipeline) Extract(ctx context.Context) (*Tuple, error) {
	type strategy struct {
		source Source
		run    func(ctx context.Context) *Tuple
	}
	strategies := []strategy{
		{SourceStatus, p.fromStatus},
		{SourceTokenBlob, p.fromTokenBlob},
		{SourceByteScan, p.fromByteScan},
	}
	for _, s := range strategies {
		if tuple := s.run(ctx); tuple != nil && tuple.AccessToken != "" {
			tuple.Source = s.source
			tuple.ExtractedAt = time.Now()
			log.WithFields(log.Fields{"source": s.source, "email": tuple.Email}).
				Debug("extracted credentials from state store")
			return tuple, nil
		}
	}
	return nil, ErrNoCredentials
}

// fromStatus reads the inline JSON identity record and takes its api key
// verbatim as the access token. No binary decoding involved.
func (p *Pipeline) fromStatus(ctx context.Context) *Tuple {
	raw, ok, err := p.store.Get(ctx, p.keys.Status)
	if err != nil || !ok {
		return nil
	}
	doc := string(raw)
	if !gjson.Valid(doc) {
		log.WithField("key", p.keys.Status).Debug("status record is not valid JSON")
		return nil
	}
	token := gjson.Get(doc, "apiKey").String()
	if token == "" {
		return nil
	}
	return &Tuple{
		AccessToken: token,
		Email:       gjson.Get(doc, "email").String(),
	}
}

// fromTokenBlob base64-decodes the binary token key, locates the oauth
// token sub-message by field number, and reads the access/refresh leaf
// fields inside it.
func (p *Pipeline) fromTokenBlob(ctx context.Context) *Tuple {
	raw, ok, err := p.store.Get(ctx, p.keys.TokenBlob)
	if err != nil || !ok {
		return nil
	}
	decoded := decodeBase64Value(raw)
	if decoded == nil {
		log.WithField("key", p.keys.TokenBlob).Debug("token blob is not base64")
		return nil
	}
	for _, field := range wrapperFields {
		inner, found := wire.FindField(decoded, field)
		if !found {
			continue
		}
		leaves, err := wire.ParseLeafStrings(inner, innerFieldMap)
		if err != nil {
			log.WithField("field", field).WithError(err).Debug("token sub-message decode failed")
			continue
		}
		if leaves["access"] == "" {
			continue
		}
		return &Tuple{
			AccessToken:  leaves["access"],
			RefreshToken: leaves["refresh"],
		}
	}
	return nil
}

// Token shapes emitted by the host's identity provider. The access-token
// prefix is fixed; refresh tokens show up with a couple of prefix
// variants.
var (
	accessTokenPattern  = regexp.MustCompile(`ya29\.[A-Za-z0-9_\-\.]{20,}`)
	refreshTokenPattern = regexp.MustCompile(`1//[A-Za-z0-9_\-]{20,}`)
)

// fromByteScan scans the raw bytes of every known key for token-shaped
// substrings. Among all matches the last byte offset wins: the most
// recent write tends to land later in the serialized layout. That is a
// heuristic, not a guarantee, and is a known source of flakiness when the
// store holds stale tokens from earlier sessions.
func (p *Pipeline) fromByteScan(ctx context.Context) *Tuple {
	var haystack []byte
	for _, key := range []string{p.keys.Status, p.keys.TokenBlob, p.keys.Identity} {
		if key == "" {
			continue
		}
		raw, ok, err := p.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		haystack = append(haystack, raw...)
		// Base64 payloads hide literals; scan the decoded form too.
		if decoded := decodeBase64Value(raw); decoded != nil {
			haystack = append(haystack, decoded...)
		}
	}
	if len(haystack) == 0 {
		return nil
	}
	access := lastMatch(haystack, accessTokenPattern)
	if access == "" {
		return nil
	}
	return &Tuple{
		AccessToken:  access,
		RefreshToken: lastMatch(haystack, refreshTokenPattern),
	}
}

// lastMatch returns the match with the largest starting byte offset.
func lastMatch(buf []byte, re *regexp.Regexp) string {
	locs := re.FindAllIndex(buf, -1)
	if len(locs) == 0 {
		return ""
	}
	last := locs[len(locs)-1]
	return string(buf[last[0]:last[1]])
}

// decodeBase64Value decodes a store value that may arrive as bare base64
// or as a JSON-quoted base64 string. Returns nil when the value does not
// decode under the standard or URL-safe alphabets.
func decodeBase64Value(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(s); err == nil {
			return decoded
		}
	}
	return nil
}
