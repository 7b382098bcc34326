// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package creds

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrRefreshRejected is returned when the token endpoint declines a
// refresh (network error, non-2xx, revoked grant). It triggers recovery
// inside the service and is not surfaced to callers of GetToken.
var ErrRefreshRejected = errors.New("creds: refresh rejected")

// Refresher exchanges a refresh token for a fresh access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher performs the standard refresh_token grant: a
// form-encoded POST of grant_type, refresh_token, client_id and
// client_secret to the token endpoint. No retry inside a call; the
// caller decides whether to fall back to recovery.
type OAuthRefresher struct {
	conf *oauth2.Config
}

// DefaultTokenURL is the Google OAuth token endpoint the host's identity
// provider uses.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// NewOAuthRefresher creates a refresher for the given client credentials.
// An empty tokenURL selects DefaultTokenURL.
func NewOAuthRefresher(clientID, clientSecret, tokenURL string) *OAuthRefresher {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &OAuthRefresher{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}

// Refresh implements Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrRefreshRejected)
	}
	src := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}
	return tok, nil
}
