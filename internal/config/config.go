// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the switchAccount YAML configuration and applies
// environment overrides. Everything has a usable default; a missing
// config file is not an error.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/traylinx/switchAccount/internal/util"
)

// Config is the application configuration, loaded from a YAML file.
type Config struct {
	// StateDBPath is the host application's state database. The default
	// covers current host builds on Linux; macOS and Windows installs
	// set it explicitly.
	StateDBPath string `yaml:"state-db-path"`

	// Store key names inside the host state database. They shift across
	// host versions, so they are configurable.
	StatusKey    string `yaml:"status-key"`
	TokenBlobKey string `yaml:"token-blob-key"`
	IdentityKey  string `yaml:"identity-key"`

	// OAuth holds the client credentials used for the refresh grant.
	OAuth OAuthConfig `yaml:"oauth"`

	// KeyringService names the OS keyring service under which secrets
	// are stored.
	KeyringService string `yaml:"keyring-service"`

	// SkewMinutes is subtracted from token expiry before a proactive
	// refresh triggers.
	SkewMinutes int `yaml:"skew-minutes"`
	// RecoveredTTLMinutes bounds tokens recovered from the state store.
	RecoveredTTLMinutes int `yaml:"recovered-ttl-minutes"`

	// Host and Port bind the local management API.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
	// LoggingToFile writes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// WatchStateDB re-captures credentials when the host rewrites its
	// state database.
	WatchStateDB bool `yaml:"watch-state-db"`
}

// OAuthConfig carries the client credentials for the token endpoint.
// The secret values usually come from the environment, not the file.
type OAuthConfig struct {
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
	TokenURL     string `yaml:"token-url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StateDBPath:         "~/.config/HostEditor/User/globalStorage/state.vscdb",
		StatusKey:           "auth.userStatus",
		TokenBlobKey:        "auth.tokenState",
		IdentityKey:         "auth.currentUser",
		KeyringService:      "switchaccount",
		SkewMinutes:         5,
		RecoveredTTLMinutes: 30,
		Host:                "127.0.0.1",
		Port:                7317,
	}
}

// Load reads the config at path over the defaults. A missing file yields
// the defaults; a malformed file is an error. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()

	resolved, err := util.ExpandPath(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("config: resolve state-db-path: %w", err)
	}
	cfg.StateDBPath = resolved
	return cfg, nil
}

// applyEnv lets the environment override file values. Client credentials
// in particular should come from the environment or a .env file rather
// than sit in the config on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv("SWITCHACCT_STATE_DB"); v != "" {
		c.StateDBPath = v
	}
	if v := os.Getenv("SWITCHACCT_CLIENT_ID"); v != "" {
		c.OAuth.ClientID = v
	}
	if v := os.Getenv("SWITCHACCT_CLIENT_SECRET"); v != "" {
		c.OAuth.ClientSecret = v
	}
	if v := os.Getenv("SWITCHACCT_TOKEN_URL"); v != "" {
		c.OAuth.TokenURL = v
	}
	if os.Getenv("SWITCHACCT_DEBUG") == "1" {
		c.Debug = true
	}
}

// Skew returns the refresh skew as a duration.
func (c *Config) Skew() time.Duration {
	return time.Duration(c.SkewMinutes) * time.Minute
}

// RecoveredTTL returns the out-of-band recovery TTL as a duration.
func (c *Config) RecoveredTTL() time.Duration {
	return time.Duration(c.RecoveredTTLMinutes) * time.Minute
}
