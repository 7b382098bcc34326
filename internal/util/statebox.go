// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides filesystem and path utilities for switchAccount.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StateBox manages the canonical state directory for switchAccount. All
// mutable non-secret application data (registry, logs) resolves through
// it; secret material never lands here, it goes through the OS keyring.
type StateBox struct {
	rootPath string
	readOnly bool
	mu       sync.RWMutex
}

// NewStateBox creates a StateBox rooted at SWITCHACCT_STATE_DIR, or
// ~/.switchaccount when unset. SWITCHACCT_READONLY=1 disables writes.
func NewStateBox() (*StateBox, error) {
	stateDir := os.Getenv("SWITCHACCT_STATE_DIR")
	if stateDir == "" {
		stateDir = "~/.switchaccount"
	}
	resolved, err := ExpandPath(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return &StateBox{
		rootPath: resolved,
		readOnly: os.Getenv("SWITCHACCT_READONLY") == "1",
	}, nil
}

// RootPath returns the resolved state directory.
func (sb *StateBox) RootPath() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.rootPath
}

// IsReadOnly reports whether write operations are disabled.
func (sb *StateBox) IsReadOnly() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.readOnly
}

// RegistryPath returns the path of the account registry file.
func (sb *StateBox) RegistryPath() string {
	return filepath.Join(sb.RootPath(), "accounts.json")
}

// LogsDir returns the path of the log directory.
func (sb *StateBox) LogsDir() string {
	return filepath.Join(sb.RootPath(), "logs")
}

// ResolvePath joins a relative path with the state box root. Absolute and
// tilde paths are expanded and returned as-is.
func (sb *StateBox) ResolvePath(relativePath string) string {
	if relativePath == "" {
		return sb.RootPath()
	}
	if strings.HasPrefix(relativePath, "~") || filepath.IsAbs(relativePath) {
		resolved, err := ExpandPath(relativePath)
		if err != nil {
			return filepath.Clean(relativePath)
		}
		return resolved
	}
	return filepath.Join(sb.RootPath(), relativePath)
}

// EnsureDir creates path with 0700 permissions if missing, including
// parents.
func (sb *StateBox) EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
