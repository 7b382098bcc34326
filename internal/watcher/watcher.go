// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher observes the host state database and notifies when the
// host rewrites it, so a fresh login in the host can be captured without
// user action. SQLite rewrites arrive as bursts of write/rename events on
// the db file and its -wal/-journal siblings, so notifications are
// debounced.
package watcher

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// defaultDebounce collapses one burst of SQLite file events into a
// single notification.
const defaultDebounce = 2 * time.Second

// Watcher emits a callback after the host state database changes.
type Watcher struct {
	dbPath   string
	onChange func()
	debounce time.Duration

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for the state database at dbPath. onChange runs
// on the watcher goroutine after each debounced burst of changes.
func New(dbPath string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: SQLite swaps files during checkpoints, and a
	// watch on the file itself dies with the inode.
	if err := fsw.Add(filepath.Dir(dbPath)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		dbPath:   dbPath,
		onChange: onChange,
		debounce: defaultDebounce,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Stop ends watching. Pending debounced notifications are dropped.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	err := w.fsw.Close()
	<-w.doneCh
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	base := filepath.Base(w.dbPath)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(base, event) {
				continue
			}
			log.WithFields(log.Fields{"op": event.Op.String(), "file": filepath.Base(event.Name)}).
				Debug("state database changed")
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("state database watcher error")
		}
	}
}

// relevant filters events down to the db file and its WAL/journal
// siblings.
func (w *Watcher) relevant(base string, event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}

// setDebounce adjusts the debounce interval; used by tests.
func (w *Watcher) setDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.onChange()
	})
}
