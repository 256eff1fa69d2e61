// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
)

// defaultDebounce is how long the watcher waits for the file to settle
// before firing. Editors typically emit several events per save.
const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the init-sequence library when its file changes.
//
// # Description
//
// Watches the parent directory of the sequence file (editors replace files
// via rename, which breaks a direct file watch), filters events down to
// the target file, debounces them, and invokes the handler once per
// settled change.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handler  func()
	debounce time.Duration
	logger   *logging.Logger
}

// NewWatcher creates a watcher for the given sequence file. The handler is
// invoked after each debounced change; it should reload and re-register
// the library.
func NewWatcher(path string, debounce time.Duration, logger *logging.Logger, handler func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = logging.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		watcher:  fsw,
		handler:  handler,
		debounce: debounce,
		logger:   logger.With("component", "sequence_watcher"),
	}, nil
}

// Start begins watching. Blocks until the context is cancelled; run it in
// a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch sequence directory", "dir", dir, "error", err.Error())
		return
	}
	w.logger.Info("watching sequence file", "path", w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sequence watcher error", "error", err.Error())

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info("sequence file changed, reloading", "path", w.path)
			if w.handler != nil {
				w.handler()
			}
		}
	}
}

// relevant reports whether an event is a content change of the target file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
