// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// StoreOptions configures the report store.
type StoreOptions struct {
	// Dir is the directory for BadgerDB files. Required unless InMemory.
	Dir string

	// InMemory keeps all data in RAM with no disk persistence. Used by
	// tests and by deployments that only want the live API surface.
	InMemory bool

	// Logger receives BadgerDB's internal log output at the harness's
	// levels. When nil, BadgerDB logging is disabled entirely.
	Logger *logging.Logger
}

// Store persists failure reports and session summaries in BadgerDB.
//
// Key layout:
//
//	report/<session>/<report-id>   one crash or ANR report, JSON
//	session/<session>/summary      end-of-session summary, JSON
//
// Report ids sort lexicographically within a session (ANR-0001, CRASH-0001,
// ...), so prefix scans return a stable order for free.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type Store struct {
	db       *badger.DB
	inMemory bool
	logger   *logging.Logger
}

// badgerLogger adapts the harness logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenStore opens the report store.
//
// # Description
//
// Opens a BadgerDB at opts.Dir, or in memory when opts.InMemory is set.
// The directory is created if missing. Persistent stores use synchronous
// writes; a report that was acknowledged survives a crash.
//
// # Outputs
//
//   - *Store: the opened store. Caller must Close it.
//   - error: non-nil when the directory is invalid or the database cannot
//     be opened.
func OpenStore(opts StoreOptions) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store dir is required for persistent mode")
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithSyncWrites(false)
	} else {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", opts.Dir, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Dir).WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithNumVersionsToKeep(1)

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerLogger{logger: opts.Logger.With("component", "store")})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.Config{Quiet: true})
	}

	return &Store{
		db:       db,
		inMemory: opts.InMemory,
		logger:   logger.With("component", "store"),
	}, nil
}

// StoredReport is one persisted report document.
type StoredReport struct {
	// ID is the report identifier (for example "CRASH-0001").
	ID string `json:"id"`

	// Data is the report as it was saved.
	Data json.RawMessage `json:"data"`
}

func reportKey(sessionID, reportID string) []byte {
	return []byte("report/" + sessionID + "/" + reportID)
}

func reportPrefix(sessionID string) []byte {
	return []byte("report/" + sessionID + "/")
}

func summaryKey(sessionID string) []byte {
	return []byte("session/" + sessionID + "/summary")
}

// validKeyPart rejects identifiers that would break the key layout.
func validKeyPart(s string) error {
	if s == "" {
		return errors.New("identifier must not be empty")
	}
	if strings.Contains(s, "/") {
		return fmt.Errorf("identifier %q must not contain '/'", s)
	}
	return nil
}

// SaveReport persists one crash or ANR report under the session.
//
// The report is stored as JSON; any value the correlator exports marshals
// cleanly. Saving the same report id twice overwrites.
func (s *Store) SaveReport(ctx context.Context, sessionID, reportID string, report any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKeyPart(sessionID); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	if err := validKeyPart(reportID); err != nil {
		return fmt.Errorf("report id: %w", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", reportID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(reportKey(sessionID, reportID), data)
	})
	if err != nil {
		return fmt.Errorf("save report %s: %w", reportID, err)
	}

	s.logger.Debug("report saved", "session_id", sessionID, "report_id", reportID, "bytes", len(data))
	return nil
}

// Reports returns every report saved under the session, in key order.
// A session with no reports yields an empty slice.
func (s *Store) Reports(ctx context.Context, sessionID string) ([]StoredReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validKeyPart(sessionID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	prefix := reportPrefix(sessionID)
	reports := []StoredReport{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read report %s: %w", id, err)
			}
			reports = append(reports, StoredReport{ID: id, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan reports for %s: %w", sessionID, err)
	}

	return reports, nil
}

// SaveSessionSummary persists the end-of-session summary document,
// overwriting any previous summary for the session.
func (s *Store) SaveSessionSummary(ctx context.Context, sessionID string, summary any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKeyPart(sessionID); err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode session summary: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(summaryKey(sessionID), data)
	})
	if err != nil {
		return fmt.Errorf("save session summary: %w", err)
	}

	s.logger.Debug("session summary saved", "session_id", sessionID, "bytes", len(data))
	return nil
}

// SessionSummary returns the stored summary for the session, or ErrNotFound
// when none was saved.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validKeyPart(sessionID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(summaryKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("summary for session %s: %w", sessionID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Sessions lists every session id that has a stored summary, in key order.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte("session/")
	suffix := "/summary"
	ids := []string{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := strings.TrimSuffix(strings.TrimPrefix(key, "session/"), suffix)
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	return ids, nil
}

// Close releases the database. Safe to call once per store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close report store: %w", err)
	}
	return nil
}
