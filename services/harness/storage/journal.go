// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage provides the durable layer of the harness: an append-only,
// CRC-checked journal of raw events (the crash-safe session archive) and a
// BadgerDB store for failure reports and session summaries.
//
// The two halves serve different access patterns. The journal is written on
// the hot path, one frame per event, and only ever read back wholesale when
// a session is replayed. The report store holds small, keyed documents that
// the API serves individually.
package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

var (
	// ErrJournalClosed is returned when appending to a closed journal.
	ErrJournalClosed = errors.New("journal is closed")

	// ErrCorruptRecord is returned when a journal frame fails its CRC
	// check or carries an impossible length.
	ErrCorruptRecord = errors.New("journal record corrupted")
)

// maxRecordSize bounds a single framed record. A length prefix above this
// is treated as corruption rather than honored as an allocation request.
const maxRecordSize = 1 << 20 // 1 MB

// frameHeaderSize is the fixed prefix of every record:
// 4-byte big-endian payload length + 4-byte big-endian CRC32 (IEEE).
const frameHeaderSize = 8

// Journal is an append-only write-ahead archive of one session's events.
//
// Each record is framed as [length][crc32][JSON payload]. The CRC covers
// the payload only; a mismatch on replay surfaces as ErrCorruptRecord. A
// torn final frame (the process died mid-write) is tolerated on replay and
// everything before it is recovered.
//
// # Thread Safety
//
// Safe for concurrent use. Appends are serialized by an internal mutex.
type Journal struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	logger   *logging.Logger
	appended int
	closed   bool
}

// JournalPath returns the on-disk location of a session's journal file.
func JournalPath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("events_%s.wal", sessionID))
}

// OpenJournal creates or reopens the journal for the given session under
// dir. The directory is created if missing; an existing journal is appended
// to, never truncated.
func OpenJournal(dir, sessionID string, logger *logging.Logger) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal dir must not be empty")
	}
	if sessionID == "" {
		return nil, errors.New("session id must not be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create journal directory %s: %w", dir, err)
	}

	path := JournalPath(dir, sessionID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	j := &Journal{
		path:   path,
		file:   file,
		logger: logger.With("component", "journal", "session_id", sessionID),
	}
	j.logger.Info("journal opened", "path", path)
	return j, nil
}

// Append frames and writes one event. The write is buffered by the OS;
// call Sync for a durability point. Callers treat failures as status, not
// as fatal: the in-memory log remains authoritative.
func (j *Journal) Append(ctx context.Context, e event.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", e.ID, err)
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("event %d exceeds record size limit (%d bytes)", e.ID, len(payload))
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload))
	copy(frame[frameHeaderSize:], payload)

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}
	if _, err := j.file.Write(frame); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	j.appended++
	return nil
}

// Sync flushes buffered writes to disk.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Appended returns how many records this handle has written.
func (j *Journal) Appended() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appended
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Close syncs and closes the journal file. Subsequent appends fail with
// ErrJournalClosed. Safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.file.Sync(); err != nil {
		j.logger.Warn("sync before close failed", "error", err.Error())
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	j.logger.Info("journal closed", "records", j.appended)
	return nil
}

// ReplayJournal reads every intact record from a journal file, in write
// order.
//
// A missing file yields an empty slice: a session that never journaled has
// nothing to replay. A torn final frame is dropped silently (interrupted
// last write), but a complete frame whose checksum does not match its
// payload fails with ErrCorruptRecord: that is damage, not interruption.
func ReplayJournal(path string) ([]event.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []event.Event{}, nil
		}
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	defer file.Close()

	var events []event.Event
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(file, header); err != nil {
			if err == io.EOF {
				break // clean end of journal
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break // torn header from an interrupted write
			}
			return nil, fmt.Errorf("read journal header: %w", err)
		}

		length := binary.BigEndian.Uint32(header[0:4])
		wantCRC := binary.BigEndian.Uint32(header[4:8])
		if length == 0 || length > maxRecordSize {
			return events, fmt.Errorf("%w: record length %d at record %d", ErrCorruptRecord, length, len(events)+1)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(file, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
				break // torn payload from an interrupted write
			}
			return nil, fmt.Errorf("read journal payload: %w", err)
		}

		if got := crc32.ChecksumIEEE(payload); got != wantCRC {
			return events, fmt.Errorf("%w: crc stored=%08x computed=%08x at record %d",
				ErrCorruptRecord, wantCRC, got, len(events)+1)
		}

		var e event.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return events, fmt.Errorf("%w: decode record %d: %v", ErrCorruptRecord, len(events)+1, err)
		}
		events = append(events, e)
	}

	return events, nil
}
