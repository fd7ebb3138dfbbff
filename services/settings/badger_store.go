// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for the settings database.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites makes every Save durable before it returns.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. nil disables them.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a durable on-disk configuration at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a Store backed by an embedded BadgerDB.
//
// Each setting is one key. Absent keys read as the default value.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if needed) the settings database.
//
// # Description
//
// Opens a BadgerDB at cfg.Path, or in memory if cfg.InMemory is true.
// The directory is created with 0700 permissions because the database
// holds a credential.
//
// # Inputs
//
//   - cfg: Database configuration. Path is required unless InMemory.
//
// # Outputs
//
//   - *BadgerStore: The store. Caller must call Close().
//   - error: Non-nil if the path is missing or the database cannot open.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent settings database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, fmt.Errorf("create settings directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load reads all settings, applying defaults for missing keys.
func (s *BadgerStore) Load(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}

	var out Settings
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if out.Credential, err = getString(txn, KeyCredential); err != nil {
			return err
		}
		out.SolverEndpointURL, err = getString(txn, KeySolverEndpointURL)
		return err
	})
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return out.WithDefaults(), nil
}

// Save validates s and writes both keys in one transaction. An empty
// credential deletes the stored one.
func (s *BadgerStore) Save(ctx context.Context, in Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in = in.WithDefaults()
	if err := in.Validate(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if in.Credential == "" {
			if err := txn.Delete([]byte(KeyCredential)); err != nil {
				return err
			}
		} else if err := txn.Set([]byte(KeyCredential), []byte(in.Credential)); err != nil {
			return err
		}
		return txn.Set([]byte(KeySolverEndpointURL), []byte(in.SolverEndpointURL))
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

var _ Store = (*BadgerStore)(nil)
