// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package state persists the presence state as a small JSON document. Writes go to a temporary
// file in the same directory that is renamed over the state file, so readers only ever see a
// complete old or a complete new state.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/wneessen/homewatch/internal/logger"
	"github.com/wneessen/homewatch/internal/presence"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

var ErrNegativeTimestamp = errors.New("stored timestamp is negative")

// Store reads and writes the presence state file. The file is owned by a single process.
type Store struct {
	path   string
	logger *logger.Logger
}

// New returns a Store for the state file at path.
func New(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Store{path: path, logger: log}, nil
}

// Path returns the location of the state file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted state. A missing, unreadable or corrupt file yields the default
// state; the problem is logged but never returned.
func (s *Store) Load() presence.State {
	st, err := s.read()
	switch {
	case err == nil:
		return st
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug("no state file found, starting with unknown presence", slog.String("path", s.path))
	default:
		s.logger.Warn("failed to read state file, starting with unknown presence",
			slog.String("path", s.path), logger.Err(err))
	}
	return presence.DefaultState()
}

func (s *Store) read() (presence.State, error) {
	st := presence.DefaultState()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return st, err
	}
	if err = json.Unmarshal(data, &st); err != nil {
		return presence.DefaultState(), fmt.Errorf("failed to decode state file: %w", err)
	}
	if st.LastTimestamp < 0 {
		return presence.DefaultState(), ErrNegativeTimestamp
	}
	return st, nil
}

// Save atomically replaces the state file with st.
func (s *Store) Save(st presence.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err = renameio.WriteFile(s.path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write state file %q: %w", s.path, err)
	}
	return nil
}
