// Copyright 2024-2026 Aiku AI

// Package credstore persists the session credentials a transport obtained at
// login so that a restart can resume without logging in again.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultDir is the state directory used when none is configured.
const DefaultDir = "data/state"

const fileName = "credentials.json"

// Credentials is the opaque session blob of a transport.
type Credentials struct {
	Network   string `json:"network"`
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	TeamID    string `json:"team_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// Valid reports whether the credentials carry enough to resume a session.
func (c Credentials) Valid() bool {
	return c.ServerURL != "" && c.Token != ""
}

// Store keeps credentials in a single JSON file inside a state directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. An empty dir means DefaultDir.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the credentials file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Save writes creds, replacing any previous file atomically.
func (s *Store) Save(creds Credentials) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, fileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// Load reads the stored credentials. The boolean is false when nothing has
// been stored yet.
func (s *Store) Load() (Credentials, bool, error) {
	var creds Credentials
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return creds, false, nil
	} else if err != nil {
		return creds, false, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err = json.Unmarshal(data, &creds); err != nil {
		return creds, false, fmt.Errorf("failed to parse %s: %w", s.Path(), err)
	}
	return creds, true, nil
}

// Delete removes the whole state directory. Deleting a missing directory is
// not an error.
func (s *Store) Delete() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove state directory: %w", err)
	}
	return nil
}
