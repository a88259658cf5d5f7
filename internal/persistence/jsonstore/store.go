// Package jsonstore implements the persistence stores as three independent
// JSON documents on the local filesystem. Every save rewrites the whole
// document through a temp file and an atomic rename, so a crash mid-write
// leaves the previous complete document in place.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/example/plugwarden/internal/persistence"
)

const (
	usersFile    = "users.json"
	calendarFile = "calendar.json"
	devicesFile  = "devices.json"
)

// Store reads and writes the three plugwarden state documents under a
// single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New returns a Store rooted at dir, creating the directory when missing.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonstore: create data dir: %w", err)
	}
	return &Store{dir: dir, logger: logger.With("component", "jsonstore")}, nil
}

// LoadUsers returns the persisted ledger document. A missing file yields an
// empty document; a corrupt one yields an empty document together with
// ErrCorruptDocument.
func (s *Store) LoadUsers(ctx context.Context) (persistence.UsersDocument, error) {
	doc := persistence.UsersDocument{}
	err := s.load(ctx, usersFile, &doc)
	if err != nil {
		return persistence.UsersDocument{}, err
	}
	return doc, nil
}

// SaveUsers atomically replaces the ledger document.
func (s *Store) SaveUsers(ctx context.Context, doc persistence.UsersDocument) error {
	return s.save(ctx, usersFile, doc)
}

// LoadBookings returns the persisted calendar document.
func (s *Store) LoadBookings(ctx context.Context) (persistence.CalendarDocument, error) {
	doc := persistence.CalendarDocument{}
	err := s.load(ctx, calendarFile, &doc)
	if err != nil {
		return persistence.CalendarDocument{}, err
	}
	return doc, nil
}

// SaveBookings atomically replaces the calendar document.
func (s *Store) SaveBookings(ctx context.Context, doc persistence.CalendarDocument) error {
	return s.save(ctx, calendarFile, doc)
}

// LoadDevices returns the persisted plug descriptors.
func (s *Store) LoadDevices(ctx context.Context) (persistence.DevicesDocument, error) {
	doc := persistence.DevicesDocument{}
	err := s.load(ctx, devicesFile, &doc)
	if err != nil {
		return persistence.DevicesDocument{}, err
	}
	return doc, nil
}

// SaveDevices atomically replaces the plug descriptor document.
func (s *Store) SaveDevices(ctx context.Context, doc persistence.DevicesDocument) error {
	return s.save(ctx, devicesFile, doc)
}

func (s *Store) load(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jsonstore: read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonstore: decode %s: %w: %w", name, persistence.ErrCorruptDocument, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonstore: encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonstore: create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonstore: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonstore: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonstore: replace %s: %w", name, err)
	}
	s.logger.Debug("document saved", "file", name, "bytes", len(data))
	return nil
}
