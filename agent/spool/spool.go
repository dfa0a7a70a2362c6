// Package spool is the on-disk holding area for captured screenshots
// awaiting upload. Capture tooling drops PNG files here; the uploader
// drains them and removes what the server accepted.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Spool struct {
	dir      string
	maxFiles int
}

func New(dir string, maxFiles int) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spool{dir: dir, maxFiles: maxFiles}, nil
}

func (s *Spool) Dir() string { return s.dir }

// Put writes one screenshot atomically so the uploader never sees a
// half-written file.
func (s *Spool) Put(name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".spool-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to place spool file: %w", err)
	}
	return nil
}

// List returns pending screenshot names, oldest first by name. The
// capture naming convention puts the timestamp first, so lexical order
// is chronological.
func (s *Spool) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Spool) Read(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.dir, name))
}

func (s *Spool) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spool file: %w", err)
	}
	return nil
}

// Prune deletes the oldest files beyond the configured cap and returns
// how many were removed. Bounds disk usage during long outages.
func (s *Spool) Prune() (int, error) {
	if s.maxFiles <= 0 {
		return 0, nil
	}
	names, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(names) <= s.maxFiles {
		return 0, nil
	}

	excess := names[:len(names)-s.maxFiles]
	removed := 0
	for _, name := range excess {
		if err := s.Remove(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid spool file name %q", name)
	}
	return nil
}
