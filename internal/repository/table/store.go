// Package table is a file-backed implementation of message.Repository.
//
// The whole table lives in one CSV file. Every mutation loads the file, applies
// the change in memory and replaces the file atomically (temp file + rename)
// while holding the store's lock.
package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/domain/message"
	"go.uber.org/zap"
)

const (
	DefaultReadRetries    = 3
	DefaultReadRetryDelay = 500 * time.Millisecond
)

// Options tunes the store. Zero values use the defaults.
type Options struct {
	ReadRetries    int
	ReadRetryDelay time.Duration
	// Now is the clock used to stamp LastUpdated in Update.
	Now func() time.Time
}

// Store is a CSV-file backed message.Repository.
type Store struct {
	path   string
	opts   Options
	logger *zap.Logger

	mu sync.Mutex
}

// Open returns a store for path, creating the file (and its directory) with
// just a header row if it does not exist yet.
func Open(path string, opts Options, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("table: store path is required")
	}
	if opts.ReadRetries <= 0 {
		opts.ReadRetries = DefaultReadRetries
	}
	if opts.ReadRetryDelay <= 0 {
		opts.ReadRetryDelay = DefaultReadRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{path: filepath.Clean(path), opts: opts, logger: logger}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createIfMissing(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the canonical file location.
func (s *Store) Path() string {
	return s.path
}

// Append implements message.Repository.
func (s *Store) Append(ctx context.Context, msgs ...*message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.Transact(ctx, func(t *message.Table) error {
		t.Append(message.CloneAll(msgs)...)
		return nil
	})
}

// FindByProviderID implements message.Repository.
func (s *Store) FindByProviderID(ctx context.Context, providerID string) (*message.Message, error) {
	rows, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	m := message.NewTable(rows).FindByProviderID(providerID)
	if m == nil {
		return nil, message.ErrNotFound
	}
	return m, nil
}

// Update implements message.Repository.
func (s *Store) Update(ctx context.Context, match func(*message.Message) bool, mutate func(*message.Message) bool) (int, error) {
	var changed int
	err := s.Transact(ctx, func(t *message.Table) error {
		changed = t.Update(match, mutate, s.opts.Now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Snapshot implements message.Repository. It takes no lock: writes replace the
// file atomically, so a read always sees one complete version.
func (s *Store) Snapshot(ctx context.Context) ([]*message.Message, error) {
	return s.read(ctx)
}

// Transact implements message.Repository.
func (s *Store) Transact(ctx context.Context, fn func(t *message.Table) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.createIfMissing(); err != nil {
		return err
	}

	rows, err := s.read(ctx)
	if err != nil {
		return err
	}

	t := message.NewTable(rows)
	if err := fn(t); err != nil {
		return err
	}
	if !t.Changed() {
		return nil
	}
	return s.write(t.Rows())
}

// read loads the table, retrying transient failures a bounded number of times.
func (s *Store) read(ctx context.Context) ([]*message.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.ReadRetries; attempt++ {
		rows, err := s.readOnce()
		if err == nil {
			return rows, nil
		}
		lastErr = err

		s.logger.Warn("error reading message table",
			zap.String("path", s.path),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", s.opts.ReadRetries),
			zap.Error(err))

		if attempt == s.opts.ReadRetries {
			break
		}
		select {
		case <-time.After(s.opts.ReadRetryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", message.ErrStoreUnavailable, ctx.Err())
		}
	}
	return nil, fmt.Errorf("%w: %w", message.ErrStoreUnavailable, lastErr)
}

func (s *Store) readOnce() ([]*message.Message, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(raw))
}

// write replaces the canonical file with rows: temp file in the same
// directory, fsync, then rename over the original.
func (s *Store) write(rows []*message.Message) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := Encode(tmp, rows); err != nil {
		cleanup()
		return fmt.Errorf("encode table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace table: %w", err)
	}
	return nil
}

// createIfMissing must be called with mu held.
func (s *Store) createIfMissing() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat table: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create table directory: %w", err)
	}
	s.logger.Info("creating message table", zap.String("path", s.path))
	return s.write(nil)
}

// compile-time interface check
var _ message.Repository = (*Store)(nil)
