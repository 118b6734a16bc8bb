// Package store persists session snapshots and debug payloads as keyed
// JSON files in a local state directory.
//
// Writes are best-effort: a failed write never surfaces to the caller.
// The session keeps working from memory; the failure is logged and counted.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/types"
)

// Well-known snapshot keys.
const (
	// KeySession holds the full conversation snapshot.
	KeySession = "chat_session"
	// KeyIngestDebug holds the most recent ingest result.
	KeyIngestDebug = "ingest_debug"
	// KeyRetrieveDebug holds the most recent retrieval debug response.
	KeyRetrieveDebug = "retrieve_debug"
)

// Store reads and writes keyed JSON snapshots under a state directory.
type Store struct {
	dir       string
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for write-failure observability.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCollector sets the metrics collector for skipped-write counting.
func WithCollector(collector *metrics.Collector) Option {
	return func(s *Store) { s.collector = collector }
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store requires a state directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{dir: dir, logger: log.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the state directory path.
func (s *Store) Dir() string { return s.dir }

// Save writes value under key. Best-effort: marshal or write failures are
// logged and counted, never returned.
func (s *Store) Save(key string, value any) {
	path, err := s.keyPath(key)
	if err != nil {
		s.skipWrite(key, err)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.skipWrite(key, err)
		return
	}

	// Write to a temp file and rename so readers never see a torn snapshot.
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		s.skipWrite(key, err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.skipWrite(key, err)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		s.skipWrite(key, err)
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		s.skipWrite(key, err)
		return
	}
}

// Load reads the value stored under key into out.
// Returns false with a nil error when no snapshot exists.
func (s *Store) Load(key string, out any) (bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot %q: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode snapshot %q: %w", key, err)
	}
	return true, nil
}

// Delete removes the snapshot stored under key. Best-effort.
func (s *Store) Delete(key string) {
	path, err := s.keyPath(key)
	if err != nil {
		return
	}
	_ = os.Remove(path)
}

// SaveSession persists the conversation snapshot. Best-effort.
func (s *Store) SaveSession(snap *types.SessionSnapshot) {
	s.Save(KeySession, snap)
}

// LoadSession restores the conversation snapshot, sanitizing any turn that
// was mid-stream when the snapshot was taken: a restored session cannot
// resume a stream, so those turns come back as interrupted.
func (s *Store) LoadSession() (*types.SessionSnapshot, bool) {
	var snap types.SessionSnapshot
	ok, err := s.Load(KeySession, &snap)
	if err != nil {
		// A corrupt snapshot is treated the same as a missing one.
		s.logger.Warn("discarding unreadable session snapshot", map[string]any{
			"error": err.Error(),
		})
		return nil, false
	}
	if !ok {
		return nil, false
	}

	for i := range snap.Turns {
		if snap.Turns[i].Streaming {
			snap.Turns[i].Streaming = false
			snap.Turns[i].Stage = types.StageAborted
			snap.Turns[i].StageText = types.StatusTextInterrupted
		}
	}
	return &snap, true
}

func (s *Store) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *Store) skipWrite(key string, err error) {
	s.collector.IncStoreWriteSkipped()
	s.logger.Debug("snapshot write skipped", map[string]any{
		"key":   key,
		"error": err.Error(),
	})
}
