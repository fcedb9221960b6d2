package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore keeps one JSON file per kind under dir. Every mutation rewrites
// the kind's whole file through a temp file and a rename, so a crash leaves
// either the old or the new contents on disk.
type FileStore struct {
	dir    string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "filestore").Logger(),
	}
}

// Path returns the file backing kind.
func (s *FileStore) Path(kind Kind) string {
	return filepath.Join(s.dir, string(kind)+".json")
}

// Append adds rec to the end of the kind's file.
func (s *FileStore) Append(ctx context.Context, kind Kind, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadLocked(kind)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.MessageID == rec.MessageID {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, kind, rec.MessageID)
		}
	}
	rec.Kind = kind
	recs = append(recs, rec)
	return s.saveLocked(kind, recs)
}

// RemoveByHostMessageID drops matching records. The file is left untouched
// when nothing matches.
func (s *FileStore) RemoveByHostMessageID(ctx context.Context, kind Kind, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadLocked(kind)
	if err != nil {
		return err
	}
	drop := idSet(ids)
	kept := recs[:0]
	for _, r := range recs {
		if _, ok := drop[r.MessageID]; !ok {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return nil
	}
	return s.saveLocked(kind, kept)
}

// LoadAll returns the kind's records in file order.
func (s *FileStore) LoadAll(ctx context.Context, kind Kind) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(kind)
}

// loadLocked reads the kind's file. Missing, empty and malformed files all
// load as an empty sequence; only real I/O failures are returned.
func (s *FileStore) loadLocked(kind Kind) ([]Record, error) {
	path := s.Path(kind)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.logger.Debug().Str("kind", string(kind)).Msg("record file is empty")
		return nil, nil
	}
	recs, err := decodeRecords(kind, data)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Str("path", path).
			Msg("record file is malformed, treating as empty")
		return nil, nil
	}
	return recs, nil
}

func (s *FileStore) saveLocked(kind Kind, recs []Record) error {
	data, err := encodeRecords(recs)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", kind, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir %s: %w", s.dir, err)
	}

	path := s.Path(kind)
	tmp, err := os.CreateTemp(s.dir, string(kind)+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("store: create temp for %s: %w", kind, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("store: write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("store: sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("store: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	return nil
}
