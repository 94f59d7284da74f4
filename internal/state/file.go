package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// FileStore persists the document as one JSON file. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash mid-write leaves the previous snapshot intact. Single process per
// file is assumed; the engine serialises writers in-process.
type FileStore struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewFileStore builds a file-backed store at path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "state_file").Logger(),
		now:    time.Now,
	}
}

// Load reads the document. A missing or corrupt file degrades to an empty
// document so the monitor starts fresh.
func (s *FileStore) Load(ctx context.Context) Document {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info().Str("path", s.path).Msg("no state file yet, starting fresh")
		} else {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("state file unreadable, starting fresh")
		}
		return Document{}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting fresh")
		return Document{}
	}
	if doc == nil {
		doc = Document{}
	}
	return doc
}

// Save stamps metadata and atomically replaces the file.
func (s *FileStore) Save(ctx context.Context, doc Document) error {
	out := stamp(doc, s.now())

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}

	s.logger.Debug().Str("path", s.path).Int("keys", len(out)).Msg("state saved")
	return nil
}

var _ Store = (*FileStore)(nil)
