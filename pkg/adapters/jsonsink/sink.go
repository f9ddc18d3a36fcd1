// Package jsonsink persists finalized matches as JSON files.
package jsonsink

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

// Sink writes one JSON file per finalized match into a directory, numbered
// in the order matches were finalized.
type Sink struct {
	dir    string
	fs     ports.FileSystem
	logger ports.Logger
	seq    int
}

// New creates a new Sink writing into dir. The directory is created on the
// first write.
func New(dir string, fs ports.FileSystem, logger ports.Logger) *Sink {
	return &Sink{
		dir:    dir,
		fs:     fs,
		logger: logger.WithComponent("jsonsink"),
	}
}

// WriteMatch persists one finalized match as an indented JSON file.
func (s *Sink) WriteMatch(m *pipeline.Match) error {
	if err := s.fs.MkdirAll(s.dir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID.String(), err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("match-%03d.json", s.seq))
	if err := s.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.seq++

	s.logger.Debug("Wrote match to %s", path)
	return nil
}

// Ensure Sink implements ports.MatchSink
var _ ports.MatchSink = (*Sink)(nil)
