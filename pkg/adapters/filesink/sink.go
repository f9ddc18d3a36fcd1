// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path/filepath"

	"github.com/palthedog/recmari/pkg/ports"
)

// Sink saves debug output to files under a base directory.
type Sink struct {
	baseDir string
	fs      ports.FileSystem
}

// New creates a new Sink.
func New(baseDir string, fs ports.FileSystem) *Sink {
	return &Sink{
		baseDir: baseDir,
		fs:      fs,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveCalibrationJSON saves the resolved HUD layout as JSON.
func (s *Sink) SaveCalibrationJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "calibration.json")
	return s.fs.WriteFile(path, data)
}

// SaveReadingsJSON saves the per-frame health readings as JSON.
func (s *Sink) SaveReadingsJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "readings.json")
	return s.fs.WriteFile(path, data)
}

// SaveOverlayFrame saves a rendered debug overlay frame as PNG.
func (s *Sink) SaveOverlayFrame(index int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode overlay frame: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%08d.png", index))
	return s.fs.WriteFile(path, buf.Bytes())
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
