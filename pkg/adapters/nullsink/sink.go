// Package nullsink provides a no-op debug sink implementation.
package nullsink

import (
	"image"

	"github.com/palthedog/recmari/pkg/ports"
)

// Sink is a no-op implementation of ports.DebugSink.
// It discards all debug output.
type Sink struct{}

// New creates a new Sink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveCalibrationJSON does nothing.
func (s *Sink) SaveCalibrationJSON(data []byte) error {
	return nil
}

// SaveReadingsJSON does nothing.
func (s *Sink) SaveReadingsJSON(data []byte) error {
	return nil
}

// SaveOverlayFrame does nothing.
func (s *Sink) SaveOverlayFrame(index int, img image.Image) error {
	return nil
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
