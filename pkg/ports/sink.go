package ports

import (
	"image"

	"github.com/palthedog/recmari/pkg/pipeline"
)

// MatchSink receives finalized matches for persistence. A match handed to
// the sink is immutable; the sink owns serialization format and layout.
type MatchSink interface {
	// WriteMatch persists one finalized match.
	WriteMatch(m *pipeline.Match) error
}

// DebugSink abstracts debug output for intermediate results.
// It allows saving intermediate processing results for diagnostics.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveCalibrationJSON saves the resolved HUD layout as JSON.
	SaveCalibrationJSON(data []byte) error

	// SaveReadingsJSON saves the per-frame health readings as JSON.
	SaveReadingsJSON(data []byte) error

	// SaveOverlayFrame saves a rendered debug overlay frame.
	SaveOverlayFrame(index int, img image.Image) error
}

// OverlayRenderer draws diagnostic overlays (region outlines, per-frame
// readings) onto sampled frames. It has no effect on pipeline state.
type OverlayRenderer interface {
	RenderOverlay(frame *pipeline.Frame, layout pipeline.HudLayout, fd pipeline.FrameData) (image.Image, error)
}
