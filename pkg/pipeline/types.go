package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Geometry
// =============================================================================

// Dimension represents a frame resolution in pixels.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NormalizedRect is a rectangle in normalized coordinates (0.0 to 1.0),
// independent of the actual frame resolution. Calibration files supply these.
type NormalizedRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Validate checks that all coordinates are in [0,1] and that the rectangle
// has positive extent and stays inside the unit square.
func (r NormalizedRect) Validate() error {
	if r.X < 0 || r.X > 1 || r.Y < 0 || r.Y > 1 {
		return fmt.Errorf("%w: origin (%g, %g) outside [0,1]", ErrInvalidCalibration, r.X, r.Y)
	}
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("%w: non-positive size (%g x %g)", ErrInvalidCalibration, r.W, r.H)
	}
	if r.X+r.W > 1 || r.Y+r.H > 1 {
		return fmt.Errorf("%w: rect (%g, %g, %g, %g) extends past the frame edge", ErrInvalidCalibration, r.X, r.Y, r.W, r.H)
	}
	return nil
}

// ToPixelRect maps the rectangle to absolute pixel coordinates for the given
// frame resolution, clamped so the result lies fully within the frame.
func (r NormalizedRect) ToPixelRect(frameWidth, frameHeight int) PixelRect {
	p := PixelRect{
		X: int(r.X * float64(frameWidth)),
		Y: int(r.Y * float64(frameHeight)),
		W: int(r.W * float64(frameWidth)),
		H: int(r.H * float64(frameHeight)),
	}
	if p.W < 1 {
		p.W = 1
	}
	if p.H < 1 {
		p.H = 1
	}
	if p.X+p.W > frameWidth {
		p.W = frameWidth - p.X
	}
	if p.Y+p.H > frameHeight {
		p.H = frameHeight - p.Y
	}
	return p
}

// PixelRect is a rectangle in absolute pixel coordinates.
type PixelRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// HudLayout maps the calibrated health-bar regions to pixel coordinates for
// one specific frame resolution. It is recomputed only when the resolution
// of incoming frames changes.
type HudLayout struct {
	Frame Dimension `json:"frame"`
	P1    PixelRect `json:"p1"`
	P2    PixelRect `json:"p2"`
}

// =============================================================================
// Frames
// =============================================================================

// Frame is a single decoded video frame. The pixel buffer is packed RGB24
// (3 bytes per pixel, row-major). A frame is owned by the pipeline step
// currently processing it and must be released via Release as soon as both
// player detections are done, so decode buffers can be reused.
type Frame struct {
	Pixels    []byte
	Width     int
	Height    int
	Index     int
	Timestamp time.Duration

	// OnRelease returns the pixel buffer to its pool. May be nil for
	// frames built outside a pooled source (e.g. tests).
	OnRelease func()
}

// RGBAt returns the color components of the pixel at (x, y).
func (f *Frame) RGBAt(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * 3
	return f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2]
}

// Release hands the pixel buffer back to its owner. The frame must not be
// read afterwards.
func (f *Frame) Release() {
	if f.OnRelease != nil {
		f.OnRelease()
		f.OnRelease = nil
	}
	f.Pixels = nil
}

// =============================================================================
// Readings
// =============================================================================

// PlayerSlot identifies one of the two HUD slots.
type PlayerSlot int

const (
	SlotP1 PlayerSlot = iota
	SlotP2
)

// String returns "p1" or "p2".
func (s PlayerSlot) String() string {
	if s == SlotP2 {
		return "p2"
	}
	return "p1"
}

// PlayerState is one player's health reading for one sampled frame.
// HealthRatio is always in [0,1]. Valid is cleared when the bar region could
// not be classified (loading screens, transitions); in that case HealthRatio
// carries the last known value rather than a fabricated one.
type PlayerState struct {
	Slot        PlayerSlot `json:"slot"`
	HealthRatio float64    `json:"health_ratio"`
	Valid       bool       `json:"valid"`
}

// FrameData is the complete reading for one sampled frame. Immutable once
// assembled.
type FrameData struct {
	Index     int           `json:"frame_index"`
	Timestamp time.Duration `json:"timestamp"`
	P1        PlayerState   `json:"player1"`
	P2        PlayerState   `json:"player2"`
}

// Confident reports whether both players produced a usable reading.
func (fd FrameData) Confident() bool {
	return fd.P1.Valid && fd.P2.Valid
}

// =============================================================================
// Segmentation
// =============================================================================

// Termination records how a round or match was closed.
type Termination int

const (
	// TerminatedByBoundary means a detected round/match boundary closed it.
	TerminatedByBoundary Termination = iota
	// TerminatedByStreamEnd means end of stream (or cancellation) forced the
	// close; trailing data is flushed rather than dropped.
	TerminatedByStreamEnd
)

// String returns a stable name for serialization.
func (t Termination) String() string {
	if t == TerminatedByStreamEnd {
		return "stream_end"
	}
	return "boundary"
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (t Termination) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Round is a single bout: the frames between two round boundaries. Frames
// are strictly increasing by index. Open (mutable) until finalized.
type Round struct {
	StartIndex  int         `json:"start_index"`
	EndIndex    int         `json:"end_index"`
	Frames      []FrameData `json:"frames"`
	Termination Termination `json:"termination"`
}

// SourceMetadata describes where the frames of a match came from.
type SourceMetadata struct {
	FilePath     string        `json:"file_path"`
	StartOffset  time.Duration `json:"start_offset"`
	SampleStride int           `json:"sample_stride"`
}

// Match is a full contest of one or more rounds. A zero-round match can only
// appear as a flush artifact and is dropped by the aggregator.
type Match struct {
	ID          uuid.UUID      `json:"id"`
	Source      SourceMetadata `json:"source"`
	Rounds      []Round        `json:"rounds"`
	StartTime   time.Duration  `json:"start_time"`
	EndTime     time.Duration  `json:"end_time"`
	Termination Termination    `json:"termination"`
}

// BoundaryKind distinguishes the two boundary event types.
type BoundaryKind int

const (
	RoundBoundary BoundaryKind = iota
	MatchBoundary
)

// String returns a readable name for logs.
func (k BoundaryKind) String() string {
	if k == MatchBoundary {
		return "match"
	}
	return "round"
}

// BoundaryEvent is the tracker's signal that the current round or match
// closed at the given frame. FrameIndex is the frame that triggered the
// boundary, i.e. the first frame of the newly opened round or match.
type BoundaryEvent struct {
	Kind       BoundaryKind
	FrameIndex int
}

// =============================================================================
// Stage I/O
// =============================================================================

// RegionInput asks the region stage for the HUD layout at a resolution.
type RegionInput struct {
	Width  int
	Height int
}

// DetectInput carries one player's bar region to the detection stage.
type DetectInput struct {
	Frame  *Frame
	Region PixelRect
	Slot   PlayerSlot
}

// AggregateInput carries one frame reading plus the boundary events the
// tracker emitted for it.
type AggregateInput struct {
	Frame  FrameData
	Events []BoundaryEvent
}
