package ports

import (
	"context"

	"github.com/palthedog/recmari/pkg/pipeline"
)

// SourceInfo describes a frame source's stream before decoding starts.
type SourceInfo struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // 0 when unknown (e.g. non-indexed containers)
}

// FrameSource produces a lazy, finite, non-restartable sequence of frames
// with strictly increasing indexes and timestamps. Sampling stride is the
// source's concern: only every Nth decoded frame is forwarded.
//
// Next returns io.EOF when the stream is exhausted, ctx.Err() on
// cancellation, and an error wrapping pipeline.ErrDecodeFailure when the
// underlying decoder fails.
type FrameSource interface {
	Next(ctx context.Context) (*pipeline.Frame, error)

	// Info returns stream metadata known after opening the source.
	Info() SourceInfo

	// Close releases decoder resources. Safe to call more than once.
	Close() error
}
