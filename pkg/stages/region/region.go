// Package region implements the region extraction stage: mapping the
// calibrated normalized health-bar rectangles to absolute pixel rectangles
// for the current frame resolution.
package region

import (
	"context"
	"fmt"

	"github.com/palthedog/recmari/pkg/pipeline"
)

// Stage computes the HUD layout for a frame resolution. The layout is
// cached and recomputed only when the resolution changes.
type Stage struct {
	p1 pipeline.NormalizedRect
	p2 pipeline.NormalizedRect

	cached    pipeline.HudLayout
	haveCache bool
}

// NewStage creates a region stage for the given calibration rectangles.
// It fails with pipeline.ErrInvalidCalibration before any frame is
// processed if either rectangle is malformed.
func NewStage(p1, p2 pipeline.NormalizedRect) (*Stage, error) {
	if err := p1.Validate(); err != nil {
		return nil, fmt.Errorf("p1 region: %w", err)
	}
	if err := p2.Validate(); err != nil {
		return nil, fmt.Errorf("p2 region: %w", err)
	}
	return &Stage{p1: p1, p2: p2}, nil
}

// Execute returns the HUD layout for the given resolution, from cache when
// the resolution matches the previous call.
func (s *Stage) Execute(ctx context.Context, input pipeline.RegionInput) (pipeline.HudLayout, error) {
	if input.Width <= 0 || input.Height <= 0 {
		return pipeline.HudLayout{}, fmt.Errorf("%w: frame dimensions %dx%d", pipeline.ErrInvalidCalibration, input.Width, input.Height)
	}

	dim := pipeline.Dimension{Width: input.Width, Height: input.Height}
	if s.haveCache && s.cached.Frame == dim {
		return s.cached, nil
	}

	s.cached = pipeline.HudLayout{
		Frame: dim,
		P1:    s.p1.ToPixelRect(input.Width, input.Height),
		P2:    s.p2.ToPixelRect(input.Width, input.Height),
	}
	s.haveCache = true
	return s.cached, nil
}
