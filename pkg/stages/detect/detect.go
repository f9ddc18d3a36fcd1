// Package detect implements the health-bar detection stage: classifying
// pixels inside a bar region and measuring the fill ratio.
package detect

import (
	"context"
	"sort"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

// FullSide says which end of a bar region is the "full" end. The two HUD
// bars face each other, so the slots are mirrored; this is calibration data,
// not a hardcoded per-player branch.
type FullSide int

const (
	FullLeft FullSide = iota
	FullRight
)

// Band is one inclusive HSV range used to classify bar pixels.
type Band struct {
	HueMin float64 `yaml:"hue_min"`
	HueMax float64 `yaml:"hue_max"`
	SatMin float64 `yaml:"sat_min"`
	SatMax float64 `yaml:"sat_max"`
	ValMin float64 `yaml:"val_min"`
	ValMax float64 `yaml:"val_max"`
}

// Contains reports whether the color falls inside the band.
func (b Band) Contains(c HSV) bool {
	return c.H >= b.HueMin && c.H <= b.HueMax &&
		c.S >= b.SatMin && c.S <= b.SatMax &&
		c.V >= b.ValMin && c.V <= b.ValMax
}

// Config holds the detector's tuning. All of it comes from calibration so a
// different title or HUD skin only needs a new config file.
type Config struct {
	// Healthy matches the filled portion of the bar (e.g. yellow at
	// normal health, orange at low health).
	Healthy []Band
	// Damage matches the recent-damage flash drawn where health was just
	// lost. Counts as the empty side of the boundary.
	Damage []Band
	// Background matches the drained portion of the bar.
	Background []Band

	// Rows is the number of evenly spaced scan rows per region.
	Rows int
	// NoiseTolerance is the maximum run of unclassifiable pixels absorbed
	// before a boundary is considered final. Absorbs texture and
	// anti-aliasing artifacts.
	NoiseTolerance int

	// FullSide maps each slot to the end of its bar that holds at full
	// health.
	FullSide map[pipeline.PlayerSlot]FullSide
}

// segment classifies one pixel's role in the bar.
type segment int

const (
	segUnknown segment = iota
	segHealthy
	segEmpty // damage flash or drained background
)

// Stage measures one player's health fill ratio from a bar region.
// It never fails on malformed frame content; unreadable regions only clear
// the confidence flag.
type Stage struct {
	cfg Config
	log ports.Logger
}

// NewStage creates a detection stage.
func NewStage(cfg Config, logger ports.Logger) *Stage {
	if cfg.Rows < 1 {
		cfg.Rows = 1
	}
	if cfg.NoiseTolerance < 0 {
		cfg.NoiseTolerance = 0
	}
	return &Stage{cfg: cfg, log: logger.WithComponent("detect")}
}

// Execute measures the fill ratio of the bar inside input.Region.
func (s *Stage) Execute(ctx context.Context, input pipeline.DetectInput) (pipeline.PlayerState, error) {
	return s.Measure(input.Frame, input.Region, input.Slot), nil
}

// Measure scans the region and combines the per-row ratios with a median.
// When no row yields a usable boundary (loading or transition screens) the
// returned state has Valid cleared and a zero ratio; the caller carries the
// previous known value forward.
func (s *Stage) Measure(frame *pipeline.Frame, region pipeline.PixelRect, slot pipeline.PlayerSlot) pipeline.PlayerState {
	ratios := make([]float64, 0, s.cfg.Rows)

	for i := 0; i < s.cfg.Rows; i++ {
		// Rows spread evenly inside the region, away from its edges.
		y := region.Y + (region.H*(i+1))/(s.cfg.Rows+1)
		if y >= region.Y+region.H {
			y = region.Y + region.H - 1
		}
		if ratio, ok := s.scanRow(frame, region, y, s.cfg.FullSide[slot]); ok {
			ratios = append(ratios, ratio)
		}
	}

	if len(ratios) == 0 {
		s.log.Debug("No usable scan row for %s at frame %d", slot.String(), frame.Index)
		return pipeline.PlayerState{Slot: slot}
	}

	sort.Float64s(ratios)
	ratio := ratios[len(ratios)/2]
	if len(ratios)%2 == 0 {
		ratio = (ratios[len(ratios)/2-1] + ratios[len(ratios)/2]) / 2
	}
	return pipeline.PlayerState{Slot: slot, HealthRatio: clamp01(ratio), Valid: true}
}

// scanRow walks one row from the full end toward the empty end, looking for
// the column where classification flips from healthy to non-healthy. Returns
// ok=false when the row shows no evidence of a bar at all.
func (s *Stage) scanRow(frame *pipeline.Frame, region pipeline.PixelRect, y int, full FullSide) (float64, bool) {
	width := region.W
	filled := 0
	gap := 0
	sawBar := false

	for i := 0; i < width; i++ {
		x := region.X + i
		if full == FullRight {
			x = region.X + width - 1 - i
		}

		r, g, b := frame.RGBAt(x, y)
		switch s.classify(RGBToHSV(r, g, b)) {
		case segHealthy:
			filled = i + 1
			gap = 0
			sawBar = true
		case segEmpty:
			// Boundary found: everything before this column was fill.
			return float64(filled) / float64(width), true
		default:
			gap++
			if gap > s.cfg.NoiseTolerance {
				if !sawBar {
					return 0, false
				}
				// The bar was visible up to here; treat the run as
				// the boundary.
				return float64(filled) / float64(width), true
			}
		}
	}

	if !sawBar {
		return 0, false
	}
	return float64(filled) / float64(width), true
}

func (s *Stage) classify(c HSV) segment {
	for _, b := range s.cfg.Healthy {
		if b.Contains(c) {
			return segHealthy
		}
	}
	for _, b := range s.cfg.Damage {
		if b.Contains(c) {
			return segEmpty
		}
	}
	for _, b := range s.cfg.Background {
		if b.Contains(c) {
			return segEmpty
		}
	}
	return segUnknown
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
