// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/stages/detect"
	"github.com/palthedog/recmari/pkg/stages/track"
)

// Config represents the full configuration for an analysis run.
type Config struct {
	Calibration CalibrationConfig `yaml:"calibration"`
	Detection   DetectionConfig   `yaml:"detection"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Sampling    SamplingConfig    `yaml:"sampling"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// RectConfig is a normalized rectangle in YAML form.
type RectConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// ToRect converts to the pipeline representation.
func (r RectConfig) ToRect() pipeline.NormalizedRect {
	return pipeline.NormalizedRect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// CalibrationConfig supplies the per-title HUD regions.
type CalibrationConfig struct {
	Title    string     `yaml:"title"`
	P1Region RectConfig `yaml:"p1_region"`
	P2Region RectConfig `yaml:"p2_region"`
}

// DetectionConfig tunes the health-bar detector.
type DetectionConfig struct {
	Rows           int    `yaml:"rows"`
	NoiseTolerance int    `yaml:"noise_tolerance"`
	P1FullSide     string `yaml:"p1_full_side"` // "left" or "right"
	P2FullSide     string `yaml:"p2_full_side"`

	Healthy    []detect.Band `yaml:"healthy"`
	Damage     []detect.Band `yaml:"damage"`
	Background []detect.Band `yaml:"background"`
}

// TrackingConfig tunes the boundary state machine.
type TrackingConfig struct {
	RoundResetEpsilon float64 `yaml:"round_reset_epsilon"`
	DamageThreshold   float64 `yaml:"damage_threshold"`
	MatchGapSeconds   float64 `yaml:"match_gap_seconds"`
}

// SamplingConfig controls how the frame source samples the video.
type SamplingConfig struct {
	// Stride analyzes every Nth decoded frame (1 = every frame).
	Stride int `yaml:"stride"`
	// StartFrame is the first decoded frame to consider.
	StartFrame int `yaml:"start_frame"`
	// MaxFrames caps the number of sampled frames (0 = no limit).
	MaxFrames int `yaml:"max_frames"`
}

// Defaults returns a Config with default values. The detection thresholds
// are the stock tuning for the default title's HUD: a yellow/orange fill,
// an orange-red damage flash and a deep blue drained background.
func Defaults() Config {
	return Config{
		Calibration: CalibrationConfig{
			Title: "manemon",
			// At 1920x1080 the P1 bar spans x 190..883 around y 80.
			P1Region: RectConfig{X: 0.0990, Y: 0.0713, W: 0.3609, H: 0.0056},
			P2Region: RectConfig{X: 0.5401, Y: 0.0713, W: 0.3609, H: 0.0056},
		},
		Detection: DetectionConfig{
			Rows:           3,
			NoiseTolerance: 4,
			P1FullSide:     "left",
			P2FullSide:     "right",
			Healthy: []detect.Band{
				// Yellow fill at normal health.
				{HueMin: 48, HueMax: 66, SatMin: 0.3, SatMax: 1, ValMin: 0.9, ValMax: 1},
				// Orange fill below ~25% health.
				{HueMin: 38, HueMax: 50, SatMin: 0.3, SatMax: 1, ValMin: 0.9, ValMax: 1},
			},
			Damage: []detect.Band{
				{HueMin: 17, HueMax: 25, SatMin: 0.9, SatMax: 1, ValMin: 0.9, ValMax: 1},
			},
			Background: []detect.Band{
				{HueMin: 215, HueMax: 222, SatMin: 0.95, SatMax: 1, ValMin: 0, ValMax: 1},
			},
		},
		Tracking: TrackingConfig{
			RoundResetEpsilon: 0.98,
			DamageThreshold:   0.5,
			MatchGapSeconds:   30,
		},
		Sampling: SamplingConfig{
			Stride: 2,
		},
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate fails fast on malformed calibration or tuning before the
// pipeline starts.
func (c Config) Validate() error {
	if err := c.Calibration.P1Region.ToRect().Validate(); err != nil {
		return fmt.Errorf("p1 region: %w", err)
	}
	if err := c.Calibration.P2Region.ToRect().Validate(); err != nil {
		return fmt.Errorf("p2 region: %w", err)
	}
	if _, err := parseFullSide(c.Detection.P1FullSide); err != nil {
		return fmt.Errorf("p1_full_side: %w", err)
	}
	if _, err := parseFullSide(c.Detection.P2FullSide); err != nil {
		return fmt.Errorf("p2_full_side: %w", err)
	}
	if c.Detection.Rows < 1 {
		return fmt.Errorf("%w: detection rows must be >= 1, got %d", pipeline.ErrInvalidCalibration, c.Detection.Rows)
	}
	if c.Detection.NoiseTolerance < 0 {
		return fmt.Errorf("%w: noise tolerance must be >= 0, got %d", pipeline.ErrInvalidCalibration, c.Detection.NoiseTolerance)
	}
	if len(c.Detection.Healthy) == 0 {
		return fmt.Errorf("%w: no healthy color bands configured", pipeline.ErrInvalidCalibration)
	}
	if e := c.Tracking.RoundResetEpsilon; e <= 0 || e > 1 {
		return fmt.Errorf("%w: round_reset_epsilon must be in (0,1], got %g", pipeline.ErrInvalidCalibration, e)
	}
	if c.Tracking.MatchGapSeconds <= 0 {
		return fmt.Errorf("%w: match_gap_seconds must be > 0, got %g", pipeline.ErrInvalidCalibration, c.Tracking.MatchGapSeconds)
	}
	if c.Sampling.Stride < 1 {
		return fmt.Errorf("%w: sampling stride must be >= 1, got %d", pipeline.ErrInvalidCalibration, c.Sampling.Stride)
	}
	if c.Sampling.StartFrame < 0 || c.Sampling.MaxFrames < 0 {
		return fmt.Errorf("%w: start_frame and max_frames must be >= 0", pipeline.ErrInvalidCalibration)
	}
	return nil
}

// ToDetectConfig converts the detection section to the stage's config.
func (c Config) ToDetectConfig() (detect.Config, error) {
	p1, err := parseFullSide(c.Detection.P1FullSide)
	if err != nil {
		return detect.Config{}, err
	}
	p2, err := parseFullSide(c.Detection.P2FullSide)
	if err != nil {
		return detect.Config{}, err
	}
	return detect.Config{
		Healthy:        c.Detection.Healthy,
		Damage:         c.Detection.Damage,
		Background:     c.Detection.Background,
		Rows:           c.Detection.Rows,
		NoiseTolerance: c.Detection.NoiseTolerance,
		FullSide: map[pipeline.PlayerSlot]detect.FullSide{
			pipeline.SlotP1: p1,
			pipeline.SlotP2: p2,
		},
	}, nil
}

// ToTrackConfig converts the tracking section to the stage's config.
func (c Config) ToTrackConfig() track.Config {
	return track.Config{
		RoundResetEpsilon: c.Tracking.RoundResetEpsilon,
		DamageThreshold:   c.Tracking.DamageThreshold,
		MatchGap:          time.Duration(c.Tracking.MatchGapSeconds * float64(time.Second)),
	}
}

func parseFullSide(s string) (detect.FullSide, error) {
	switch s {
	case "left":
		return detect.FullLeft, nil
	case "right":
		return detect.FullRight, nil
	default:
		return detect.FullLeft, fmt.Errorf("%w: scan direction must be \"left\" or \"right\", got %q", pipeline.ErrInvalidCalibration, s)
	}
}
