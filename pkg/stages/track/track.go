// Package track implements the boundary-detection state machine that
// segments the frame stream into rounds and matches.
package track

import (
	"context"
	"time"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

// State is the tracker's position in the round/match lifecycle.
type State int

const (
	// StateInRound accumulates frames into the open round.
	StateInRound State = iota
	// StateRoundJustClosed is transient: a round boundary fired and the
	// frame is immediately re-evaluated as the first of the next round.
	StateRoundJustClosed
	// StateMatchClosed is terminal until a new frame reopens a match.
	StateMatchClosed
)

// Config holds the tracker's thresholds.
type Config struct {
	// RoundResetEpsilon is the "close enough to full" cutoff. A round
	// boundary requires both players below it on the previous confident
	// frame and both at or above it on the current one.
	RoundResetEpsilon float64
	// DamageThreshold arms round detection: at least one player must
	// have dropped below it since the last boundary. Suppresses false
	// resets from HUD flicker on near-full bars.
	DamageThreshold float64
	// MatchGap is the minimum silence between confident readings that
	// closes the current match.
	MatchGap time.Duration
}

// Tracker consumes successive frame readings and emits boundary events.
// It is strictly sequential: one goroutine, frames in increasing index
// order.
type Tracker struct {
	cfg Config
	log ports.Logger

	state    State
	started  bool
	armed    bool
	prevP1   float64
	prevP2   float64
	lastSeen time.Duration
}

// NewStage creates a tracker.
func NewStage(cfg Config, logger ports.Logger) *Tracker {
	return &Tracker{cfg: cfg, log: logger.WithComponent("track"), state: StateInRound}
}

// State returns the tracker's current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// Execute implements pipeline.Stage over Observe.
func (t *Tracker) Execute(ctx context.Context, fd pipeline.FrameData) ([]pipeline.BoundaryEvent, error) {
	return t.Observe(fd), nil
}

// Observe evaluates one frame reading and returns the boundary events it
// triggers, in application order (a match boundary always precedes any
// round consideration). Low-confidence frames never trigger transitions and
// never update the comparison state; they are still appended downstream.
//
// The very first confident frame opens the first round and match without
// treating an initial full bar as a boundary: there is no previous state to
// compare against.
func (t *Tracker) Observe(fd pipeline.FrameData) []pipeline.BoundaryEvent {
	if !fd.Confident() {
		return nil
	}

	p1 := fd.P1.HealthRatio
	p2 := fd.P2.HealthRatio

	if !t.started {
		t.started = true
		t.state = StateInRound
		t.updateAfter(fd)
		return nil
	}

	var events []pipeline.BoundaryEvent

	matchGap := t.cfg.MatchGap > 0 && fd.Timestamp-t.lastSeen > t.cfg.MatchGap
	roundReset := t.armed &&
		t.prevP1 < t.cfg.RoundResetEpsilon && t.prevP2 < t.cfg.RoundResetEpsilon &&
		p1 >= t.cfg.RoundResetEpsilon && p2 >= t.cfg.RoundResetEpsilon

	if matchGap {
		// Match boundary takes precedence. The new match's first round
		// opens with this frame, so a coinciding round reset must not
		// also close a round inside the fresh match.
		t.log.Info("Match boundary at frame %d (gap %.1fs)", fd.Index, (fd.Timestamp - t.lastSeen).Seconds())
		if roundReset {
			t.log.Debug("Boundary ambiguity at frame %d resolved as match boundary", fd.Index)
		}
		t.state = StateMatchClosed
		events = append(events, pipeline.BoundaryEvent{Kind: pipeline.MatchBoundary, FrameIndex: fd.Index})
		t.armed = false
		t.state = StateInRound
		t.updateAfter(fd)
		return events
	}

	if roundReset {
		t.log.Info("Round boundary at frame %d (p1 %.2f, p2 %.2f)", fd.Index, p1, p2)
		t.state = StateRoundJustClosed
		events = append(events, pipeline.BoundaryEvent{Kind: pipeline.RoundBoundary, FrameIndex: fd.Index})
		t.armed = false
		t.state = StateInRound
	}

	t.updateAfter(fd)
	return events
}

// updateAfter records the comparison state for the next confident frame.
func (t *Tracker) updateAfter(fd pipeline.FrameData) {
	p1 := fd.P1.HealthRatio
	p2 := fd.P2.HealthRatio
	if p1 < t.cfg.DamageThreshold || p2 < t.cfg.DamageThreshold {
		t.armed = true
	}
	t.prevP1 = p1
	t.prevP2 = p2
	t.lastSeen = fd.Timestamp
}
