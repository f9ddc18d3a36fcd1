package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/palthedog/recmari/pkg/adapters/logger"
	"github.com/palthedog/recmari/pkg/adapters/nullsink"
	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
	"github.com/palthedog/recmari/pkg/stages/aggregate"
	"github.com/palthedog/recmari/pkg/stages/region"
	"github.com/palthedog/recmari/pkg/stages/track"
)

// =============================================================================
// Mocks
// =============================================================================

type mockSource struct {
	frames []*pipeline.Frame
	pos    int

	// failAt injects failErr once pos reaches it. Negative disables.
	failAt  int
	failErr error

	// cancelAt calls cancel once pos reaches it. Negative disables.
	cancelAt int
	cancel   context.CancelFunc

	closed bool
}

func newMockSource(frames []*pipeline.Frame) *mockSource {
	return &mockSource{frames: frames, failAt: -1, cancelAt: -1}
}

func (m *mockSource) Next(ctx context.Context) (*pipeline.Frame, error) {
	if m.cancel != nil && m.pos == m.cancelAt {
		m.cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.failErr != nil && m.pos == m.failAt {
		return nil, m.failErr
	}
	if m.pos >= len(m.frames) {
		return nil, io.EOF
	}
	f := m.frames[m.pos]
	m.pos++
	return f, nil
}

func (m *mockSource) Info() ports.SourceInfo {
	return ports.SourceInfo{Width: 640, Height: 360, FPS: 60}
}

func (m *mockSource) Close() error {
	m.closed = true
	return nil
}

// scriptedReading is the detection result for one frame index, both slots.
type scriptedReading struct {
	p1, p2 float64
	valid  bool
}

// scriptedDetect replays fixed per-frame readings so orchestration behavior
// can be tested without pixel data.
type scriptedDetect struct {
	script map[int]scriptedReading
}

func (d *scriptedDetect) Execute(ctx context.Context, in pipeline.DetectInput) (pipeline.PlayerState, error) {
	r, ok := d.script[in.Frame.Index]
	if !ok {
		return pipeline.PlayerState{Slot: in.Slot}, nil
	}
	ratio := r.p1
	if in.Slot == pipeline.SlotP2 {
		ratio = r.p2
	}
	return pipeline.PlayerState{Slot: in.Slot, HealthRatio: ratio, Valid: r.valid}, nil
}

type collectSink struct {
	matches []*pipeline.Match
}

func (s *collectSink) WriteMatch(m *pipeline.Match) error {
	s.matches = append(s.matches, m)
	return nil
}

// countingRegion wraps a region stage and counts layout computations that
// reach the inner stage.
type countingRegion struct {
	inner pipeline.Stage[pipeline.RegionInput, pipeline.HudLayout]
	calls int
}

func (c *countingRegion) Execute(ctx context.Context, in pipeline.RegionInput) (pipeline.HudLayout, error) {
	c.calls++
	return c.inner.Execute(ctx, in)
}

// =============================================================================
// Helpers
// =============================================================================

func makeFrames(n, width, height int, released *int) []*pipeline.Frame {
	frames := make([]*pipeline.Frame, n)
	for i := 0; i < n; i++ {
		frames[i] = &pipeline.Frame{
			Pixels:    make([]byte, width*height*3),
			Width:     width,
			Height:    height,
			Index:     i,
			Timestamp: time.Duration(i) * 100 * time.Millisecond,
			OnRelease: func() { *released++ },
		}
	}
	return frames
}

func newTestOrchestrator(t *testing.T, script map[int]scriptedReading, sink *collectSink) *Orchestrator {
	t.Helper()
	log := logger.NewNoop()

	regionStage, err := region.NewStage(
		pipeline.NormalizedRect{X: 0.1, Y: 0.1, W: 0.35, H: 0.02},
		pipeline.NormalizedRect{X: 0.55, Y: 0.1, W: 0.35, H: 0.02},
	)
	if err != nil {
		t.Fatalf("region.NewStage: %v", err)
	}
	trackStage := track.NewStage(track.Config{
		RoundResetEpsilon: 0.98,
		DamageThreshold:   0.5,
		MatchGap:          10 * time.Second,
	}, log)
	aggStage := aggregate.NewStage(pipeline.SourceMetadata{FilePath: "test.mp4"}, log)

	return New(regionStage, &scriptedDetect{script: script}, trackStage, aggStage, sink, nil, nullsink.New(), log)
}

// threeRoundScript reads as one match of three rounds over ten frames, with
// the boundary resets at frames 4 and 8.
func threeRoundScript() map[int]scriptedReading {
	return map[int]scriptedReading{
		0: {1.0, 1.0, true},
		1: {0.9, 0.8, true},
		2: {0.7, 0.5, true},
		3: {0.0, 0.0, true},
		4: {1.0, 1.0, true},
		5: {1.0, 1.0, true},
		6: {0.8, 0.9, true},
		7: {0.0, 0.0, true},
		8: {1.0, 1.0, true},
		9: {1.0, 1.0, true},
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_EndToEndThreeRounds(t *testing.T) {
	released := 0
	sink := &collectSink{}
	o := newTestOrchestrator(t, threeRoundScript(), sink)

	result, err := o.Run(context.Background(), newMockSource(makeFrames(10, 64, 36, &released)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FramesAnalyzed != 10 || result.Matches != 1 || result.Rounds != 3 {
		t.Errorf("unexpected result %+v", result)
	}
	if released != 10 {
		t.Errorf("every frame must be released exactly once, got %d releases", released)
	}
	if len(sink.matches) != 1 {
		t.Fatalf("expected one match in the sink, got %d", len(sink.matches))
	}

	m := sink.matches[0]
	if len(m.Rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(m.Rounds))
	}
	wantRanges := [][2]int{{0, 3}, {4, 7}, {8, 9}}
	for i, want := range wantRanges {
		r := m.Rounds[i]
		if r.StartIndex != want[0] || r.EndIndex != want[1] {
			t.Errorf("round %d: expected [%d-%d], got [%d-%d]", i, want[0], want[1], r.StartIndex, r.EndIndex)
		}
	}
	if m.Rounds[0].Termination != pipeline.TerminatedByBoundary {
		t.Errorf("first round should end on a boundary, got %v", m.Rounds[0].Termination)
	}
	if m.Rounds[2].Termination != pipeline.TerminatedByStreamEnd {
		t.Errorf("last round should be stream-terminated, got %v", m.Rounds[2].Termination)
	}
	if m.Termination != pipeline.TerminatedByStreamEnd {
		t.Errorf("flushed match should be stream-terminated, got %v", m.Termination)
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *pipeline.Match {
		released := 0
		sink := &collectSink{}
		o := newTestOrchestrator(t, threeRoundScript(), sink)
		if _, err := o.Run(context.Background(), newMockSource(makeFrames(10, 64, 36, &released))); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(sink.matches) != 1 {
			t.Fatalf("expected one match, got %d", len(sink.matches))
		}
		return sink.matches[0]
	}

	a, b := run(), run()
	// Identical input must give identical structure; only the IDs differ.
	if !reflect.DeepEqual(a.Rounds, b.Rounds) {
		t.Error("rounds differ between identical runs")
	}
	if a.StartTime != b.StartTime || a.EndTime != b.EndTime || a.Termination != b.Termination {
		t.Error("match metadata differs between identical runs")
	}
}

func TestRun_MatchGapSplitsMatches(t *testing.T) {
	released := 0
	frames := makeFrames(8, 64, 36, &released)
	// Second half after a 20s silence.
	for i := 4; i < 8; i++ {
		frames[i].Timestamp = 20*time.Second + time.Duration(i)*100*time.Millisecond
	}

	script := map[int]scriptedReading{
		0: {1.0, 1.0, true},
		1: {0.3, 0.6, true},
		2: {0.3, 0.5, true},
		3: {0.2, 0.5, true},
		4: {1.0, 1.0, true}, // gap and reset coincide; the gap wins
		5: {0.7, 0.8, true},
		6: {0.6, 0.7, true},
		7: {0.6, 0.6, true},
	}

	sink := &collectSink{}
	o := newTestOrchestrator(t, script, sink)
	result, err := o.Run(context.Background(), newMockSource(frames))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Matches != 2 || len(sink.matches) != 2 {
		t.Fatalf("expected two matches, got %d (%d in sink)", result.Matches, len(sink.matches))
	}

	first, second := sink.matches[0], sink.matches[1]
	if first.Termination != pipeline.TerminatedByBoundary {
		t.Errorf("first match should end on the gap boundary, got %v", first.Termination)
	}
	if len(first.Rounds) != 1 || first.Rounds[0].EndIndex != 3 {
		t.Errorf("first match should hold frames up to 3, got %+v", first.Rounds)
	}
	if second.Rounds[0].StartIndex != 4 {
		t.Errorf("second match should start at frame 4, got %d", second.Rounds[0].StartIndex)
	}
	if first.ID == second.ID {
		t.Error("split matches must have distinct IDs")
	}
}

func TestRun_LowConfidenceFramesCarryLastReading(t *testing.T) {
	released := 0
	script := map[int]scriptedReading{
		0: {1.0, 1.0, true},
		1: {0.3, 0.4, true},
		2: {0.0, 0.0, false}, // loading screen; last reading carries forward
		3: {1.0, 1.0, true},  // reset compares against frame 1, boundary fires
		4: {0.9, 0.9, true},
	}

	sink := &collectSink{}
	o := newTestOrchestrator(t, script, sink)
	result, err := o.Run(context.Background(), newMockSource(makeFrames(5, 64, 36, &released)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FramesAnalyzed != 5 || result.LowConfidenceFrames != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(sink.matches) != 1 {
		t.Fatalf("expected one match, got %d", len(sink.matches))
	}

	m := sink.matches[0]
	if len(m.Rounds) != 2 {
		t.Fatalf("expected the boundary at frame 3 to split two rounds, got %d", len(m.Rounds))
	}
	if m.Rounds[0].EndIndex != 2 || m.Rounds[1].StartIndex != 3 {
		t.Errorf("unexpected round ranges %+v", m.Rounds)
	}

	// The unconfident frame is recorded with the carried ratio but keeps
	// its cleared confidence flag.
	carried := m.Rounds[0].Frames[2]
	if carried.Confident() {
		t.Error("carried frame must stay low-confidence")
	}
	if carried.P1.HealthRatio != 0.3 || carried.P2.HealthRatio != 0.4 {
		t.Errorf("expected the last reading carried forward, got %+v", carried)
	}
}

func TestRun_SkipsFramesBeforeFirstReading(t *testing.T) {
	released := 0
	script := map[int]scriptedReading{
		0: {0, 0, false}, // pre-HUD frames produce no reading at all
		1: {0, 0, false},
		2: {1.0, 1.0, true},
		3: {0.8, 0.9, true},
	}

	sink := &collectSink{}
	o := newTestOrchestrator(t, script, sink)
	result, err := o.Run(context.Background(), newMockSource(makeFrames(4, 64, 36, &released)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FramesAnalyzed != 2 || result.LowConfidenceFrames != 0 {
		t.Errorf("frames before the first reading must not be recorded, got %+v", result)
	}
	if released != 4 {
		t.Errorf("skipped frames must still be released, got %d releases", released)
	}
	if len(sink.matches) != 1 || sink.matches[0].Rounds[0].StartIndex != 2 {
		t.Fatalf("the first round should start at the first readable frame, got %+v", sink.matches)
	}
}

func TestRun_DecodeFailureFlushesPartialResults(t *testing.T) {
	released := 0
	src := newMockSource(makeFrames(10, 64, 36, &released))
	src.failAt = 3
	src.failErr = fmt.Errorf("decode rgb24: %w", pipeline.ErrDecodeFailure)

	sink := &collectSink{}
	o := newTestOrchestrator(t, threeRoundScript(), sink)
	result, err := o.Run(context.Background(), src)

	if err == nil {
		t.Fatal("expected the source failure to surface")
	}
	if !errors.Is(err, pipeline.ErrDecodeFailure) {
		t.Errorf("error should wrap ErrDecodeFailure, got %v", err)
	}
	if result.FramesAnalyzed != 3 {
		t.Errorf("expected 3 frames before the failure, got %d", result.FramesAnalyzed)
	}
	if len(sink.matches) != 1 {
		t.Fatalf("partial match must be flushed on failure, got %d matches", len(sink.matches))
	}
	m := sink.matches[0]
	if m.Termination != pipeline.TerminatedByStreamEnd {
		t.Errorf("flushed match should be stream-terminated, got %v", m.Termination)
	}
	if m.Rounds[0].EndIndex != 2 {
		t.Errorf("flushed round should end at the last good frame, got %d", m.Rounds[0].EndIndex)
	}
}

func TestRun_CancellationFlushesPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	released := 0
	src := newMockSource(makeFrames(10, 64, 36, &released))
	src.cancelAt = 4
	src.cancel = cancel

	sink := &collectSink{}
	o := newTestOrchestrator(t, threeRoundScript(), sink)
	result, err := o.Run(ctx, src)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.FramesAnalyzed != 4 {
		t.Errorf("expected 4 frames before cancellation, got %d", result.FramesAnalyzed)
	}
	if len(sink.matches) != 1 {
		t.Fatalf("partial match must be flushed on cancellation, got %d matches", len(sink.matches))
	}
}

func TestRun_ResolutionChangeRecomputesLayout(t *testing.T) {
	released := 0
	frames := makeFrames(6, 64, 36, &released)
	for i := 3; i < 6; i++ {
		frames[i].Pixels = make([]byte, 128*72*3)
		frames[i].Width = 128
		frames[i].Height = 72
	}

	regionStage, err := region.NewStage(
		pipeline.NormalizedRect{X: 0.1, Y: 0.1, W: 0.35, H: 0.02},
		pipeline.NormalizedRect{X: 0.55, Y: 0.1, W: 0.35, H: 0.02},
	)
	if err != nil {
		t.Fatalf("region.NewStage: %v", err)
	}
	counting := &countingRegion{inner: regionStage}

	log := logger.NewNoop()
	trackStage := track.NewStage(track.Config{RoundResetEpsilon: 0.98, DamageThreshold: 0.5}, log)
	aggStage := aggregate.NewStage(pipeline.SourceMetadata{FilePath: "test.mp4"}, log)
	sink := &collectSink{}
	o := New(counting, &scriptedDetect{script: threeRoundScript()}, trackStage, aggStage, sink, nil, nullsink.New(), log)

	if _, err := o.Run(context.Background(), newMockSource(frames)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counting.calls != 2 {
		t.Errorf("layout should be computed once per resolution, got %d calls", counting.calls)
	}
}
