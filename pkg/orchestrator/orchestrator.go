// Package orchestrator drives frames through the analysis stages in strict
// index order.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ideamans/go-l10n"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

// AggregateStage is the aggregation stage plus the end-of-stream flush the
// generic Stage interface cannot express.
type AggregateStage interface {
	pipeline.Stage[pipeline.AggregateInput, []*pipeline.Match]
	Flush() *pipeline.Match
}

// Orchestrator coordinates the execution of all pipeline stages. Frame
// analysis for the two players runs in parallel per frame; the tracker and
// aggregator are strictly sequential and single-writer because boundary
// detection depends on temporal ordering.
type Orchestrator struct {
	regionStage pipeline.Stage[pipeline.RegionInput, pipeline.HudLayout]
	detectStage pipeline.Stage[pipeline.DetectInput, pipeline.PlayerState]
	trackStage  pipeline.Stage[pipeline.FrameData, []pipeline.BoundaryEvent]
	aggregate   AggregateStage

	matches ports.MatchSink
	overlay ports.OverlayRenderer
	sink    ports.DebugSink
	logger  ports.Logger
}

// New creates a new Orchestrator. overlay may be nil when the debug sink is
// disabled.
func New(
	regionStage pipeline.Stage[pipeline.RegionInput, pipeline.HudLayout],
	detectStage pipeline.Stage[pipeline.DetectInput, pipeline.PlayerState],
	trackStage pipeline.Stage[pipeline.FrameData, []pipeline.BoundaryEvent],
	aggregate AggregateStage,
	matches ports.MatchSink,
	overlay ports.OverlayRenderer,
	sink ports.DebugSink,
	logger ports.Logger,
) *Orchestrator {
	return &Orchestrator{
		regionStage: regionStage,
		detectStage: detectStage,
		trackStage:  trackStage,
		aggregate:   aggregate,
		matches:     matches,
		overlay:     overlay,
		sink:        sink,
		logger:      logger,
	}
}

// RunResult summarizes a completed analysis run.
type RunResult struct {
	FramesAnalyzed      int
	LowConfidenceFrames int
	Matches             int
	Rounds              int
}

// Run pulls every frame from the source and feeds it through the stages.
// It terminates normally at end of stream, and on cancellation or a source
// failure it flushes aggregator state before returning the error, so no
// round or match data is lost on abort.
func (o *Orchestrator) Run(ctx context.Context, source ports.FrameSource) (RunResult, error) {
	o.logger.Info(l10n.T("Starting analysis pipeline"))

	var result RunResult
	var layout pipeline.HudLayout
	haveLayout := false

	// Last known good ratios, carried into low-confidence frames.
	var lastP1, lastP2 float64
	haveP1, haveP2 := false, false

	readings := make([]pipeline.FrameData, 0, 256)

	for {
		select {
		case <-ctx.Done():
			o.logger.Warn(l10n.T("Analysis cancelled, flushing partial results"))
			o.flush(&result)
			return result, ctx.Err()
		default:
		}

		frame, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			o.flush(&result)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			o.logger.Error(l10n.F("Frame source failed after frame %d: %s", result.FramesAnalyzed, err))
			return result, fmt.Errorf("frame source (after %d frames): %w", result.FramesAnalyzed, err)
		}

		dim := pipeline.Dimension{Width: frame.Width, Height: frame.Height}
		if !haveLayout || layout.Frame != dim {
			layout, err = o.regionStage.Execute(ctx, pipeline.RegionInput{Width: frame.Width, Height: frame.Height})
			if err != nil {
				frame.Release()
				o.flush(&result)
				o.logger.Error(l10n.F("Region extraction failed at frame %d (%dx%d): %s", frame.Index, frame.Width, frame.Height, err))
				return result, fmt.Errorf("region stage at frame %d (%dx%d): %w", frame.Index, frame.Width, frame.Height, err)
			}
			haveLayout = true
			o.logger.Info(l10n.F("HUD layout resolved for %dx%d", frame.Width, frame.Height))
			o.saveLayoutDebug(layout)
		}

		p1, p2, err := o.detectBoth(ctx, frame, layout)
		if err != nil {
			frame.Release()
			o.flush(&result)
			return result, fmt.Errorf("detect stage at frame %d: %w", frame.Index, err)
		}

		fd := o.assemble(frame, p1, p2, &lastP1, &lastP2, &haveP1, &haveP2)

		if o.sink.Enabled() && o.overlay != nil {
			if img, oerr := o.overlay.RenderOverlay(frame, layout, fd); oerr == nil {
				o.sink.SaveOverlayFrame(frame.Index, img)
			} else {
				o.logger.Warn(l10n.F("Overlay rendering failed at frame %d: %s", frame.Index, oerr))
			}
		}

		// The frame buffer is scoped to this iteration: release as soon
		// as both detections (and the optional overlay) are done.
		frame.Release()

		if !haveP1 || !haveP2 {
			// No usable reading has ever been produced; there is
			// nothing meaningful to record yet.
			o.logger.Debug("No health reading available yet at frame %d, skipping", fd.Index)
			continue
		}

		if !fd.Confident() {
			result.LowConfidenceFrames++
		}
		result.FramesAnalyzed++
		if o.sink.Enabled() {
			readings = append(readings, fd)
		}

		events, err := o.trackStage.Execute(ctx, fd)
		if err != nil {
			o.flush(&result)
			return result, fmt.Errorf("track stage at frame %d: %w", fd.Index, err)
		}

		finalized, err := o.aggregate.Execute(ctx, pipeline.AggregateInput{Frame: fd, Events: events})
		if err != nil {
			o.flush(&result)
			return result, fmt.Errorf("aggregate stage at frame %d: %w", fd.Index, err)
		}
		for _, m := range finalized {
			if err := o.emit(m, &result); err != nil {
				return result, err
			}
		}
	}

	o.logger.Info(l10n.F("Frame stream complete: %d frames analyzed", result.FramesAnalyzed))
	o.saveReadingsDebug(readings)
	if err := o.flushErr(&result); err != nil {
		return result, err
	}
	o.logger.Info(l10n.F("Analysis finished: %d matches, %d rounds", result.Matches, result.Rounds))
	return result, nil
}

// detectBoth runs the two player detections concurrently and reduces them
// into one ordered pair.
func (o *Orchestrator) detectBoth(ctx context.Context, frame *pipeline.Frame, layout pipeline.HudLayout) (pipeline.PlayerState, pipeline.PlayerState, error) {
	var (
		wg    sync.WaitGroup
		p2    pipeline.PlayerState
		p2Err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		p2, p2Err = o.detectStage.Execute(ctx, pipeline.DetectInput{Frame: frame, Region: layout.P2, Slot: pipeline.SlotP2})
	}()

	p1, p1Err := o.detectStage.Execute(ctx, pipeline.DetectInput{Frame: frame, Region: layout.P1, Slot: pipeline.SlotP1})
	wg.Wait()

	if p1Err != nil {
		return p1, p2, p1Err
	}
	return p1, p2, p2Err
}

// assemble builds the FrameData for one frame, carrying the last known
// ratio into low-confidence readings instead of fabricating a value.
func (o *Orchestrator) assemble(
	frame *pipeline.Frame,
	p1, p2 pipeline.PlayerState,
	lastP1, lastP2 *float64,
	haveP1, haveP2 *bool,
) pipeline.FrameData {
	if p1.Valid {
		*lastP1 = p1.HealthRatio
		*haveP1 = true
	} else if *haveP1 {
		p1.HealthRatio = *lastP1
	}
	if p2.Valid {
		*lastP2 = p2.HealthRatio
		*haveP2 = true
	} else if *haveP2 {
		p2.HealthRatio = *lastP2
	}

	return pipeline.FrameData{
		Index:     frame.Index,
		Timestamp: frame.Timestamp,
		P1:        p1,
		P2:        p2,
	}
}

func (o *Orchestrator) emit(m *pipeline.Match, result *RunResult) error {
	result.Matches++
	result.Rounds += len(m.Rounds)
	if err := o.matches.WriteMatch(m); err != nil {
		o.logger.Error(l10n.F("Failed to write match: %s", err))
		return fmt.Errorf("write match: %w", err)
	}
	return nil
}

// flush finalizes trailing state, logging (not returning) sink errors.
// Used on abort paths where a more important error is already in flight.
func (o *Orchestrator) flush(result *RunResult) {
	if err := o.flushErr(result); err != nil {
		o.logger.Error(l10n.F("Failed to write match: %s", err))
	}
}

func (o *Orchestrator) flushErr(result *RunResult) error {
	m := o.aggregate.Flush()
	if m == nil {
		return nil
	}
	o.logger.Info(l10n.F("Flushing open match with %d rounds at stream end", len(m.Rounds)))
	return o.emit(m, result)
}

func (o *Orchestrator) saveLayoutDebug(layout pipeline.HudLayout) {
	if !o.sink.Enabled() {
		return
	}
	if data, err := json.MarshalIndent(layout, "", "  "); err == nil {
		o.sink.SaveCalibrationJSON(data)
	}
}

func (o *Orchestrator) saveReadingsDebug(readings []pipeline.FrameData) {
	if !o.sink.Enabled() || len(readings) == 0 {
		return
	}
	if data, err := json.MarshalIndent(readings, "", "  "); err == nil {
		o.sink.SaveReadingsJSON(data)
	}
}
