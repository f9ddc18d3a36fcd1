// Package aggregate implements the result aggregation stage: frame readings
// accumulate into rounds, rounds into matches, finalized on boundary events
// or at end of stream.
package aggregate

import (
	"context"

	"github.com/google/uuid"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

// Aggregator owns the currently open round and match. It is strictly
// sequential and single-writer; finalized matches are returned to the
// caller for the output sink and never mutated afterwards.
type Aggregator struct {
	source pipeline.SourceMetadata
	log    ports.Logger

	match *pipeline.Match
	round *pipeline.Round
}

// NewStage creates an aggregator. The source metadata is stamped onto every
// finalized match.
func NewStage(source pipeline.SourceMetadata, logger ports.Logger) *Aggregator {
	return &Aggregator{source: source, log: logger.WithComponent("aggregate")}
}

// Execute applies the frame's boundary events, then appends the frame to
// the open round. It returns any matches finalized by the events.
func (a *Aggregator) Execute(ctx context.Context, input pipeline.AggregateInput) ([]*pipeline.Match, error) {
	var finalized []*pipeline.Match
	for _, ev := range input.Events {
		if m := a.Apply(ev); m != nil {
			finalized = append(finalized, m)
		}
	}
	a.Append(input.Frame)
	return finalized, nil
}

// Apply processes one boundary event. On a round boundary the open round is
// finalized into the open match. On a match boundary the open match
// (including its open round) is finalized and returned.
func (a *Aggregator) Apply(ev pipeline.BoundaryEvent) *pipeline.Match {
	switch ev.Kind {
	case pipeline.RoundBoundary:
		a.closeRound(pipeline.TerminatedByBoundary)
		return nil
	case pipeline.MatchBoundary:
		return a.closeMatch(pipeline.TerminatedByBoundary)
	}
	return nil
}

// Append adds one frame reading to the open round, opening a new round and
// match as needed. Frames arrive in strictly increasing index order.
func (a *Aggregator) Append(fd pipeline.FrameData) {
	if a.match == nil {
		a.match = &pipeline.Match{
			ID:        uuid.New(),
			Source:    a.source,
			StartTime: fd.Timestamp,
		}
		a.log.Debug("Opened match %s at frame %d", a.match.ID.String(), fd.Index)
	}
	if a.round == nil {
		a.round = &pipeline.Round{StartIndex: fd.Index, EndIndex: fd.Index}
	}
	a.round.Frames = append(a.round.Frames, fd)
	a.round.EndIndex = fd.Index
	a.match.EndTime = fd.Timestamp
}

// Flush force-finalizes any still-open round and match at end of stream or
// on abort, marking them stream-terminated so trailing data is never
// silently dropped. Returns nil when nothing was open.
func (a *Aggregator) Flush() *pipeline.Match {
	return a.closeMatch(pipeline.TerminatedByStreamEnd)
}

func (a *Aggregator) closeRound(term pipeline.Termination) {
	if a.round == nil {
		return
	}
	a.round.Termination = term
	a.match.Rounds = append(a.match.Rounds, *a.round)
	a.log.Debug("Closed round [%d-%d] (%s)", a.round.StartIndex, a.round.EndIndex, term.String())
	a.round = nil
}

func (a *Aggregator) closeMatch(term pipeline.Termination) *pipeline.Match {
	if a.match == nil {
		return nil
	}
	a.closeRound(term)
	if len(a.match.Rounds) == 0 {
		// Flush artifact: a match that never accumulated a round.
		a.match = nil
		return nil
	}
	m := a.match
	m.Termination = term
	a.match = nil
	a.log.Info("Match finalized: %d rounds (%s)", len(m.Rounds), term.String())
	return m
}
