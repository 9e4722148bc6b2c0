package simulation

import (
	"context"
	"io"
	"iter"

	"go.uber.org/zap"
)

// Stream is the lazy, single-pass sequence of LogEntries of one run. Each
// Next performs at most one agent call. It is not safe for concurrent use.
type Stream struct {
	o       *Orchestrator
	total   int
	turnID  int
	pending string
	err     error
}

// Next returns the next entry. It returns io.EOF once the run is complete.
// After a failure every call returns the same error without further API
// calls. Abandoning a Stream needs no cleanup.
func (s *Stream) Next(ctx context.Context) (LogEntry, error) {
	if s.err != nil {
		return LogEntry{}, s.err
	}
	if s.turnID >= s.total {
		return LogEntry{}, s.finish(io.EOF)
	}

	o := s.o
	speaker, responder, cfg := o.turn(s.turnID)
	res, err := speaker.GenerateResponse(ctx, s.pending, cfg.Params)
	if err != nil {
		terr := &TurnError{TurnID: s.turnID, Speaker: speaker.Name(), Model: speaker.Model(), Err: err}
		o.logger.Error("turn failed",
			zap.Int("turn_id", s.turnID),
			zap.String("speaker", speaker.Name()),
			zap.Int("completed_turns", s.turnID),
			zap.Error(err),
		)
		for _, obs := range o.observers {
			obs.TurnFailed(s.turnID, speaker.Model(), err)
		}
		return LogEntry{}, s.finish(terr)
	}

	entry := o.entry(s.turnID, speaker, responder, cfg, res)
	o.logger.Debug("turn completed",
		zap.Int("turn_id", entry.TurnID),
		zap.String("speaker_model", entry.SpeakerModel),
		zap.Float64("latency_ms", entry.LatencyMS),
		zap.Int("attempts", res.Attempts),
		zap.Bool("is_refusal", entry.IsRefusal),
	)
	for _, obs := range o.observers {
		obs.TurnCompleted(entry, res.Attempts)
	}

	s.pending = res.Content
	s.turnID++
	if entry.IsRefusal && o.stopOnRefusal {
		o.logger.Info("stopping on refusal", zap.Int("turn_id", entry.TurnID))
		s.total = s.turnID
	}
	return entry, nil
}

func (s *Stream) finish(err error) error {
	s.err = err
	if err == io.EOF {
		s.o.logger.Info("simulation finished", zap.Int("entries", s.turnID))
	}
	return err
}

// Produced returns the number of entries yielded so far.
func (s *Stream) Produced() int { return s.turnID }

// Err returns the terminal error, or nil while the stream is live or after
// a clean finish.
func (s *Stream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// All ranges over the remaining entries. A failure is yielded once as the
// final pair; a clean end yields nothing more.
func (s *Stream) All(ctx context.Context) iter.Seq2[LogEntry, error] {
	return func(yield func(LogEntry, error) bool) {
		for {
			entry, err := s.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(LogEntry{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Collect drains the stream. On failure it returns the entries produced
// before the error together with the error.
func (s *Stream) Collect(ctx context.Context) ([]LogEntry, error) {
	var out []LogEntry
	for entry, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
	return out, nil
}
