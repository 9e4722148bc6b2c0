// Package simulation drives a two-agent conversation and produces one
// LogEntry per generated turn, lazily, in turn order.
package simulation

import (
	"errors"
	"fmt"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/agent"
)

// TimestampLayout is the format of LogEntry.Timestamp (UTC).
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// LogEntry is the immutable record of one turn.
type LogEntry struct {
	ExperimentID         string  `json:"experiment_id"`
	TurnID               int     `json:"turn_id"`
	Scenario             string  `json:"scenario"`
	SpeakerModel         string  `json:"speaker_model"`
	ResponderModel       string  `json:"responder_model"`
	Timestamp            string  `json:"timestamp"`
	LatencyMS            float64 `json:"latency_ms"`
	InputTokens          int     `json:"input_tokens"`
	OutputTokens         int     `json:"output_tokens"`
	Content              string  `json:"content"`
	FinishReason         string  `json:"finish_reason"`
	IsRefusal            bool    `json:"is_refusal"`
	SystemPromptSnapshot string  `json:"system_prompt_snapshot"`
}

// Speaker returns the side that produced the entry, derived from turn parity.
func (e LogEntry) Speaker() agent.Side {
	if e.TurnID%2 == 1 {
		return agent.SideB
	}
	return agent.SideA
}

// AgentConfig is the caller-supplied configuration of one participant.
type AgentConfig struct {
	Name         string
	Model        string
	SystemPrompt string
	// PersonaSnapshot, when set, is recorded in system_prompt_snapshot
	// instead of the full system prompt.
	PersonaSnapshot string
	Params          agent.GenerationOptions
}

func (c AgentConfig) snapshot() string {
	if c.PersonaSnapshot != "" {
		return c.PersonaSnapshot
	}
	return c.SystemPrompt
}

// Observer receives turn lifecycle events. Calls happen on the goroutine
// pulling the stream.
type Observer interface {
	TurnCompleted(entry LogEntry, attempts int)
	TurnRetried(model string, attempt int, err error)
	TurnFailed(turnID int, model string, err error)
}

// ErrAlreadyStarted is returned by a second Run on the same Orchestrator.
var ErrAlreadyStarted = errors.New("simulation: run already started")

// TurnError ends a stream. Err is an *agent.GenerationError or
// *agent.ConfigurationError (or the context error).
type TurnError struct {
	TurnID  int
	Speaker string
	Model   string
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("simulation: turn %d (%s, %s): %v", e.TurnID, e.Speaker, e.Model, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
