package sink

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

// CSVHeader lists the exported columns in JSONL field order.
var CSVHeader = []string{
	"experiment_id",
	"turn_id",
	"scenario",
	"speaker_model",
	"responder_model",
	"timestamp",
	"latency_ms",
	"input_tokens",
	"output_tokens",
	"content",
	"finish_reason",
	"is_refusal",
	"system_prompt_snapshot",
}

// ExportCSV writes a header row followed by one row per entry.
func ExportCSV(w io.Writer, entries []simulation.LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return &PersistenceError{Op: "csv", Err: err}
	}
	for _, e := range entries {
		row := []string{
			e.ExperimentID,
			strconv.Itoa(e.TurnID),
			e.Scenario,
			e.SpeakerModel,
			e.ResponderModel,
			e.Timestamp,
			strconv.FormatFloat(e.LatencyMS, 'f', -1, 64),
			strconv.Itoa(e.InputTokens),
			strconv.Itoa(e.OutputTokens),
			e.Content,
			e.FinishReason,
			strconv.FormatBool(e.IsRefusal),
			e.SystemPromptSnapshot,
		}
		if err := cw.Write(row); err != nil {
			return &PersistenceError{Op: "csv", Err: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &PersistenceError{Op: "csv", Err: err}
	}
	return nil
}
