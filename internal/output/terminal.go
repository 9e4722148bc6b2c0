package output

import (
	"fmt"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/agent"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/sink"
)

const (
	ansiReset   = "\033[0m"
	ansiBold    = "\033[1m"
	ansiDim     = "\033[2m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	AnsiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
)

// Colorize wraps s with an ANSI color code and reset.
func Colorize(color, s string) string { return color + s + ansiReset }

// Bold wraps s with ANSI bold and reset.
func Bold(s string) string { return ansiBold + s + ansiReset }

func sideColor(s agent.Side) string {
	if s == agent.SideB {
		return AnsiMagenta
	}
	return ansiCyan
}

// PrintHeader prints the run banner.
func PrintHeader(experimentID, scenario, modelA, modelB string, numTurns int) {
	fmt.Printf("\n%s\n", Colorize(ansiBold+ansiCyan, "=== Dialogue Simulation ==="))
	fmt.Printf("Experiment: %s\n", experimentID)
	fmt.Printf("Scenario: %s\n", Bold(scenario))
	fmt.Printf("Agent A: %s\n", Colorize(ansiCyan, modelA))
	fmt.Printf("Agent B: %s\n", Colorize(AnsiMagenta, modelB))
	fmt.Printf("Turns per agent: %d\n\n", numTurns)
}

// PrintEntry prints one turn with its metadata line.
func PrintEntry(e simulation.LogEntry, speaker string) {
	side := e.Speaker()
	fmt.Printf("%s %s: %s\n",
		Colorize(ansiYellow, fmt.Sprintf("[Turn %d]", e.TurnID)),
		Bold(Colorize(sideColor(side), speaker)),
		e.Content,
	)
	meta := fmt.Sprintf("  %s | %.0f ms | in %d / out %d tokens | %s",
		e.SpeakerModel, e.LatencyMS, e.InputTokens, e.OutputTokens, e.FinishReason)
	fmt.Println(Colorize(ansiDim, meta))
	if e.IsRefusal {
		fmt.Println(Colorize(ansiBold+ansiRed, "  refusal detected"))
	}
}

// PrintFailure reports a run that ended early.
func PrintFailure(produced int, err error) {
	fmt.Printf("\n%s after %d completed turn(s): %v\n", Colorize(ansiBold+ansiRed, "Simulation failed"), produced, err)
}

// PrintDone reports a completed run.
func PrintDone(produced int, path string) {
	fmt.Printf("\n%s %d turn(s) written to %s\n", Colorize(ansiBold+ansiGreen, "Done."), produced, path)
}

// PrintSummary prints per-model statistics.
func PrintSummary(rows []sink.ModelSummary) {
	if len(rows) == 0 {
		fmt.Println("No entries.")
		return
	}
	fmt.Printf("%s\n", Colorize(ansiBold+ansiCyan, "=== Summary by speaker model ==="))
	for _, r := range rows {
		refusal := Colorize(ansiGreen, fmt.Sprintf("%.1f%%", 100*r.RefusalRate))
		if r.RefusalRate > 0 {
			refusal = Colorize(ansiRed, fmt.Sprintf("%.1f%%", 100*r.RefusalRate))
		}
		fmt.Printf("%s\n", Bold(r.Model))
		fmt.Printf("  turns: %d across %d experiment(s)\n", r.Turns, r.Experiments)
		fmt.Printf("  latency: mean %.0f ms, sd %.0f ms, p95 %.0f ms\n", r.MeanLatencyMS, r.StdDevLatencyMS, r.P95LatencyMS)
		fmt.Printf("  tokens: mean in %.1f, mean out %.1f\n", r.MeanInputTokens, r.MeanOutputTokens)
		fmt.Printf("  refusal rate: %s\n", refusal)
	}
}
