package sink

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

// ModelSummary aggregates the turns spoken by one model.
type ModelSummary struct {
	Model            string
	Turns            int
	Experiments      int
	MeanLatencyMS    float64
	StdDevLatencyMS  float64
	P95LatencyMS     float64
	MeanInputTokens  float64
	MeanOutputTokens float64
	RefusalRate      float64
}

// Summarize groups entries by speaker_model. Models are returned in order
// of first appearance.
func Summarize(entries []simulation.LogEntry) []ModelSummary {
	type acc struct {
		latency, in, out []float64
		refusals         int
		experiments      map[string]struct{}
	}
	var order []string
	groups := map[string]*acc{}
	for _, e := range entries {
		g, ok := groups[e.SpeakerModel]
		if !ok {
			g = &acc{experiments: map[string]struct{}{}}
			groups[e.SpeakerModel] = g
			order = append(order, e.SpeakerModel)
		}
		g.latency = append(g.latency, e.LatencyMS)
		g.in = append(g.in, float64(e.InputTokens))
		g.out = append(g.out, float64(e.OutputTokens))
		if e.IsRefusal {
			g.refusals++
		}
		g.experiments[e.ExperimentID] = struct{}{}
	}

	out := make([]ModelSummary, 0, len(order))
	for _, model := range order {
		g := groups[model]
		n := len(g.latency)
		s := ModelSummary{
			Model:            model,
			Turns:            n,
			Experiments:      len(g.experiments),
			MeanInputTokens:  stat.Mean(g.in, nil),
			MeanOutputTokens: stat.Mean(g.out, nil),
			RefusalRate:      float64(g.refusals) / float64(n),
		}
		if n > 1 {
			s.MeanLatencyMS, s.StdDevLatencyMS = stat.MeanStdDev(g.latency, nil)
		} else {
			s.MeanLatencyMS = g.latency[0]
		}
		sorted := slices.Clone(g.latency)
		slices.Sort(sorted)
		s.P95LatencyMS = stat.Quantile(0.95, stat.Empirical, sorted, nil)
		out = append(out, s)
	}
	return out
}
