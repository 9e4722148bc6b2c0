package main

import (
	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/output"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/sink"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [log-file]",
		Short: "Print per-model latency, token and refusal statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSummary,
	}
	cmd.Flags().String("experiment", "", "Only include this experiment ID")
	return cmd
}

func runSummary(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	entries, err := sink.ReadLogs(logPath(v, args))
	if err != nil {
		return err
	}
	if id, _ := cmd.Flags().GetString("experiment"); id != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.ExperimentID == id {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	output.PrintSummary(sink.Summarize(entries))
	return nil
}
