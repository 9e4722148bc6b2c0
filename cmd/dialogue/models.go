package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/models"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/presets"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List OpenRouter models and the preset aliases",
		RunE:  runModels,
	}
	cmd.Flags().Bool("free", false, "Only list free models")
	cmd.Flags().String("search", "", "Filter by substring of ID or name")
	return cmd
}

func runModels(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	p, err := presets.Load(v.GetString("presets"))
	if err != nil {
		return err
	}

	client := openrouter.NewClientWithBaseURL(v.GetString("api_key"), v.GetString("base_url"),
		openrouter.WithTimeout(v.GetDuration("timeout")))
	reg, err := models.Fetch(cmd.Context(), client, p)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not fetch models: %v. Using defaults.\n", err)
	}

	list := reg.Models()
	if free, _ := cmd.Flags().GetBool("free"); free {
		list = reg.FreeModels()
	}
	if q, _ := cmd.Flags().GetString("search"); q != "" {
		matches := reg.Search(q)
		if free, _ := cmd.Flags().GetBool("free"); free {
			matches = freeOnly(reg, matches)
		}
		list = matches
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Aliases:")
	for _, alias := range p.ModelNames() {
		fmt.Fprintf(out, "  %-14s %s\n", alias, p.Models[alias])
	}
	fmt.Fprintf(out, "\nModels (%d):\n", len(list))
	for _, m := range list {
		fmt.Fprintf(out, "  %-50s %s\n", m.ID, m.Name)
	}
	return nil
}

func freeOnly(reg *models.Registry, ms []openrouter.Model) []openrouter.Model {
	free := make(map[string]bool)
	for _, m := range reg.FreeModels() {
		free[m.ID] = true
	}
	var out []openrouter.Model
	for _, m := range ms {
		if free[m.ID] {
			out = append(out, m)
		}
	}
	return out
}
