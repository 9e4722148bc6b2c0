package models

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/presets"
)

// Lister fetches the provider's model catalogue. *openrouter.Client implements it.
type Lister interface {
	ListModels(ctx context.Context) ([]openrouter.Model, error)
}

// Registry holds the known models, indexed by ID.
type Registry struct {
	all  []openrouter.Model
	free []openrouter.Model
	byID map[string]openrouter.Model
}

// NewRegistry indexes models. A model is free when both prompt and
// completion prices are "0"; models with nil Pricing are never free.
func NewRegistry(models []openrouter.Model) *Registry {
	r := &Registry{byID: make(map[string]openrouter.Model, len(models))}
	for _, m := range models {
		r.all = append(r.all, m)
		r.byID[m.ID] = m
		if isFree(m) {
			r.free = append(r.free, m)
		}
	}
	return r
}

func isFree(m openrouter.Model) bool {
	return m.Pricing != nil && m.Pricing.Prompt == "0" && m.Pricing.Completion == "0"
}

// Fetch builds a registry from the live catalogue. If listing fails the
// preset models are used instead and the listing error is returned
// alongside the fallback registry.
func Fetch(ctx context.Context, l Lister, p *presets.Presets) (*Registry, error) {
	live, err := l.ListModels(ctx)
	if err != nil {
		return FromPresets(p), fmt.Errorf("models: listing: %w", err)
	}
	return NewRegistry(live), nil
}

// FromPresets returns a registry of the preset model slugs plus the known
// free models. Preset slugs carry no pricing.
func FromPresets(p *presets.Presets) *Registry {
	var models []openrouter.Model
	for _, alias := range p.ModelNames() {
		models = append(models, openrouter.Model{ID: p.Models[alias], Name: alias})
	}
	return NewRegistry(append(models, DefaultFreeModels()...))
}

// Models returns every model in catalogue order.
func (r *Registry) Models() []openrouter.Model {
	return r.all
}

// FreeModels returns all free models in the registry.
func (r *Registry) FreeModels() []openrouter.Model {
	return r.free
}

// Lookup returns the model with the given ID.
func (r *Registry) Lookup(id string) (openrouter.Model, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Search returns the models whose ID or name contains query, case-insensitively.
func (r *Registry) Search(query string) []openrouter.Model {
	q := strings.ToLower(query)
	var out []openrouter.Model
	for _, m := range r.all {
		if strings.Contains(strings.ToLower(m.ID), q) || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	return out
}

// Validate reports an error for each model ID the registry does not know.
func (r *Registry) Validate(ids ...string) error {
	var missing []string
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("models: unknown model(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// DefaultFreeModels returns a hardcoded fallback list of known free models.
func DefaultFreeModels() []openrouter.Model {
	return []openrouter.Model{
		{ID: "qwen/qwen3-235b-a22b:free", Name: "Qwen3 235B A22B", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}},
		{ID: "google/gemma-3n-e2b-it:free", Name: "Gemma 3n 2B", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}},
		{ID: "nvidia/nemotron-nano-9b-v2:free", Name: "Nemotron Nano 9B V2", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}},
		{ID: "openai/gpt-oss-120b:free", Name: "GPT OSS 120B", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}},
	}
}
