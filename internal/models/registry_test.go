package models

import (
	"context"
	"errors"
	"testing"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/presets"
)

func TestNewRegistryFiltersFreeModels(t *testing.T) {
	models := []openrouter.Model{
		{ID: "free-model", Name: "Free", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}},
		{ID: "paid-model", Name: "Paid", Pricing: &openrouter.Pricing{Prompt: "0.01", Completion: "0.02"}},
		{ID: "half-free", Name: "HalfFree", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0.01"}},
	}

	r := NewRegistry(models)
	free := r.FreeModels()

	if len(free) != 1 {
		t.Fatalf("expected 1 free model, got %d", len(free))
	}
	if free[0].ID != "free-model" {
		t.Fatalf("expected free-model, got %s", free[0].ID)
	}
	if len(r.Models()) != 3 {
		t.Fatalf("expected 3 models, got %d", len(r.Models()))
	}
}

func TestNewRegistryExcludesNilPricing(t *testing.T) {
	models := []openrouter.Model{
		{ID: "no-pricing", Name: "NoPricing", Pricing: nil},
		{ID: "free-model", Name: "Free", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}},
	}

	r := NewRegistry(models)
	free := r.FreeModels()

	if len(free) != 1 {
		t.Fatalf("expected 1 free model, got %d", len(free))
	}
	if free[0].ID != "free-model" {
		t.Fatalf("expected free-model, got %s", free[0].ID)
	}
}

func TestLookupAndValidate(t *testing.T) {
	r := NewRegistry([]openrouter.Model{{ID: "a/one", Name: "One"}, {ID: "b/two", Name: "Two"}})

	if m, ok := r.Lookup("a/one"); !ok || m.Name != "One" {
		t.Fatalf("Lookup(a/one) = %v, %v", m, ok)
	}
	if _, ok := r.Lookup("c/three"); ok {
		t.Fatal("expected c/three to be unknown")
	}
	if err := r.Validate("a/one", "b/two"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Validate("a/one", "x/y", "x/y"); err == nil || err.Error() != "models: unknown model(s): x/y" {
		t.Fatalf("Validate error = %v", err)
	}
}

func TestSearch(t *testing.T) {
	r := NewRegistry([]openrouter.Model{
		{ID: "meta-llama/llama-3-70b-instruct", Name: "Llama 3 70B"},
		{ID: "gryphe/mythomax-l2-13b", Name: "MythoMax"},
	})
	if got := r.Search("LLAMA"); len(got) != 1 || got[0].ID != "meta-llama/llama-3-70b-instruct" {
		t.Fatalf("Search(LLAMA) = %v", got)
	}
	if got := r.Search("mytho"); len(got) != 1 {
		t.Fatalf("Search(mytho) = %v", got)
	}
}

type stubLister struct {
	models []openrouter.Model
	err    error
}

func (s stubLister) ListModels(context.Context) ([]openrouter.Model, error) {
	return s.models, s.err
}

func TestFetchLive(t *testing.T) {
	live := []openrouter.Model{{ID: "x/free", Pricing: &openrouter.Pricing{Prompt: "0", Completion: "0"}}}
	r, err := Fetch(context.Background(), stubLister{models: live}, presets.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.FreeModels()) != 1 {
		t.Fatalf("expected 1 free model, got %d", len(r.FreeModels()))
	}
}

func TestFetchFallsBackToPresets(t *testing.T) {
	r, err := Fetch(context.Background(), stubLister{err: errors.New("offline")}, presets.Default())
	if err == nil {
		t.Fatal("expected listing error to be reported")
	}
	if r == nil {
		t.Fatal("expected fallback registry")
	}
	if _, ok := r.Lookup("meta-llama/llama-3-70b-instruct"); !ok {
		t.Fatal("expected preset slug in fallback registry")
	}
	if len(r.FreeModels()) != len(DefaultFreeModels()) {
		t.Fatalf("expected %d free models, got %d", len(DefaultFreeModels()), len(r.FreeModels()))
	}
}

func TestDefaultFreeModelsNonEmpty(t *testing.T) {
	defaults := DefaultFreeModels()
	if len(defaults) == 0 {
		t.Fatal("expected non-empty default free models list")
	}
}
