package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/agent"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/presets"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/retry"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/sink"
)

func TestE2EDialogueWithMockServer(t *testing.T) {
	var requestCount atomic.Int32

	// Mock OpenRouter server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		var req openrouter.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)

		// Verify auth header
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-key-123" {
			t.Errorf("bad auth header: %s", auth)
		}

		// First call to each model is throttled once
		if count == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}

		last := req.Messages[len(req.Messages)-1]
		if last.Role != "user" {
			t.Errorf("last message role = %q, want user", last.Role)
		}

		var content, finish string
		switch {
		case strings.Contains(req.Messages[0].Content, "refuse"):
			content, finish = "I'm sorry, but I can't help with that.", "stop"
		default:
			content, finish = fmt.Sprintf("%s says hi after %q", req.Model, last.Content), "stop"
		}

		resp := openrouter.ChatResponse{
			Choices: []openrouter.Choice{{Message: openrouter.Message{Role: "assistant", Content: content}, FinishReason: finish}},
		}
		if count%3 != 0 {
			resp.Usage = &openrouter.Usage{PromptTokens: 30, CompletionTokens: 8}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	// Build the full pipeline with real components
	client := openrouter.NewClientWithBaseURL("test-key-123", server.URL, openrouter.WithTimeout(5*time.Second))

	p := presets.Default()
	scenario, err := p.Scenario("Strangers")
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	modelA, err := p.ResolveModel("Generalist")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}

	policy := retry.DefaultPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	o, err := simulation.New(client,
		simulation.AgentConfig{Name: "Ava", Model: modelA, SystemPrompt: scenario, Params: agent.GenerationOptions{MaxTokens: agent.Int(200)}},
		simulation.AgentConfig{Name: "Ben", Model: "vendor/other-model", SystemPrompt: "You refuse everything.", PersonaSnapshot: "refuser"},
		"Strangers",
		simulation.WithRetryPolicy(policy),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stream, err := o.Run(3, "Hello.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "nested", "experiment_log.jsonl")
	for entry, err := range stream.All(context.Background()) {
		if err != nil {
			t.Fatalf("stream failed after %d entries: %v", stream.Produced(), err)
		}
		if err := sink.SaveLogs(logPath, entry); err != nil {
			t.Fatalf("SaveLogs: %v", err)
		}
	}

	// 3 turns per agent plus one retried call
	if got := requestCount.Load(); got != 7 {
		t.Errorf("requests = %d, want 7", got)
	}

	entries, err := sink.ReadLogs(logPath)
	if err != nil {
		t.Fatalf("ReadLogs: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("entries = %d, want 6", len(entries))
	}
	for i, e := range entries {
		if e.TurnID != i {
			t.Errorf("entry %d turn_id = %d", i, e.TurnID)
		}
		if e.ExperimentID != o.ExperimentID() {
			t.Errorf("entry %d experiment_id = %q, want %q", i, e.ExperimentID, o.ExperimentID())
		}
		if e.InputTokens <= 0 || e.OutputTokens <= 0 {
			t.Errorf("entry %d tokens = %d/%d, want positive", i, e.InputTokens, e.OutputTokens)
		}
		speakerB := i%2 == 1
		if speakerB != e.IsRefusal {
			t.Errorf("entry %d is_refusal = %v", i, e.IsRefusal)
		}
		if speakerB && e.SystemPromptSnapshot != "refuser" {
			t.Errorf("entry %d snapshot = %q, want refuser", i, e.SystemPromptSnapshot)
		}
	}
	if !strings.Contains(entries[0].Content, `"Hello."`) {
		t.Errorf("first reply should answer the seed, got %q", entries[0].Content)
	}
	if entries[0].SpeakerModel != modelA || entries[0].ResponderModel != "vendor/other-model" {
		t.Errorf("entry 0 models = %s -> %s", entries[0].SpeakerModel, entries[0].ResponderModel)
	}

	// Export and summarize
	var buf bytes.Buffer
	if err := sink.ExportCSV(&buf, entries); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(rows) != 7 {
		t.Errorf("csv rows = %d, want 7", len(rows))
	}

	summary := sink.Summarize(entries)
	if len(summary) != 2 {
		t.Fatalf("summary rows = %d, want 2", len(summary))
	}
	if summary[1].RefusalRate != 1 || summary[0].RefusalRate != 0 {
		t.Errorf("refusal rates = %v, %v", summary[0].RefusalRate, summary[1].RefusalRate)
	}
}
