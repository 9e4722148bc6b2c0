package presets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	p := Default()

	if got := p.Models["Generalist"]; got != "meta-llama/llama-3-70b-instruct" {
		t.Errorf("Generalist = %q", got)
	}
	want := []string{"Committed", "Early Dating", "Strangers"}
	got := p.ScenarioNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ScenarioNames() = %v, want %v", got, want)
	}
	if p.Defaults.NumTurns != 10 {
		t.Errorf("NumTurns = %d, want 10", p.Defaults.NumTurns)
	}
	if p.Defaults.InitialMessage != "Hello." {
		t.Errorf("InitialMessage = %q", p.Defaults.InitialMessage)
	}
	prompt, err := p.Scenario("Strangers")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(prompt, "You do not know the other person.") || strings.Contains(prompt, "\n") {
		t.Errorf("Strangers prompt = %q", prompt)
	}
}

func TestResolveModel(t *testing.T) {
	p := Default()
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"Specialized", "gryphe/mythomax-l2-13b", false},
		{"qwen/qwen3-coder:free", "qwen/qwen3-coder:free", false},
		{"Unknown", "", true},
	}
	for _, tt := range tests {
		got, err := p.ResolveModel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveModel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnknownScenario(t *testing.T) {
	_, err := Default().Scenario("Enemies")
	if err == nil || !strings.Contains(err.Error(), "Strangers") {
		t.Fatalf("expected error listing known scenarios, got %v", err)
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	doc := "models:\n  DeepSeek: deepseek/deepseek-chat\nscenarios:\n  Strangers: Say hi.\ndefaults:\n  num_turns: 4\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Models["DeepSeek"] != "deepseek/deepseek-chat" {
		t.Errorf("user model missing")
	}
	if p.Models["Generalist"] == "" {
		t.Errorf("default model dropped")
	}
	if p.Scenarios["Strangers"] != "Say hi." {
		t.Errorf("Strangers = %q, want override", p.Scenarios["Strangers"])
	}
	if p.Defaults.NumTurns != 4 || p.Defaults.InitialMessage != "Hello." {
		t.Errorf("Defaults = %+v", p.Defaults)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Models) != 2 {
		t.Errorf("got %d models, want 2", len(p.Models))
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("models: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
