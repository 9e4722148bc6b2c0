// Package presets holds static experiment data: model aliases, scenario
// prompts and run defaults.
package presets

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Defaults struct {
	NumTurns       int    `yaml:"num_turns"`
	InitialMessage string `yaml:"initial_message"`
}

type Presets struct {
	Models    map[string]string `yaml:"models"`
	Scenarios map[string]string `yaml:"scenarios"`
	Defaults  Defaults          `yaml:"defaults"`
}

// Default returns the embedded presets.
func Default() *Presets {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("presets: embedded defaults: %v", err))
	}
	return p
}

// Parse decodes a presets document.
func Parse(data []byte) (*Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("presets: decoding: %w", err)
	}
	if p.Models == nil {
		p.Models = map[string]string{}
	}
	if p.Scenarios == nil {
		p.Scenarios = map[string]string{}
	}
	return &p, nil
}

// Load returns the embedded presets with the file at path merged over them.
// Entries in the file replace same-named defaults; an empty path returns the
// defaults unchanged.
func Load(path string) (*Presets, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presets: reading %s: %w", path, err)
	}
	user, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("presets: %s: %w", path, err)
	}
	p.merge(user)
	return p, nil
}

func (p *Presets) merge(o *Presets) {
	for k, v := range o.Models {
		p.Models[k] = v
	}
	for k, v := range o.Scenarios {
		p.Scenarios[k] = v
	}
	if o.Defaults.NumTurns > 0 {
		p.Defaults.NumTurns = o.Defaults.NumTurns
	}
	if o.Defaults.InitialMessage != "" {
		p.Defaults.InitialMessage = o.Defaults.InitialMessage
	}
}

// ResolveModel maps an alias to its slug. Anything containing a slash is
// taken as a slug already.
func (p *Presets) ResolveModel(nameOrSlug string) (string, error) {
	if slug, ok := p.Models[nameOrSlug]; ok {
		return slug, nil
	}
	if strings.Contains(nameOrSlug, "/") {
		return nameOrSlug, nil
	}
	return "", fmt.Errorf("presets: unknown model %q (known: %s)", nameOrSlug, strings.Join(p.ModelNames(), ", "))
}

// Scenario returns the prompt of a named scenario.
func (p *Presets) Scenario(name string) (string, error) {
	prompt, ok := p.Scenarios[name]
	if !ok {
		return "", fmt.Errorf("presets: unknown scenario %q (known: %s)", name, strings.Join(p.ScenarioNames(), ", "))
	}
	return prompt, nil
}

func (p *Presets) ScenarioNames() []string {
	return sortedKeys(p.Scenarios)
}

func (p *Presets) ModelNames() []string {
	return sortedKeys(p.Models)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
