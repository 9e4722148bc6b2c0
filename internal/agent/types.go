package agent

import (
	"context"
	"fmt"
	"maps"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
)

// Side identifies which participant an agent plays.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideB {
		return "B"
	}
	return "A"
}

// Peer returns the opposite side.
func (s Side) Peer() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Role returns the history role of messages authored by this side.
func (s Side) Role() Role {
	if s == SideB {
		return RoleAssistantB
	}
	return RoleAssistantA
}

// Role tags who authored a ConversationMessage.
type Role string

const (
	RoleSystem     Role = "system"
	RoleAssistantA Role = "assistant_a"
	RoleAssistantB Role = "assistant_b"
)

// Message is one entry of an agent's conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Finish reasons reported in Result.FinishReason. Providers may report
// others; those are passed through.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishToolCalls     = "tool_calls"
	FinishError         = "error"
	FinishUnknown       = "unknown"
)

// Completer is the completion API boundary. *openrouter.Client implements it.
type Completer interface {
	ChatCompletion(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// GenerationOptions are per-call sampling parameters. Nil fields fall back
// to the provider defaults.
type GenerationOptions struct {
	Temperature *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TopP        *float64       `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Validate checks the recognized options against their allowed ranges.
func (o GenerationOptions) Validate() error {
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0,2], got %g", *o.Temperature)
	}
	if o.MaxTokens != nil && *o.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", *o.MaxTokens)
	}
	if o.TopP != nil && (*o.TopP <= 0 || *o.TopP > 1) {
		return fmt.Errorf("top_p must be in (0,1], got %g", *o.TopP)
	}
	return nil
}

func (o GenerationOptions) apply(req *openrouter.ChatRequest) {
	req.Temperature = o.Temperature
	req.MaxTokens = o.MaxTokens
	req.TopP = o.TopP
	if len(o.Extra) > 0 {
		req.Extra = maps.Clone(o.Extra)
	}
}

// Float returns a pointer to v, for filling GenerationOptions.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for filling GenerationOptions.
func Int(v int) *int { return &v }

// Result is the outcome of one successful GenerateResponse call.
type Result struct {
	Content      string
	LatencyMS    float64
	InputTokens  int
	OutputTokens int
	FinishReason string
	IsRefusal    bool
	// Attempts counts API calls made, including failed transient ones.
	Attempts int
}
