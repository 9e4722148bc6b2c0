package openrouter

import "encoding/json"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the chat completions endpoint.
// Nil sampling fields are omitted so the provider defaults apply.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`

	// Extra holds pass-through sampling parameters (seed, presence_penalty,
	// ...). Keys that collide with the typed fields above are ignored.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the request object.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	type wire ChatRequest
	base, err := json.Marshal(wire(r))
	if err != nil || len(r.Extra) == 0 {
		return base, err
	}

	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(known)+len(r.Extra))
	for k, v := range r.Extra {
		merged[k] = v
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// ChatResponse represents a response from the chat completions endpoint.
type ChatResponse struct {
	ID      string     `json:"id,omitempty"`
	Model   string     `json:"model,omitempty"`
	Choices []Choice   `json:"choices"`
	Usage   *Usage     `json:"usage,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorBody is the error object OpenRouter embeds in some responses,
// including ones delivered with a 200 status.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Model represents an OpenRouter model.
type Model struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ContextLength int      `json:"context_length,omitempty"`
	Pricing       *Pricing `json:"pricing"`
}

// Pricing represents model pricing information.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelsResponse represents the response from the models endpoint.
type ModelsResponse struct {
	Data []Model `json:"data"`
}
