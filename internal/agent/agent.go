// Package agent holds one side of a two-party conversation: its model,
// immutable system prompt and append-only history, and the resilient call
// that turns a peer message into a reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/clock"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/retry"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/tokens"
)

// Config identifies an agent.
type Config struct {
	Name         string
	Model        string
	SystemPrompt string
	Side         Side
}

// Agent is one simulated participant. It is not safe for concurrent use.
type Agent struct {
	name         string
	model        string
	systemPrompt string
	side         Side
	history      []Message

	llm       Completer
	policy    retry.Policy
	refusals  *RefusalDetector
	estimator tokens.Estimator
	clock     clock.Clock
	logger    *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithRetryPolicy replaces the default policy. A nil Retryable predicate
// is filled with openrouter.IsTransient.
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithRefusalDetector replaces the default refusal heuristic.
func WithRefusalDetector(d *RefusalDetector) Option {
	return func(a *Agent) { a.refusals = d }
}

// WithTokenEstimator sets the fallback used when a response has no usage.
func WithTokenEstimator(e tokens.Estimator) Option {
	return func(a *Agent) { a.estimator = e }
}

// WithClock sets the clock used to measure latency.
func WithClock(c clock.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an Agent with empty history.
func New(cfg Config, llm Completer, opts ...Option) (*Agent, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &ConfigurationError{Agent: cfg.Name, Err: errors.New("model identifier is required")}
	}
	if llm == nil {
		return nil, &ConfigurationError{Agent: cfg.Name, Model: cfg.Model, Err: errors.New("completion client is required")}
	}
	if cfg.Name == "" {
		cfg.Name = "Agent " + cfg.Side.String()
	}

	a := &Agent{
		name:         cfg.Name,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		side:         cfg.Side,
		llm:          llm,
		policy:       retry.DefaultPolicy(),
		refusals:     defaultDetector,
		estimator:    tokens.Heuristic{},
		clock:        clock.System{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.policy.Retryable == nil {
		a.policy.Retryable = openrouter.IsTransient
	}
	if a.policy.RetryAfter == nil {
		a.policy.RetryAfter = openrouter.RetryAfter
	}
	a.logger = a.logger.With(
		zap.String("component", "agent"),
		zap.String("agent", a.name),
		zap.String("model", a.model),
	)
	a.policy.Logger = a.logger
	return a, nil
}

func (a *Agent) Name() string         { return a.name }
func (a *Agent) Model() string        { return a.model }
func (a *Agent) SystemPrompt() string { return a.systemPrompt }
func (a *Agent) Side() Side           { return a.side }

// History returns a copy of the conversation so far, without the system prompt.
func (a *Agent) History() []Message {
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// Turns returns the number of completed turns.
func (a *Agent) Turns() int { return len(a.history) / 2 }

// GenerateResponse sends input as the peer's latest message and returns the
// agent's reply. The inbound and outbound messages are appended to history
// together, and only on success; a failed call leaves history unchanged.
//
// Latency covers the single successful attempt only; backoff and failed
// attempts are excluded.
func (a *Agent) GenerateResponse(ctx context.Context, input string, opts GenerationOptions) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, &ConfigurationError{Agent: a.name, Model: a.model, Err: err}
	}

	inbound := Message{Role: a.side.Peer().Role(), Content: input}
	req := openrouter.ChatRequest{
		Model:    a.model,
		Messages: a.wireMessages(inbound),
	}
	opts.apply(&req)

	var (
		resp    *openrouter.ChatResponse
		latency time.Duration
	)
	attempts, err := retry.Do(ctx, a.policy, func(ctx context.Context, attempt int) error {
		start := a.clock.Now()
		r, err := a.llm.ChatCompletion(ctx, req)
		if err != nil {
			a.logger.Debug("completion attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		if len(r.Choices) == 0 {
			return openrouter.ErrEmptyChoices
		}
		resp = r
		latency = a.clock.Now().Sub(start)
		return nil
	})
	if err != nil {
		return Result{}, a.classify(ctx, attempts, err)
	}

	choice := resp.Choices[0]
	finish := choice.FinishReason
	if finish == "" {
		finish = FinishUnknown
	}
	res := Result{
		Content:      choice.Message.Content,
		LatencyMS:    float64(latency) / float64(time.Millisecond),
		FinishReason: finish,
		IsRefusal:    a.refusals.IsRefusal(choice.Message.Content, finish),
		Attempts:     attempts,
	}
	if res.LatencyMS < 0 {
		res.LatencyMS = 0
	}
	if resp.Usage != nil {
		res.InputTokens = resp.Usage.PromptTokens
		res.OutputTokens = resp.Usage.CompletionTokens
	} else {
		res.InputTokens = a.estimatePrompt(req.Messages)
		res.OutputTokens = a.estimator.Count(res.Content)
		a.logger.Debug("usage missing, estimated tokens",
			zap.Int("input_tokens", res.InputTokens),
			zap.Int("output_tokens", res.OutputTokens),
		)
	}

	a.history = append(a.history, inbound, Message{Role: a.side.Role(), Content: res.Content})
	return res, nil
}

func (a *Agent) classify(ctx context.Context, attempts int, err error) error {
	if errors.Is(err, retry.ErrExhausted) || ctx.Err() != nil {
		a.logger.Warn("generation failed", zap.Int("attempts", attempts), zap.Error(err))
		return &GenerationError{Agent: a.name, Model: a.model, Attempts: attempts, Err: err}
	}
	a.logger.Error("non-retryable completion failure", zap.Error(err))
	return &ConfigurationError{Agent: a.name, Model: a.model, Err: err}
}

// wireMessages renders the request: system prompt, history, then inbound.
// The agent's own messages become "assistant", the peer's become "user".
func (a *Agent) wireMessages(inbound Message) []openrouter.Message {
	msgs := make([]openrouter.Message, 0, len(a.history)+2)
	if a.systemPrompt != "" {
		msgs = append(msgs, openrouter.Message{Role: string(RoleSystem), Content: a.systemPrompt})
	}
	for _, m := range a.history {
		msgs = append(msgs, a.toWire(m))
	}
	return append(msgs, a.toWire(inbound))
}

func (a *Agent) toWire(m Message) openrouter.Message {
	role := "user"
	switch m.Role {
	case RoleSystem:
		role = "system"
	case a.side.Role():
		role = "assistant"
	}
	return openrouter.Message{Role: role, Content: m.Content}
}

func (a *Agent) estimatePrompt(msgs []openrouter.Message) int {
	total := 0
	for _, m := range msgs {
		total += a.estimator.Count(m.Content)
	}
	return total
}

func (a *Agent) String() string {
	return fmt.Sprintf("%s[%s]", a.name, a.model)
}
