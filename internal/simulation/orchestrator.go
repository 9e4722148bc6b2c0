package simulation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/agent"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/clock"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/retry"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/tokens"
)

// DefaultInitialMessage seeds Agent A when the caller has nothing better.
const DefaultInitialMessage = "Hello."

// Orchestrator owns two agents and alternates turns between them.
type Orchestrator struct {
	a, b         *agent.Agent
	cfgA, cfgB   AgentConfig
	scenario     string
	experimentID string

	clock         clock.Clock
	logger        *zap.Logger
	observers     []Observer
	stopOnRefusal bool

	mu      sync.Mutex
	started bool
}

type settings struct {
	experimentID  string
	logger        *zap.Logger
	clock         clock.Clock
	policy        *retry.Policy
	estimator     tokens.Estimator
	refusals      *agent.RefusalDetector
	observers     []Observer
	stopOnRefusal bool
}

// Option configures an Orchestrator.
type Option func(*settings)

// WithExperimentID overrides the generated experiment identifier. It must
// parse as a UUID.
func WithExperimentID(id string) Option {
	return func(s *settings) { s.experimentID = id }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock sets the clock used for timestamps and latency.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithRetryPolicy sets the retry policy used by both agents.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *settings) { s.policy = &p }
}

func WithTokenEstimator(e tokens.Estimator) Option {
	return func(s *settings) { s.estimator = e }
}

func WithRefusalDetector(d *agent.RefusalDetector) Option {
	return func(s *settings) { s.refusals = d }
}

// WithObserver adds an Observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithStopOnRefusal ends the stream cleanly after the first refusal entry.
func WithStopOnRefusal(stop bool) Option {
	return func(s *settings) { s.stopOnRefusal = stop }
}

// New builds both agents over llm. Agent A speaks first.
func New(llm agent.Completer, cfgA, cfgB AgentConfig, scenario string, opts ...Option) (*Orchestrator, error) {
	s := settings{
		logger: zap.NewNop(),
		clock:  clock.System{},
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.experimentID == "" {
		s.experimentID = uuid.NewString()
	} else if _, err := uuid.Parse(s.experimentID); err != nil {
		return nil, fmt.Errorf("simulation: experiment id %q: %w", s.experimentID, err)
	}

	o := &Orchestrator{
		cfgA:          cfgA,
		cfgB:          cfgB,
		scenario:      scenario,
		experimentID:  s.experimentID,
		clock:         s.clock,
		observers:     s.observers,
		stopOnRefusal: s.stopOnRefusal,
	}
	o.logger = s.logger.With(
		zap.String("component", "orchestrator"),
		zap.String("experiment_id", o.experimentID),
	)

	var err error
	if o.a, err = o.buildAgent(llm, cfgA, agent.SideA, s); err != nil {
		return nil, err
	}
	if o.b, err = o.buildAgent(llm, cfgB, agent.SideB, s); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) buildAgent(llm agent.Completer, cfg AgentConfig, side agent.Side, s settings) (*agent.Agent, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, &agent.ConfigurationError{Agent: cfg.Name, Model: cfg.Model, Err: err}
	}

	policy := retry.DefaultPolicy()
	if s.policy != nil {
		policy = *s.policy
	}
	if len(o.observers) > 0 {
		prev := policy.OnRetry
		model := cfg.Model
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			if prev != nil {
				prev(attempt, err, delay)
			}
			for _, obs := range o.observers {
				obs.TurnRetried(model, attempt, err)
			}
		}
	}

	opts := []agent.Option{
		agent.WithRetryPolicy(policy),
		agent.WithLogger(s.logger.With(zap.String("experiment_id", o.experimentID))),
		agent.WithClock(o.clock),
	}
	if s.estimator != nil {
		opts = append(opts, agent.WithTokenEstimator(s.estimator))
	}
	if s.refusals != nil {
		opts = append(opts, agent.WithRefusalDetector(s.refusals))
	}
	return agent.New(agent.Config{
		Name:         cfg.Name,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Side:         side,
	}, llm, opts...)
}

func (o *Orchestrator) ExperimentID() string { return o.experimentID }
func (o *Orchestrator) Scenario() string     { return o.scenario }

// Agent returns the participant playing side.
func (o *Orchestrator) Agent(side agent.Side) *agent.Agent {
	if side == agent.SideB {
		return o.b
	}
	return o.a
}

// Run starts the conversation. numTurns counts turns per agent, so a run
// that completes yields exactly 2*numTurns entries. No API call is made
// until the returned Stream is pulled.
func (o *Orchestrator) Run(numTurns int, initialMessage string) (*Stream, error) {
	if numTurns < 1 {
		return nil, fmt.Errorf("simulation: num turns must be positive, got %d", numTurns)
	}
	if strings.TrimSpace(initialMessage) == "" {
		return nil, errors.New("simulation: initial message is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil, ErrAlreadyStarted
	}
	o.started = true

	o.logger.Info("simulation started",
		zap.String("scenario", o.scenario),
		zap.String("model_a", o.a.Model()),
		zap.String("model_b", o.b.Model()),
		zap.Int("num_turns", numTurns),
	)
	return &Stream{o: o, total: 2 * numTurns, pending: initialMessage}, nil
}

// turn returns speaker and responder for turnID.
func (o *Orchestrator) turn(turnID int) (speaker, responder *agent.Agent, cfg AgentConfig) {
	if turnID%2 == 0 {
		return o.a, o.b, o.cfgA
	}
	return o.b, o.a, o.cfgB
}

func (o *Orchestrator) entry(turnID int, speaker, responder *agent.Agent, cfg AgentConfig, res agent.Result) LogEntry {
	return LogEntry{
		ExperimentID:         o.experimentID,
		TurnID:               turnID,
		Scenario:             o.scenario,
		SpeakerModel:         speaker.Model(),
		ResponderModel:       responder.Model(),
		Timestamp:            o.clock.Now().UTC().Format(TimestampLayout),
		LatencyMS:            res.LatencyMS,
		InputTokens:          res.InputTokens,
		OutputTokens:         res.OutputTokens,
		Content:              res.Content,
		FinishReason:         res.FinishReason,
		IsRefusal:            res.IsRefusal,
		SystemPromptSnapshot: cfg.snapshot(),
	}
}
