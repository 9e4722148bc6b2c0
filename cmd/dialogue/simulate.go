package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/agent"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/config"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/metrics"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/models"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/openrouter"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/output"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/presets"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/retry"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/sink"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/tokens"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one two-agent conversation and append it to the log",
		RunE:  runSimulate,
	}
	f := cmd.Flags()
	f.String("model-a", "Generalist", "Agent A model alias or OpenRouter slug")
	f.String("model-b", "Generalist", "Agent B model alias or OpenRouter slug")
	f.String("name-a", "Agent A", "Agent A display name")
	f.String("name-b", "Agent B", "Agent B display name")
	f.String("prompt-a", "", "Agent A system prompt (default: scenario prompt)")
	f.String("prompt-b", "", "Agent B system prompt (default: scenario prompt)")
	f.String("prompt-file-a", "", "Read Agent A system prompt from file")
	f.String("prompt-file-b", "", "Read Agent B system prompt from file")
	f.String("persona-a", "", "Text logged as Agent A's system_prompt_snapshot instead of the full prompt")
	f.String("persona-b", "", "Text logged as Agent B's system_prompt_snapshot instead of the full prompt")
	f.Float64("temperature-a", 0.7, "Agent A sampling temperature [0,2]")
	f.Float64("temperature-b", 0.7, "Agent B sampling temperature [0,2]")
	f.Int("max-tokens", 500, "Maximum tokens per response")
	f.String("scenario", "Strangers", "Scenario preset name")
	f.Int("num-turns", 10, "Turns per agent (the log gets twice as many entries)")
	f.String("initial-message", simulation.DefaultInitialMessage, "Seed message sent to Agent A")
	f.String("experiment-id", "", "Experiment UUID (default: generated)")
	f.Bool("stop-on-refusal", false, "End the conversation after the first refusal")
	f.Float64("requests-per-second", 0, "Client-side request rate cap (0 = unlimited)")
	f.Int("max-attempts", 3, "Total attempts per turn for transient API failures")
	f.Duration("timeout", 120*time.Second, "Per-request HTTP timeout")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9090")
	f.String("redis-addr", "", "Mirror entries to a Redis stream at this address")
	f.String("redis-stream", sink.DefaultStream, "Redis stream key")
	f.Bool("check-models", false, "Verify both models exist in the OpenRouter catalogue before starting")
	return cmd
}

type agentFlags struct {
	name, prompt, promptFile, persona string
}

func readAgentFlags(cmd *cobra.Command, side string) agentFlags {
	var a agentFlags
	a.name, _ = cmd.Flags().GetString("name-" + side)
	a.prompt, _ = cmd.Flags().GetString("prompt-" + side)
	a.promptFile, _ = cmd.Flags().GetString("prompt-file-" + side)
	a.persona, _ = cmd.Flags().GetString("persona-" + side)
	return a
}

// systemPrompt picks the explicit prompt, then the prompt file, then the
// scenario prompt.
func (a agentFlags) systemPrompt(scenarioPrompt string) (string, error) {
	if a.prompt != "" {
		return a.prompt, nil
	}
	if a.promptFile != "" {
		data, err := os.ReadFile(a.promptFile)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		return string(data), nil
	}
	return scenarioPrompt, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := presets.Load(cfg.Presets)
	if err != nil {
		return err
	}
	modelA, err := p.ResolveModel(cfg.ModelA)
	if err != nil {
		return err
	}
	modelB, err := p.ResolveModel(cfg.ModelB)
	if err != nil {
		return err
	}

	flagsA, flagsB := readAgentFlags(cmd, "a"), readAgentFlags(cmd, "b")
	var scenarioPrompt string
	if flagsA.prompt == "" && flagsA.promptFile == "" || flagsB.prompt == "" && flagsB.promptFile == "" {
		if scenarioPrompt, err = p.Scenario(cfg.Scenario); err != nil {
			return err
		}
	}
	promptA, err := flagsA.systemPrompt(scenarioPrompt)
	if err != nil {
		return err
	}
	promptB, err := flagsB.systemPrompt(scenarioPrompt)
	if err != nil {
		return err
	}

	// Setup context with Ctrl+C cancellation
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := openrouter.NewClientWithBaseURL(cfg.APIKey, cfg.BaseURL,
		openrouter.WithTimeout(cfg.Timeout),
		openrouter.WithRateLimit(cfg.RequestsPerSecond, 1),
		openrouter.WithAppInfo("dialogue-sim", ""),
	)

	if check, _ := cmd.Flags().GetBool("check-models"); check {
		reg, err := models.Fetch(ctx, client, p)
		if err != nil {
			logger.Warn("could not fetch models, checking against presets", zap.Error(err))
		}
		if err := reg.Validate(modelA, modelB); err != nil {
			return err
		}
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts

	opts := []simulation.Option{
		simulation.WithLogger(logger),
		simulation.WithRetryPolicy(policy),
		simulation.WithTokenEstimator(tokens.NewTiktoken("cl100k_base")),
		simulation.WithStopOnRefusal(cfg.StopOnRefusal),
	}
	if id, _ := cmd.Flags().GetString("experiment-id"); id != "" {
		opts = append(opts, simulation.WithExperimentID(id))
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, simulation.WithObserver(metrics.NewRecorder(reg, logger)))
	}

	var mirror *sink.RedisMirror
	if cfg.RedisAddr != "" {
		mirror, err = sink.NewRedisMirror(ctx, sink.RedisConfig{Addr: cfg.RedisAddr, Stream: cfg.RedisStream}, logger)
		if err != nil {
			return err
		}
		defer mirror.Close()
	}

	orch, err := simulation.New(client,
		simulation.AgentConfig{
			Name:            flagsA.name,
			Model:           modelA,
			SystemPrompt:    promptA,
			PersonaSnapshot: flagsA.persona,
			Params:          agent.GenerationOptions{Temperature: agent.Float(cfg.TemperatureA), MaxTokens: agent.Int(cfg.MaxTokens)},
		},
		simulation.AgentConfig{
			Name:            flagsB.name,
			Model:           modelB,
			SystemPrompt:    promptB,
			PersonaSnapshot: flagsB.persona,
			Params:          agent.GenerationOptions{Temperature: agent.Float(cfg.TemperatureB), MaxTokens: agent.Int(cfg.MaxTokens)},
		},
		cfg.Scenario,
		opts...,
	)
	if err != nil {
		return err
	}

	run := simulationRun{
		orch:     orch,
		numTurns: cfg.NumTurns,
		initial:  cfg.InitialMessage,
		logPath:  cfg.LogPath(),
		mirror:   mirror,
		logger:   logger,
	}
	if reg == nil {
		return run.execute(ctx)
	}
	return serveWhile(ctx, cfg.MetricsAddr, reg, logger, run.execute)
}

type simulationRun struct {
	orch     *simulation.Orchestrator
	numTurns int
	initial  string
	logPath  string
	mirror   *sink.RedisMirror
	logger   *zap.Logger
}

// execute prints and persists each entry as soon as it is produced.
func (r simulationRun) execute(ctx context.Context) error {
	stream, err := r.orch.Run(r.numTurns, r.initial)
	if err != nil {
		return err
	}
	a, b := r.orch.Agent(agent.SideA), r.orch.Agent(agent.SideB)
	output.PrintHeader(r.orch.ExperimentID(), r.orch.Scenario(), a.Model(), b.Model(), r.numTurns)

	for entry, err := range stream.All(ctx) {
		if err != nil {
			output.PrintFailure(stream.Produced(), err)
			return err
		}
		output.PrintEntry(entry, r.orch.Agent(entry.Speaker()).Name())

		if err := sink.SaveLogs(r.logPath, entry); err != nil {
			return fmt.Errorf("saving turn %d: %w", entry.TurnID, err)
		}
		if r.mirror != nil {
			if _, err := r.mirror.Publish(ctx, entry); err != nil {
				r.logger.Warn("redis mirror failed", zap.Int("turn_id", entry.TurnID), zap.Error(err))
			}
		}
	}
	output.PrintDone(stream.Produced(), r.logPath)
	return nil
}

// serveWhile exposes reg on addr for as long as fn runs.
func serveWhile(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger, fn func(context.Context) error) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}
