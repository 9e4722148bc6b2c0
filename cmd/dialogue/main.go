package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dialogue",
		Short:        "Two-agent LLM dialogue simulator",
		Long:         "Runs alternating-turn conversations between two language-model agents via OpenRouter and records one JSONL log entry per turn for later analysis.",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("api-key", "", "OpenRouter API key (overrides OPENROUTER_API_KEY env var)")
	pf.String("base-url", "https://openrouter.ai/api/v1", "OpenAI-compatible API base URL")
	pf.String("output-dir", "data", "Directory for log files")
	pf.String("log-file", "experiment_log.jsonl", "JSONL log file (relative names go under --output-dir)")
	pf.String("presets", "", "YAML file with extra model aliases and scenarios")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")

	root.AddCommand(newSimulateCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSummaryCmd())
	root.AddCommand(newModelsCmd())
	return root
}

// loadViper layers flags, environment, the optional config file and
// defaults for cmd.
func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	configFile, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		format = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build()
}

func logPath(v *viper.Viper, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.ResolveLogPath(v.GetString("output_dir"), v.GetString("log_file"))
}
