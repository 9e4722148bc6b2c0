package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DIALOGUE_NUM_TURNS.
const EnvPrefix = "DIALOGUE"

type Config struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	OutputDir string `mapstructure:"output_dir"`
	LogFile   string `mapstructure:"log_file"`
	Presets   string `mapstructure:"presets"`

	ModelA         string  `mapstructure:"model_a"`
	ModelB         string  `mapstructure:"model_b"`
	TemperatureA   float64 `mapstructure:"temperature_a"`
	TemperatureB   float64 `mapstructure:"temperature_b"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Scenario       string  `mapstructure:"scenario"`
	NumTurns       int     `mapstructure:"num_turns"`
	InitialMessage string  `mapstructure:"initial_message"`
	StopOnRefusal  bool    `mapstructure:"stop_on_refusal"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxAttempts       int     `mapstructure:"max_attempts"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisStream string `mapstructure:"redis_stream"`
}

// SetDefaults installs the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("timeout", 120*time.Second)
	v.SetDefault("output_dir", "data")
	v.SetDefault("log_file", "experiment_log.jsonl")
	v.SetDefault("presets", "")
	v.SetDefault("model_a", "Generalist")
	v.SetDefault("model_b", "Generalist")
	v.SetDefault("temperature_a", 0.7)
	v.SetDefault("temperature_b", 0.7)
	v.SetDefault("max_tokens", 500)
	v.SetDefault("scenario", "Strangers")
	v.SetDefault("num_turns", 10)
	v.SetDefault("initial_message", "Hello.")
	v.SetDefault("stop_on_refusal", false)
	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_stream", "dialogue:entries")
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile, when set, is read as YAML (or any format viper detects from
// the extension).
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "OPENROUTER_API_KEY"); err != nil {
		return nil, fmt.Errorf("config: binding api key: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}
	return v, nil
}

// BindFlags binds every flag of fs to the key of the same name with dashes
// turned into underscores. Flags win over env, file and defaults only when
// explicitly set.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("config: binding flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: OPENROUTER_API_KEY is required")
	}
	if c.NumTurns < 1 {
		return fmt.Errorf("config: NumTurns must be >= 1, got %d", c.NumTurns)
	}
	if c.TemperatureA < 0 || c.TemperatureA > 2 {
		return fmt.Errorf("config: TemperatureA must be in [0,2], got %g", c.TemperatureA)
	}
	if c.TemperatureB < 0 || c.TemperatureB > 2 {
		return fmt.Errorf("config: TemperatureB must be in [0,2], got %g", c.TemperatureB)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("config: MaxTokens must be >= 1, got %d", c.MaxTokens)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: MaxAttempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config: RequestsPerSecond must be >= 0, got %g", c.RequestsPerSecond)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: LogFormat must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// LogPath resolves the JSONL file. A log file containing a directory is used
// as is; a bare name is placed under OutputDir.
func (c *Config) LogPath() string {
	return ResolveLogPath(c.OutputDir, c.LogFile)
}

func ResolveLogPath(outputDir, logFile string) string {
	if filepath.IsAbs(logFile) || filepath.Base(logFile) != logFile {
		return logFile
	}
	return filepath.Join(outputDir, logFile)
}

// LoadDotEnv sets variables from a .env file without overriding ones already
// present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: opening .env: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
	return scanner.Err()
}
