// Package config loads the runtime's environment configuration and its
// optional declarative pipeline wiring: apply defaults, apply env
// overrides, env-expand and decode the pipeline file, then validate. Scope is narrowed to the
// handful of settings this runtime actually has: OTel export, the vector
// store DSN, and the pipeline's agent wiring.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the runtime's process-wide configuration, built by combining
// environment variables (optionally loaded from a .env file) with an
// optional pipelines.toml declaring the agent roster.
type Config struct {
	ServiceName string
	DatabaseURL string

	OTLPEndpoint string
	OTLPInsecure bool

	JournalDir string

	RateLimitRefillPerSecond float64
	RateLimitBurst           int

	Pipeline PipelineConfig
}

// AgentSpec names one agent slot in the pipeline roster. Model is advisory
// metadata for whichever Completer the caller wires the name to; config
// only declares the roster shape, not how a name is realized.
type AgentSpec struct {
	Name  string `toml:"name"`
	Model string `toml:"model"`
}

// PipelineConfig is the declarative form of pipeline.Config (see
// internal/pipeline/engine.go): the same four role slices and iteration
// budget, but as names loadable from pipelines.toml instead of compiled-in
// agentcore.Agent values.
type PipelineConfig struct {
	Coders        []AgentSpec `toml:"coders"`
	Formatters    []AgentSpec `toml:"formatters"`
	Testers       []AgentSpec `toml:"testers"`
	Reviewers     []AgentSpec `toml:"reviewers"`
	MaxIterations int         `toml:"max_iterations"`
}

// LoadEnv loads .env at path into the process environment if the file
// exists; a missing file is not an error, matching godotenv's common usage
// in local-dev bootstraps (the file is expected to exist only in
// development).
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load builds a Config from environment variables, optionally overlaying a
// pipelines.toml file at pipelinePath (an empty path skips the overlay and
// leaves PipelineConfig at its defaults).
func Load(pipelinePath string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if pipelinePath != "" {
		if err := loadPipeline(pipelinePath, &cfg.Pipeline); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPipeline(path string, pc *PipelineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read pipeline file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	if _, err := toml.Decode(expanded, pc); err != nil {
		return fmt.Errorf("config: failed to parse pipeline file: %w", err)
	}
	if pc.MaxIterations <= 0 {
		pc.MaxIterations = defaultMaxIterations
	}
	return nil
}

const (
	defaultServiceName         = "agentic-orchestration-runtime"
	defaultMaxIterations       = 5
	defaultRateLimitRefillPerS = 0.5
	defaultRateLimitBurst      = 5
	defaultJournalDir          = "./data/traces"
)

func applyDefaults(cfg *Config) {
	cfg.ServiceName = defaultServiceName
	cfg.RateLimitRefillPerSecond = defaultRateLimitRefillPerS
	cfg.RateLimitBurst = defaultRateLimitBurst
	cfg.Pipeline.MaxIterations = defaultMaxIterations
	cfg.JournalDir = defaultJournalDir
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("JOURNAL_DIR")); v != "" {
		cfg.JournalDir = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OTLPInsecure = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_REFILL_PER_SECOND")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRefillPerSecond = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PIPELINE_MAX_ITERATIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxIterations = n
		}
	}
}

// ValidationError reports a configuration that loaded syntactically but
// fails a semantic constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func validate(cfg *Config) error {
	if cfg.ServiceName == "" {
		return &ValidationError{Field: "ServiceName", Reason: "must not be empty"}
	}
	if cfg.RateLimitBurst <= 0 {
		return &ValidationError{Field: "RateLimitBurst", Reason: "must be positive"}
	}
	if cfg.RateLimitRefillPerSecond <= 0 {
		return &ValidationError{Field: "RateLimitRefillPerSecond", Reason: "must be positive"}
	}
	if cfg.Pipeline.MaxIterations <= 0 {
		return &ValidationError{Field: "Pipeline.MaxIterations", Reason: "must be positive"}
	}
	return nil
}
