package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the analysis pipeline.
type Config struct {
	Scan    ScanConfig    `yaml:"scan"`
	Batch   BatchConfig   `yaml:"batch"`
	Gateway GatewayConfig `yaml:"gateway"`
	Retry   RetryConfig   `yaml:"retry"`
	LLM     LLMConfig     `yaml:"llm"`
	Doc     DocConfig     `yaml:"doc"`
	Logging LoggingConfig `yaml:"logging"`
}

// ScanConfig controls repository walking and unit creation.
type ScanConfig struct {
	Includes      []string `yaml:"includes"`
	Excludes      []string `yaml:"excludes"`
	MaxFileSizeMB float64  `yaml:"max_file_size_mb"`
	CharsPerToken int      `yaml:"chars_per_token"`
}

// BatchConfig controls token-bounded batch planning.
type BatchConfig struct {
	MaxTokens      int     `yaml:"max_tokens"`      // per-batch token ceiling
	ReservedTokens int     `yaml:"reserved_tokens"` // headroom kept for the prompt itself
	SmallBatchFrac float64 `yaml:"small_batch_frac"`
}

// GatewayConfig controls the single LLM choke point.
type GatewayConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"` // parallel module analyses in the semantic stage
}

// RetryConfig bounds the query-validate-repair loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"` // base delay before re-attempts, doubling
}

// LLMConfig selects and configures the inference endpoint.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "gemini", "openai", "deepseek", "ollama"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// DocConfig controls final document generation.
type DocConfig struct {
	OutputDir      string   `yaml:"output_dir"`
	ForbiddenTerms []string `yaml:"forbidden_terms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			Includes: []string{"**/*.go", "**/*.py", "**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx", "**/*.java"},
			Excludes: []string{
				"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/dist/**",
				"**/build/**", "**/__pycache__/**", "**/*.min.js", "**/target/**",
			},
			MaxFileSizeMB: 10.0,
			CharsPerToken: 3,
		},
		Batch: BatchConfig{
			MaxTokens:      150000,
			ReservedTokens: 20000,
			SmallBatchFrac: 0.3,
		},
		Gateway: GatewayConfig{
			Timeout:     5 * time.Minute,
			Concurrency: 4,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     2 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Doc: DocConfig{
			OutputDir: "prd",
			ForbiddenTerms: []string{
				"function", "method", "class", "object", "API", "endpoint",
				"parameter", "argument", "interface", "component", "SQL",
				"JOIN", "callback", "props", "state",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for prdgen.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "prdgen.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".prdgen", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StateDBPath returns the path to the pipeline state database.
func StateDBPath(dir string) string {
	return filepath.Join(dir, ".prdgen", "state.db")
}

// EnsureWorkDir ensures the .prdgen directory exists.
func EnsureWorkDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".prdgen"), 0755)
}
