package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all lessonforge configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Hosted LLM used for lesson generation
	LLM LLMConfig `yaml:"llm"`

	// SQL store
	Database DatabaseConfig `yaml:"database"`

	// Lesson request limits and prompt shaping
	Lessons LessonsConfig `yaml:"lessons"`

	// Performance analyzer thresholds
	Analyzer AnalyzerConfig `yaml:"analyzer"`

	// Adjustment queue maintenance
	Queue QueueConfig `yaml:"queue"`

	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the hosted LLM client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // anthropic, openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
	RetryDelay  string  `yaml:"retry_delay"`
}

// DatabaseConfig selects the SQL driver and data source.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite (modernc), sqlite3 (cgo), postgres
	DSN    string `yaml:"dsn"`
}

// LessonsConfig bounds lesson requests.
type LessonsConfig struct {
	MaxStudents     int `yaml:"max_students"`
	MaxGroupSize    int `yaml:"max_group_size"`
	MinDuration     int `yaml:"min_duration"`
	MaxDuration     int `yaml:"max_duration"`
	DefaultDuration int `yaml:"default_duration"`
	// Concurrent student loads during generation
	LoadConcurrency int `yaml:"load_concurrency"`
}

// AnalyzerConfig holds the accuracy thresholds used for adjustment recommendations.
type AnalyzerConfig struct {
	AdvanceThreshold  float64 `yaml:"advance_threshold"`
	MaintainThreshold float64 `yaml:"maintain_threshold"`
	ReteachThreshold  float64 `yaml:"reteach_threshold"`
	TrendDelta        float64 `yaml:"trend_delta"`
	MinSamples        int     `yaml:"min_samples"`
	Window            int     `yaml:"window"`
}

// QueueConfig configures adjustment queue maintenance.
type QueueConfig struct {
	BatchSize    int    `yaml:"batch_size"`
	CleanupAfter string `yaml:"cleanup_after"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "lessonforge",
		Version: "0.4.0",

		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5-20250929",
			Timeout:     "120s",
			MaxTokens:   4096,
			Temperature: 0.4,
			MaxRetries:  3,
			RetryDelay:  "1s",
		},

		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    ".lessonforge/lessonforge.db",
		},

		Lessons: LessonsConfig{
			MaxStudents:     12,
			MaxGroupSize:    6,
			MinDuration:     5,
			MaxDuration:     120,
			DefaultDuration: 30,
			LoadConcurrency: 4,
		},

		Analyzer: AnalyzerConfig{
			AdvanceThreshold:  90,
			MaintainThreshold: 70,
			ReteachThreshold:  50,
			TrendDelta:        5,
			MinSamples:        3,
			Window:            10,
		},

		Queue: QueueConfig{
			BatchSize:    50,
			CleanupAfter: "720h",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Later keys win: ANTHROPIC < OPENAI < GEMINI.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("LESSONFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if dsn := os.Getenv("LESSONFORGE_DB"); dsn != "" {
		c.Database.DSN = dsn
	}
	if driver := os.Getenv("LESSONFORGE_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRetryDelay returns the base delay between LLM retries.
func (c *Config) GetRetryDelay() time.Duration {
	d, err := time.ParseDuration(c.LLM.RetryDelay)
	if err != nil {
		return time.Second
	}
	return d
}

// GetCleanupAfter returns how long processed adjustments are retained.
func (c *Config) GetCleanupAfter() time.Duration {
	d, err := time.ParseDuration(c.Queue.CleanupAfter)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "openai", "gemini"}

// ValidDrivers lists all supported database drivers.
var ValidDrivers = []string{"sqlite", "sqlite3", "postgres"}

// Validate validates the configuration.
// The API key is checked separately by RequireAPIKey so that offline
// commands (import, analyze, queue) work without one.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !contains(ValidDrivers, c.Database.Driver) {
		return fmt.Errorf("invalid database driver: %s (valid: %v)", c.Database.Driver, ValidDrivers)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn not configured")
	}

	l := c.Lessons
	if l.MaxStudents <= 0 || l.MaxGroupSize <= 0 {
		return fmt.Errorf("lessons.max_students and lessons.max_group_size must be positive")
	}
	if l.MinDuration <= 0 || l.MaxDuration < l.MinDuration {
		return fmt.Errorf("invalid lesson duration bounds [%d, %d]", l.MinDuration, l.MaxDuration)
	}

	a := c.Analyzer
	if !(a.AdvanceThreshold > a.MaintainThreshold && a.MaintainThreshold > a.ReteachThreshold) {
		return fmt.Errorf("analyzer thresholds must satisfy advance > maintain > reteach (got %.0f/%.0f/%.0f)",
			a.AdvanceThreshold, a.MaintainThreshold, a.ReteachThreshold)
	}
	if a.Window <= 0 || a.MinSamples <= 0 {
		return fmt.Errorf("analyzer.window and analyzer.min_samples must be positive")
	}
	return nil
}

// RequireAPIKey reports an error when no LLM credentials are configured.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY, OPENAI_API_KEY, or GEMINI_API_KEY)")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
