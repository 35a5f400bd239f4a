package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer"`
	Login    LoginConfig    `mapstructure:"login" yaml:"login"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chrome process and tab behavior.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig controls navigation timing and capture filtering.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// Denylist entries are matched as substrings of the full URL.
	Denylist []string `mapstructure:"denylist" yaml:"denylist"`
}

// AnalyzerConfig selects and configures the page analyzer / event classifier.
type AnalyzerConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // "gemini" or "heuristic"
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Model    string        `mapstructure:"model" yaml:"model"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoginConfig bounds the login state machine.
type LoginConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	MaxSteps   int           `mapstructure:"max_steps" yaml:"max_steps"`
	SettleWait time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	StuckWait  time.Duration `mapstructure:"stuck_wait" yaml:"stuck_wait"`
}

// OutputConfig names the durable pipeline outputs.
type OutputConfig struct {
	TargetURL     string `mapstructure:"target_url" yaml:"target_url"`
	SessionFile   string `mapstructure:"session_file" yaml:"session_file"`
	EventsFile    string `mapstructure:"events_file" yaml:"events_file"`
	EnrichWorkers int    `mapstructure:"enrich_workers" yaml:"enrich_workers"`
	MaxProbes     int    `mapstructure:"max_probes" yaml:"max_probes"`
}

// EnrichedEventsFile derives the enriched log path from the raw log path.
func (o OutputConfig) EnrichedEventsFile() string {
	ext := filepath.Ext(o.EventsFile)
	return o.EventsFile[:len(o.EventsFile)-len(ext)] + "_enriched" + ext
}

// SetDefaults initializes default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	dataDir := ".webrecorder"
	if home, err := homedir.Dir(); err == nil {
		dataDir = filepath.Join(home, ".webrecorder")
	}

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webrecorder")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)

	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.post_load_wait", "1500ms")
	v.SetDefault("network.action_timeout", "3s")
	v.SetDefault("network.denylist", []string{"analytics", "sentry", "batch", "heartbeat", "gasv3"})

	v.SetDefault("analyzer.provider", "heuristic")
	v.SetDefault("analyzer.model", "gemini-2.0-flash")
	v.SetDefault("analyzer.timeout", "30s")

	v.SetDefault("login.url", "https://trello.com/login")
	v.SetDefault("login.max_steps", 10)
	v.SetDefault("login.settle_wait", "2s")
	v.SetDefault("login.stuck_wait", "5s")

	v.SetDefault("output.target_url", "")
	v.SetDefault("output.session_file", filepath.Join(dataDir, "session.json"))
	v.SetDefault("output.events_file", filepath.Join(dataDir, "events.json"))
	v.SetDefault("output.enrich_workers", 10)
	v.SetDefault("output.max_probes", 3)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Login.MaxSteps <= 0 {
		return fmt.Errorf("login.max_steps must be positive, got %d", c.Login.MaxSteps)
	}
	if c.Output.EnrichWorkers <= 0 {
		return fmt.Errorf("output.enrich_workers must be positive, got %d", c.Output.EnrichWorkers)
	}
	if c.Analyzer.Provider == "gemini" && c.Analyzer.APIKey == "" {
		return fmt.Errorf("analyzer.api_key is required when analyzer.provider is gemini")
	}
	return nil
}
