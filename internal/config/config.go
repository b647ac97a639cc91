// Package config loads and validates the typed configuration the consensus
// core reads. Configuration is parsed once at startup; weight and timeframe
// constraints are enforced here, never at request time.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Error kinds for ConfigError.
const (
	ErrKindUnreadable    = "unreadable"
	ErrKindParse         = "parse"
	ErrKindInvalidWeight = "invalid_weights"
	ErrKindInvalidValue  = "invalid_value"
)

// ConfigError is raised only at load time.
type ConfigError struct {
	Kind string
	Msg  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Kind, e.Msg)
}

// Config is the root configuration document.
type Config struct {
	AI     AIConfig     `yaml:"ai"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
}

// AIConfig configures the consensus engine and its providers.
type AIConfig struct {
	Providers           []ProviderConfig  `yaml:"providers"`
	MinConsensusScore   float64           `yaml:"min_consensus_score"`
	MinConfidence       float64           `yaml:"min_confidence"`
	MinParticipants     int               `yaml:"min_participants"`
	RequireAllProviders bool              `yaml:"require_all_providers"`
	SignalCacheMinutes  int               `yaml:"signal_cache_minutes"`
	SignalCacheEntries  int               `yaml:"signal_cache_entries"`
	LookbackCandles     int               `yaml:"lookback_candles"`
	LookbackMin         int               `yaml:"lookback_min"`
	LookbackMax         int               `yaml:"lookback_max"`
	GraceMS             int               `yaml:"grace_ms"`
	MaxConcurrentCalls  int               `yaml:"max_concurrent_calls"`
	RationaleMaxChars   int               `yaml:"rationale_max_chars"`
	ModelOverrides      map[string]string `yaml:"model_overrides"`
	Roles               map[string]string `yaml:"roles"`
}

// ProviderConfig is one provider record. APIKey is resolved from the
// environment at load and never serialized.
type ProviderConfig struct {
	ID         string  `yaml:"id"`
	Model      string  `yaml:"model"`
	Weight     float64 `yaml:"weight"`
	Enabled    bool    `yaml:"enabled"`
	TimeoutMS  int     `yaml:"timeout_ms"`
	MaxRetries int     `yaml:"max_retries"`
	BaseURL    string  `yaml:"base_url"`
	APIKeyEnv  string  `yaml:"api_key_env"`

	APIKey string `yaml:"-"`
}

// Timeout returns the per-call deadline.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout_secs"`
	WriteTimeout int    `yaml:"write_timeout_secs"`
}

// RedisConfig selects the optional Redis cache backend. Empty Addr keeps the
// in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Credential environment variables per provider id. A provider may override
// the variable name with api_key_env.
var defaultKeyEnv = map[string]string{
	"chatgpt": "OPENAI_API_KEY",
	"claude":  "ANTHROPIC_API_KEY",
	"gemini":  "GEMINI_API_KEY",
}

// Default template role per provider id.
var defaultRoles = map[string]string{
	"chatgpt": "technical_analysis",
	"claude":  "risk_assessment",
	"gemini":  "sentiment",
}

// Load reads, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Kind: ErrKindUnreadable, Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse is Load without the file read; used by tests and reload.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Kind: ErrKindParse, Msg: err.Error()}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.resolveCredentials()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	ai := &c.AI
	if ai.MinConsensusScore == 0 {
		ai.MinConsensusScore = 0.60
	}
	if ai.MinConfidence == 0 {
		ai.MinConfidence = 0.60
	}
	if ai.MinParticipants == 0 {
		ai.MinParticipants = 1
	}
	if ai.SignalCacheMinutes == 0 {
		ai.SignalCacheMinutes = 60
	}
	if ai.SignalCacheEntries == 0 {
		ai.SignalCacheEntries = 1024
	}
	if ai.LookbackCandles == 0 {
		ai.LookbackCandles = 50
	}
	if ai.LookbackMin == 0 {
		ai.LookbackMin = 50
	}
	if ai.LookbackMax == 0 {
		ai.LookbackMax = 500
	}
	if ai.GraceMS == 0 {
		ai.GraceMS = 2000
	}
	if ai.MaxConcurrentCalls == 0 {
		ai.MaxConcurrentCalls = 32
	}
	if ai.RationaleMaxChars == 0 {
		ai.RationaleMaxChars = 500
	}
	if ai.Roles == nil {
		ai.Roles = map[string]string{}
	}
	for id, role := range defaultRoles {
		if _, ok := ai.Roles[id]; !ok {
			ai.Roles[id] = role
		}
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10
	}
}

func (c *Config) validate() error {
	ai := &c.AI
	if len(ai.Providers) == 0 {
		return &ConfigError{Kind: ErrKindInvalidValue, Msg: "no AI providers configured"}
	}

	seen := map[string]bool{}
	sum := 0.0
	for _, p := range ai.Providers {
		if p.ID == "" {
			return &ConfigError{Kind: ErrKindInvalidValue, Msg: "provider with empty id"}
		}
		if seen[p.ID] {
			return &ConfigError{Kind: ErrKindInvalidValue, Msg: fmt.Sprintf("duplicate provider id %q", p.ID)}
		}
		seen[p.ID] = true
		if p.Weight < 0 || p.Weight > 1 {
			return &ConfigError{Kind: ErrKindInvalidWeight,
				Msg: fmt.Sprintf("provider %s weight %g outside [0,1]", p.ID, p.Weight)}
		}
		if p.TimeoutMS < 0 {
			return &ConfigError{Kind: ErrKindInvalidValue,
				Msg: fmt.Sprintf("provider %s timeout_ms %d is negative", p.ID, p.TimeoutMS)}
		}
		if p.MaxRetries < 0 {
			return &ConfigError{Kind: ErrKindInvalidValue,
				Msg: fmt.Sprintf("provider %s max_retries %d is negative", p.ID, p.MaxRetries)}
		}
		if p.Enabled {
			sum += p.Weight
		}
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return &ConfigError{Kind: ErrKindInvalidWeight,
			Msg: fmt.Sprintf("AI provider weights must sum to 1.0, got %g", sum)}
	}

	if ai.MinConsensusScore < 0 || ai.MinConsensusScore > 1 {
		return &ConfigError{Kind: ErrKindInvalidValue,
			Msg: fmt.Sprintf("min_consensus_score %g outside [0,1]", ai.MinConsensusScore)}
	}
	if ai.MinConfidence < 0 || ai.MinConfidence > 1 {
		return &ConfigError{Kind: ErrKindInvalidValue,
			Msg: fmt.Sprintf("min_confidence %g outside [0,1]", ai.MinConfidence)}
	}
	if ai.LookbackMin > ai.LookbackMax {
		return &ConfigError{Kind: ErrKindInvalidValue,
			Msg: fmt.Sprintf("lookback_min %d exceeds lookback_max %d", ai.LookbackMin, ai.LookbackMax)}
	}
	return nil
}

// resolveCredentials pulls API keys from the environment. An enabled provider
// without a credential is disabled with a WARN; missing keys are never fatal.
func (c *Config) resolveCredentials() {
	for i := range c.AI.Providers {
		p := &c.AI.Providers[i]
		envName := p.APIKeyEnv
		if envName == "" {
			envName = defaultKeyEnv[p.ID]
		}
		if envName == "" {
			continue
		}
		p.APIKey = os.Getenv(envName)
		if p.Enabled && p.APIKey == "" {
			log.Warn().Str("provider", p.ID).Str("env", envName).
				Msg("Credential missing, provider disabled for this run")
			p.Enabled = false
		}
	}
}

// EnabledProviders returns the providers still enabled after load.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.AI.Providers))
	for _, p := range c.AI.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// CacheTTL returns the signal cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.AI.SignalCacheMinutes) * time.Minute
}

// Grace returns the fan-out deadline slack added on top of the slowest
// provider timeout.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.AI.GraceMS) * time.Millisecond
}
