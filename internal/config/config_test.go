package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
ai:
  providers:
    - id: chatgpt
      weight: 0.40
      enabled: true
      timeout_ms: 30000
    - id: claude
      weight: 0.35
      enabled: true
      timeout_ms: 30000
    - id: gemini
      weight: 0.25
      enabled: true
      timeout_ms: 30000
`

func setKeys(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("GEMINI_API_KEY", "g-test")
}

func TestParseValid(t *testing.T) {
	setKeys(t)

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Len(t, cfg.AI.Providers, 3)
	assert.Len(t, cfg.EnabledProviders(), 3)
	assert.Equal(t, "sk-test", cfg.AI.Providers[0].APIKey)

	// Defaults.
	assert.Equal(t, 0.60, cfg.AI.MinConsensusScore)
	assert.Equal(t, 1, cfg.AI.MinParticipants)
	assert.False(t, cfg.AI.RequireAllProviders)
	assert.Equal(t, 60, cfg.AI.SignalCacheMinutes)
	assert.Equal(t, 1024, cfg.AI.SignalCacheEntries)
	assert.Equal(t, 50, cfg.AI.LookbackCandles)
	assert.Equal(t, 500, cfg.AI.RationaleMaxChars)
	assert.Equal(t, 32, cfg.AI.MaxConcurrentCalls)
	assert.Equal(t, "technical_analysis", cfg.AI.Roles["chatgpt"])
	assert.Equal(t, "risk_assessment", cfg.AI.Roles["claude"])
	assert.Equal(t, "sentiment", cfg.AI.Roles["gemini"])
}

func TestParseWeightSumViolation(t *testing.T) {
	setKeys(t)

	doc := `
ai:
  providers:
    - {id: chatgpt, weight: 0.40, enabled: true, timeout_ms: 1000}
    - {id: claude, weight: 0.35, enabled: true, timeout_ms: 1000}
    - {id: gemini, weight: 0.30, enabled: true, timeout_ms: 1000}
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrKindInvalidWeight, cerr.Kind)
	assert.Contains(t, cerr.Msg, "AI provider weights must sum to 1.0, got 1.05")
}

func TestParseDisabledProviderExcludedFromSum(t *testing.T) {
	setKeys(t)

	doc := `
ai:
  providers:
    - {id: chatgpt, weight: 0.60, enabled: true, timeout_ms: 1000}
    - {id: claude, weight: 0.40, enabled: true, timeout_ms: 1000}
    - {id: gemini, weight: 0.90, enabled: false, timeout_ms: 1000}
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, cfg.EnabledProviders(), 2)
}

func TestParseMissingCredentialDisables(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	enabled := cfg.EnabledProviders()
	require.Len(t, enabled, 2)
	for _, p := range enabled {
		assert.NotEqual(t, "gemini", p.ID)
	}
}

func TestParseCustomKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("MY_GEMINI_KEY", "custom")

	doc := `
ai:
  providers:
    - {id: chatgpt, weight: 0.40, enabled: true, timeout_ms: 1000}
    - {id: claude, weight: 0.35, enabled: true, timeout_ms: 1000}
    - {id: gemini, weight: 0.25, enabled: true, timeout_ms: 1000, api_key_env: MY_GEMINI_KEY}
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.AI.Providers[2].APIKey)
}

func TestParseRejections(t *testing.T) {
	setKeys(t)

	tests := []struct {
		name string
		doc  string
		kind string
	}{
		{
			"no providers",
			`ai: {providers: []}`,
			ErrKindInvalidValue,
		},
		{
			"duplicate id",
			`
ai:
  providers:
    - {id: chatgpt, weight: 0.50, enabled: true, timeout_ms: 1000}
    - {id: chatgpt, weight: 0.50, enabled: true, timeout_ms: 1000}
`,
			ErrKindInvalidValue,
		},
		{
			"weight above one",
			`
ai:
  providers:
    - {id: chatgpt, weight: 1.5, enabled: true, timeout_ms: 1000}
`,
			ErrKindInvalidWeight,
		},
		{
			"negative timeout",
			`
ai:
  providers:
    - {id: chatgpt, weight: 1.0, enabled: true, timeout_ms: -5}
`,
			ErrKindInvalidValue,
		},
		{
			"not yaml",
			`{{{`,
			ErrKindParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.kind, cerr.Kind)
		})
	}
}

func TestLoadUnreadable(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrKindUnreadable, cerr.Kind)
}
