package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{
		{ID: "primary", Provider: "openai", APIKey: "sk-test", Priority: 1},
	}
	cfg.Embedding.APIKey = "sk-test"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8400, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 100, cfg.Sessions.MaxSessions)
	assert.Equal(t, 24, cfg.Sessions.MaxAgeHours)
	assert.Equal(t, 5, cfg.Sessions.HistoryWindow)
	assert.Equal(t, 3, cfg.Documents.MaxDocuments)
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no profiles", func(c *Config) { c.AI.Profiles = nil }, "ai.profiles"},
		{"bad provider", func(c *Config) { c.AI.Profiles[0].Provider = "cohere" }, "not supported"},
		{"missing key", func(c *Config) { c.AI.Profiles[0].APIKey = "" }, "api_key"},
		{"no model", func(c *Config) { c.AI.Model = "" }, "ai.model"},
		{"bad temperature", func(c *Config) { c.AI.Temperature = 3 }, "temperature"},
		{"bad top_k", func(c *Config) { c.Retrieval.TopK = 0 }, "top_k"},
		{"bad max sessions", func(c *Config) { c.Sessions.MaxSessions = 0 }, "max_sessions"},
		{"bad history window", func(c *Config) { c.Sessions.HistoryWindow = 0 }, "history_window"},
		{"bad max documents", func(c *Config) { c.Documents.MaxDocuments = 0 }, "max_documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
