package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks the configuration for values that would break startup
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if len(c.AI.Profiles) == 0 {
		problems = append(problems, "ai.profiles must contain at least one provider profile")
	}
	for i, p := range c.AI.Profiles {
		switch p.Provider {
		case "openai", "anthropic":
		default:
			problems = append(problems, fmt.Sprintf("ai.profiles[%d].provider %q is not supported", i, p.Provider))
		}
		if p.APIKey == "" {
			problems = append(problems, fmt.Sprintf("ai.profiles[%d].api_key is empty", i))
		}
	}

	if c.AI.Model == "" {
		problems = append(problems, "ai.model must be set")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("ai.temperature %.2f is out of range [0,2]", c.AI.Temperature))
	}

	if c.Embedding.Model == "" {
		problems = append(problems, "embedding.model must be set")
	}

	if c.Retrieval.TopK < 1 {
		problems = append(problems, fmt.Sprintf("retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK))
	}

	if c.Sessions.MaxSessions < 1 {
		problems = append(problems, fmt.Sprintf("sessions.max_sessions must be >= 1, got %d", c.Sessions.MaxSessions))
	}
	if c.Sessions.MaxAgeHours < 1 {
		problems = append(problems, fmt.Sprintf("sessions.max_age_hours must be >= 1, got %d", c.Sessions.MaxAgeHours))
	}
	if c.Sessions.HistoryWindow < 1 {
		problems = append(problems, fmt.Sprintf("sessions.history_window must be >= 1, got %d", c.Sessions.HistoryWindow))
	}

	if c.Documents.MaxDocuments < 1 {
		problems = append(problems, fmt.Sprintf("documents.max_documents must be >= 1, got %d", c.Documents.MaxDocuments))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

// marshalConfig renders the config as indented JSON
func marshalConfig(cfg *Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return append(data, '\n'), nil
}
