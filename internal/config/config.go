package config

// Config represents the main docwise configuration
type Config struct {
	// Server holds the HTTP gateway settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// AI holds text-generation provider settings
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Embedding holds the embedding provider settings
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Retrieval holds vector index settings
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`

	// Sessions holds conversation store settings
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Documents holds document binding settings
	Documents DocumentsConfig `json:"documents" mapstructure:"documents"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// AIConfig holds text-generation provider configuration
type AIConfig struct {
	Profiles    []AIProfile `json:"profiles" mapstructure:"profiles"`
	Model       string      `json:"model" mapstructure:"model"`
	Temperature float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int         `json:"max_tokens" mapstructure:"max_tokens"`
}

// AIProfile represents a text-generation provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Model  string `json:"model" mapstructure:"model"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// RetrievalConfig holds vector index configuration
type RetrievalConfig struct {
	// DBPath is the sqlite database backing the vector index
	DBPath string `json:"db_path" mapstructure:"db_path"`
	// TopK is the number of passages returned per search
	TopK int `json:"top_k" mapstructure:"top_k"`
}

// SessionsConfig holds conversation store configuration
type SessionsConfig struct {
	// MaxSessions triggers the oldest-first trim when exceeded
	MaxSessions int `json:"max_sessions" mapstructure:"max_sessions"`
	// MaxAgeHours is the age cutoff used by the scheduled cleanup
	MaxAgeHours int `json:"max_age_hours" mapstructure:"max_age_hours"`
	// CleanupSchedule is a cron expression for the periodic cleanup job
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	// HistoryWindow is the number of recent turns injected into prompts
	HistoryWindow int `json:"history_window" mapstructure:"history_window"`
}

// DocumentsConfig holds document binding configuration
type DocumentsConfig struct {
	// MaxDocuments is the hard cap on concurrently indexed documents
	MaxDocuments int `json:"max_documents" mapstructure:"max_documents"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8400,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Sessions: SessionsConfig{
			MaxSessions:     100,
			MaxAgeHours:     24,
			CleanupSchedule: "0 * * * *",
			HistoryWindow:   5,
		},
		Documents: DocumentsConfig{
			MaxDocuments: 3,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
	}
}
