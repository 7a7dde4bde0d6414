package domain

import "time"

// Config is the complete application configuration.
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Synthesis    SynthesisConfig    `mapstructure:"synthesis"`
	DrugBank     DrugBankConfig     `mapstructure:"drugbank"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Data         DataConfig         `mapstructure:"data"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds Postgres settings for the decision repository.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Enabled         bool          `mapstructure:"enabled"`
}

// OrchestratorConfig tunes the PA orchestration engine.
type OrchestratorConfig struct {
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	MaxCacheSize      int           `mapstructure:"max_cache_size"`
	SubtaskTimeout    time.Duration `mapstructure:"subtask_timeout"`
	AgentID           string        `mapstructure:"agent_id"`
	IncludeTracebacks bool          `mapstructure:"include_tracebacks"`
}

// SynthesisConfig tunes the LLM synthesizer pipeline.
type SynthesisConfig struct {
	PrimaryModel    string        `mapstructure:"primary_model"`
	FallbackModel   string        `mapstructure:"fallback_model"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxPromptTokens int           `mapstructure:"max_prompt_tokens"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UseMock         bool          `mapstructure:"use_mock"`
}

// DrugBankConfig holds the external DrugBank API settings.
type DrugBankConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UseMock           bool          `mapstructure:"use_mock"`
}

// CacheConfig holds optional Redis settings for the distributed cache layer.
type CacheConfig struct {
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Enabled    bool          `mapstructure:"enabled"`
}

// MemoryConfig holds document collection settings.
type MemoryConfig struct {
	DBPath             string  `mapstructure:"db_path"`
	EmbeddingDimension int     `mapstructure:"embedding_dimension"`
	RecencyWeight      float64 `mapstructure:"recency_weight"`
}

// DataConfig points at the JSON-backed mock data stores.
type DataConfig struct {
	PatientFile    string `mapstructure:"patient_file"`
	PolicyFile     string `mapstructure:"policy_file"`
	DrugCSVFile    string `mapstructure:"drug_csv_file"`
	MaskingEnabled bool   `mapstructure:"masking_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
