package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// Manager loads and validates application configuration via Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment, and defaults.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/pa-decision-orchestrator/")

	viper.SetEnvPrefix("PA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Well-known unprefixed variables used by deployment tooling.
	_ = viper.BindEnv("drugbank.token", "DRUGBANK_TOKEN")
	_ = viper.BindEnv("drugbank.rate_limit_requests", "DRUGBANK_RATE_LIMIT_REQUESTS")
	_ = viper.BindEnv("drugbank.rate_limit_window", "DRUGBANK_RATE_LIMIT_WINDOW")
	_ = viper.BindEnv("memory.db_path", "CHROMA_DB_PATH")
	_ = viper.BindEnv("synthesis.gemini_api_key", "GEMINI_API_KEY")

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database defaults (repository disabled unless configured)
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "pa_decisions")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Orchestrator defaults
	viper.SetDefault("orchestrator.cache_ttl", "1h")
	viper.SetDefault("orchestrator.max_cache_size", 1000)
	viper.SetDefault("orchestrator.subtask_timeout", "30s")
	viper.SetDefault("orchestrator.agent_id", "pa-orchestrator")
	viper.SetDefault("orchestrator.include_tracebacks", false)

	// Synthesis defaults
	viper.SetDefault("synthesis.primary_model", "gemini-2.0-flash")
	viper.SetDefault("synthesis.fallback_model", "gemini-1.5-flash")
	viper.SetDefault("synthesis.max_retries", 3)
	viper.SetDefault("synthesis.max_prompt_tokens", 4000)
	viper.SetDefault("synthesis.request_timeout", "60s")
	viper.SetDefault("synthesis.use_mock", true)

	// DrugBank defaults
	viper.SetDefault("drugbank.base_url", "https://api.drugbank.com/v1/")
	viper.SetDefault("drugbank.rate_limit_requests", 10)
	viper.SetDefault("drugbank.rate_limit_window", "60s")
	viper.SetDefault("drugbank.timeout", "30s")
	viper.SetDefault("drugbank.use_mock", true)

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")

	// Memory defaults
	viper.SetDefault("memory.db_path", "./data/documents.db")
	viper.SetDefault("memory.embedding_dimension", 64)
	viper.SetDefault("memory.recency_weight", 0.1)

	// Data defaults
	viper.SetDefault("data.patient_file", "./data/patients.json")
	viper.SetDefault("data.policy_file", "./data/policies.json")
	viper.SetDefault("data.drug_csv_file", "")
	viper.SetDefault("data.masking_enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	if config.Orchestrator.MaxCacheSize <= 0 {
		return fmt.Errorf("orchestrator max_cache_size must be positive")
	}
	if config.Orchestrator.SubtaskTimeout <= 0 {
		return fmt.Errorf("orchestrator subtask_timeout must be positive")
	}

	if config.Synthesis.MaxRetries < 0 {
		return fmt.Errorf("synthesis max_retries must be non-negative")
	}
	if config.Synthesis.MaxPromptTokens <= 0 {
		return fmt.Errorf("synthesis max_prompt_tokens must be positive")
	}
	if !config.Synthesis.UseMock && config.Synthesis.GeminiAPIKey == "" {
		return fmt.Errorf("gemini API key is required when synthesis mock is disabled")
	}

	if config.DrugBank.RateLimitRequests <= 0 {
		return fmt.Errorf("drugbank rate_limit_requests must be positive")
	}
	if config.DrugBank.RateLimitWindow <= 0 {
		return fmt.Errorf("drugbank rate_limit_window must be positive")
	}
	if !config.DrugBank.UseMock && config.DrugBank.Token == "" {
		return fmt.Errorf("drugbank token is required when mock data is disabled")
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted Postgres connection string.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
