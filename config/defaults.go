// =============================================================================
// Default configuration
// =============================================================================
// Provides sane defaults for every config section.
// =============================================================================
package config

import "time"

// DefaultConfig returns a Config with every section at its default value.
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Database:     DefaultDatabaseConfig(),
		Redis:        DefaultRedisConfig(),
		Connector:    DefaultConnectorConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		JWT:          DefaultJWTConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		APIKeys:            []string{},
		AllowQueryAPIKey:   false,
		CORSAllowedOrigins: []string{},
	}
}

// DefaultDatabaseConfig returns the default Postgres configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "evalcore",
		Password:        "",
		Name:            "evalcore",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		Password:       "",
		DB:             0,
		PoolSize:       20,
		MinIdleConns:   5,
		QueueKeyPrefix: "evalcore:",
	}
}

// DefaultConnectorConfig returns the default Model Connector configuration.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		ProviderName: "openai",
		BaseURL:      "https://api.openai.com/v1",
		Timeout:      30 * time.Second,
		RateRPS:      10,
		RateBurst:    20,
	}
}

// DefaultOrchestratorConfig returns the default worker pool tuning.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PerExecutionConcurrency: 5,
		PollInterval:            500 * time.Millisecond,
		VisibilityTimeout:       time.Hour,
		Workers:                 4,
	}
}

// DefaultJWTConfig returns the default JWT validation configuration.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Issuer: "evalcore",
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default OpenTelemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "evalcore",
		SampleRate:   0.1,
	}
}
