package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Logger        LoggerConfig
	Auth          AuthConfig
	Messaging     MessagingConfig
	Search        SearchConfig
	Gateway       GatewayConfig
	Collaborators CollaboratorConfig
	S3            S3Config
	Promotions    PromotionConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string // empty allows any origin
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
	MigrateOnStart  bool
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// MessagingConfig holds broker settings.
type MessagingConfig struct {
	Driver          string // postgres or memory
	PollInterval    time.Duration
	RedeliveryDelay time.Duration
	MaxAttempts     int
	BatchSize       int
}

// SearchConfig holds bulk indexing pipeline settings.
type SearchConfig struct {
	BatchSize    int
	Parallelism  int // 0 means one worker per CPU
	MaxAttempts  int
	RetryBackoff time.Duration
}

// GatewayConfig holds payment gateway settings.
type GatewayConfig struct {
	Name         string
	BaseURL      string // empty selects the sandbox gateway
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

// CollaboratorConfig holds the addresses of synchronous collaborator services.
// An empty URL means the collaborator is served in-process.
type CollaboratorConfig struct {
	OrdersURL   string
	ProductsURL string
	UsersURL    string
	Timeout     time.Duration
}

// S3Config holds AWS S3 configuration for promotion import files.
type S3Config struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string // Path prefix within bucket (e.g., "promotions/")
}

// PromotionConfig holds promotion import settings.
type PromotionConfig struct {
	ImportFiles []string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			CORSOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "commerceflow"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
			MigrateOnStart:  getEnvAsBool("DB_MIGRATE_ON_START", true),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Messaging: MessagingConfig{
			Driver:          getEnv("MESSAGING_DRIVER", "postgres"),
			PollInterval:    getEnvAsMillis("MESSAGING_POLL_INTERVAL_MS", 500*time.Millisecond),
			RedeliveryDelay: getEnvAsMillis("MESSAGING_REDELIVERY_DELAY_MS", 5*time.Second),
			MaxAttempts:     getEnvAsInt("MESSAGING_MAX_ATTEMPTS", 5),
			BatchSize:       getEnvAsInt("MESSAGING_BATCH_SIZE", 20),
		},
		Search: SearchConfig{
			BatchSize:    getEnvAsInt("SEARCH_BATCH_SIZE", 1000),
			Parallelism:  getEnvAsInt("SEARCH_PARALLELISM", 0),
			MaxAttempts:  getEnvAsInt("SEARCH_MAX_ATTEMPTS", 3),
			RetryBackoff: getEnvAsMillis("SEARCH_RETRY_BACKOFF_MS", 30*time.Second),
		},
		Gateway: GatewayConfig{
			Name:         getEnv("GATEWAY_NAME", "paypal"),
			BaseURL:      getEnv("GATEWAY_BASE_URL", ""),
			ClientID:     getEnv("GATEWAY_CLIENT_ID", ""),
			ClientSecret: getEnv("GATEWAY_CLIENT_SECRET", ""),
			ReturnURL:    getEnv("GATEWAY_RETURN_URL", "http://localhost:8080/payments/return"),
			CancelURL:    getEnv("GATEWAY_CANCEL_URL", "http://localhost:8080/payments/failure"),
			Timeout:      getEnvAsMillis("GATEWAY_TIMEOUT_MS", 10*time.Second),
		},
		Collaborators: CollaboratorConfig{
			OrdersURL:   getEnv("ORDERS_SERVICE_URL", ""),
			ProductsURL: getEnv("PRODUCTS_SERVICE_URL", ""),
			UsersURL:    getEnv("USERS_SERVICE_URL", ""),
			Timeout:     getEnvAsMillis("COLLABORATOR_TIMEOUT_MS", 5*time.Second),
		},
		S3: S3Config{
			Enabled: getEnvAsBool("S3_ENABLED", false),
			Bucket:  getEnv("S3_BUCKET", ""),
			Region:  getEnv("S3_REGION", "us-east-1"),
			Prefix:  getEnv("S3_PREFIX", "promotions/"),
		},
		Promotions: PromotionConfig{
			ImportFiles: getEnvAsList("PROMOTION_IMPORT_FILES"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.Messaging.Driver != "postgres" && c.Messaging.Driver != "memory" {
		return fmt.Errorf("invalid messaging driver: %s (must be postgres or memory)", c.Messaging.Driver)
	}

	if c.Messaging.MaxAttempts < 1 {
		return fmt.Errorf("messaging max attempts must be at least 1")
	}

	if c.Messaging.BatchSize < 1 {
		return fmt.Errorf("messaging batch size must be at least 1")
	}

	if c.Messaging.PollInterval <= 0 {
		return fmt.Errorf("messaging poll interval must be positive")
	}

	if c.Search.BatchSize < 1 {
		return fmt.Errorf("search batch size must be at least 1")
	}

	if c.Search.MaxAttempts < 1 {
		return fmt.Errorf("search max attempts must be at least 1")
	}

	if c.Search.Parallelism < 0 {
		return fmt.Errorf("search parallelism cannot be negative")
	}

	if c.Gateway.BaseURL != "" && (c.Gateway.ClientID == "" || c.Gateway.ClientSecret == "") {
		return fmt.Errorf("gateway client credentials are required when a gateway URL is set")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsMillis retrieves an environment variable holding milliseconds as a duration.
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvAsList retrieves a comma separated environment variable.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
