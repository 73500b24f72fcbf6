package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Policy   PolicyConfig   `json:"policy"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	MigrationsPath string        `json:"migrations_path"`
}

// SecurityConfig holds the shared secrets for the auth and payment
// collaborators.
type SecurityConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	PaymentSecret string `json:"payment_secret"`
}

// PolicyConfig holds the dispatch policy windows. The source system
// hard-coded these; they are deliberately configurable here.
type PolicyConfig struct {
	CommissionRate        float64       `json:"commission_rate"`
	ResubmitCooldown      time.Duration `json:"resubmit_cooldown"`
	NeedsInfoDeadlineDays int           `json:"needs_info_deadline_days"`
	ApprovalTTL           time.Duration `json:"approval_ttl"`
	AssumedSpeedKmh       float64       `json:"assumed_speed_kmh"`
	DisconnectGrace       time.Duration `json:"disconnect_grace"`
	DefaultRadiusKm       float64       `json:"default_radius_km"`
	MatchLimit            int           `json:"match_limit"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// DefaultPolicy returns the policy windows the source system shipped with.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		CommissionRate:        0.10,
		ResubmitCooldown:      24 * time.Hour,
		NeedsInfoDeadlineDays: 7,
		ApprovalTTL:           365 * 24 * time.Hour,
		AssumedSpeedKmh:       30,
		DisconnectGrace:       30 * time.Second,
		DefaultRadiusKm:       5,
		MatchLimit:            10,
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "fieldserve_dispatch",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
		},
		Policy: DefaultPolicy(),
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if secret := os.Getenv("PAYMENT_SECRET"); secret != "" {
		config.Security.PaymentSecret = secret
	}
	if rate := os.Getenv("PLATFORM_COMMISSION_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil && r >= 0 && r <= 1 {
			config.Policy.CommissionRate = r
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
