// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Protocol    ProtocolConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
}

// ProtocolConfig is the global protocol configuration struct: treasury
// routing, fee percent and graph/stack limits. It is read by value by the
// engines and mutated only through admin-gated setters.
type ProtocolConfig struct {
	TreasuryAddress Address
	// Out of MaxPercent (100_000_000 == 100%).
	TreasuryFeePercent uint32

	MaxParents             int
	MaxAncestors           int
	MaxAccumulatedPolicies int

	// Minimum seconds between royalty-vault snapshots.
	SnapshotInterval int64

	ChainID uint64
}

// Address mirrors models.Address without importing models (config is a leaf
// package).
type Address = string

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "ip_protocol"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 24),   // 24 hours
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 168), // 7 days
		},
		Protocol: ProtocolConfig{
			TreasuryAddress:        getEnv("PROTOCOL_TREASURY_ADDRESS", "0x00000000000000000000000000000000000a11ce"),
			TreasuryFeePercent:     uint32(getEnvAsInt("PROTOCOL_TREASURY_FEE_PERCENT", 0)),
			MaxParents:             getEnvAsInt("PROTOCOL_MAX_PARENTS", 16),
			MaxAncestors:           getEnvAsInt("PROTOCOL_MAX_ANCESTORS", 1024),
			MaxAccumulatedPolicies: getEnvAsInt("PROTOCOL_MAX_ACCUMULATED_POLICIES", 16),
			SnapshotInterval:       int64(getEnvAsInt("PROTOCOL_SNAPSHOT_INTERVAL", 7*24*3600)),
			ChainID:                uint64(getEnvAsInt("PROTOCOL_CHAIN_ID", 1)),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Protocol.TreasuryFeePercent > 100_000_000 {
		return fmt.Errorf("treasury fee percent exceeds 100%%")
	}

	if c.Protocol.MaxParents < 1 || c.Protocol.MaxAncestors < 1 {
		return fmt.Errorf("protocol graph limits must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
