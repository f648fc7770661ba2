// Package config provides configuration loading for both services.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	AuthServer ServerConfig   `mapstructure:"auth_server"`
	WebServer  ServerConfig   `mapstructure:"web_server"`
	Mongo      MongoConfig    `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Session    SessionConfig  `mapstructure:"session"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Upstream   UpstreamConfig `mapstructure:"upstream"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
}

// Addr returns the listen address string.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MongoConfig holds MongoDB configuration.
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig holds session cookie and store configuration.
type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	Name   string        `mapstructure:"name"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// AuthConfig holds credential-verification configuration.
type AuthConfig struct {
	BcryptCost        int `mapstructure:"bcrypt_cost"`
	MinPasswordLength int `mapstructure:"min_password_length"`
}

// UpstreamConfig holds the web service's view of the auth service.
type UpstreamConfig struct {
	AuthURL string        `mapstructure:"auth_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/microauthx")

	// Enable environment variable override, e.g. MICROAUTH_MONGO_URI.
	v.SetEnvPrefix("MICROAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Auth service defaults
	v.SetDefault("auth_server.port", 3000)
	v.SetDefault("auth_server.host", "0.0.0.0")
	v.SetDefault("auth_server.read_timeout", "30s")
	v.SetDefault("auth_server.write_timeout", "30s")
	v.SetDefault("auth_server.environment", "dev")

	// Web service defaults
	v.SetDefault("web_server.port", 4000)
	v.SetDefault("web_server.host", "0.0.0.0")
	v.SetDefault("web_server.read_timeout", "30s")
	v.SetDefault("web_server.write_timeout", "30s")
	v.SetDefault("web_server.environment", "dev")

	// MongoDB defaults
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "microauthx")
	v.SetDefault("mongo.timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Session defaults
	v.SetDefault("session.secret", "microauthxsecret")
	v.SetDefault("session.name", "auth_session")
	v.SetDefault("session.ttl", "24h")

	// Credential verification defaults
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.min_password_length", 6)

	// Upstream defaults (web service -> auth service)
	v.SetDefault("upstream.auth_url", "http://localhost:3000")
	v.SetDefault("upstream.timeout", "8s")
}
