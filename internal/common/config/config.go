// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct. It is constructed once
// at startup and passed explicitly into each component; there is no package
// global.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Services      ServicesConfig     `mapstructure:"services"`
	Chat          ChatConfig         `mapstructure:"chat"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PipelineConfig holds the core settings applicable to every stage.
type PipelineConfig struct {
	StageTimeout        int     `mapstructure:"stage_timeout"` // milliseconds
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxQuestionsPerRun  int     `mapstructure:"max_questions_per_run"`
}

func (p PipelineConfig) StageTimeoutDuration() time.Duration {
	if p.StageTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.StageTimeout) * time.Millisecond
}

// ServicesConfig holds settings for external service integrations.
type ServicesConfig struct {
	Extraction struct {
		BaseURL string `mapstructure:"base_url"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"extraction"`

	Score struct {
		BaseURL string `mapstructure:"base_url"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"score"`

	LLMRuntime struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"llm_runtime"`
}

// ChatConfig holds settings for per-applicant chat state in Redis.
type ChatConfig struct {
	TTLSeconds  int `mapstructure:"ttl_seconds"`
	MaxMessages int `mapstructure:"max_messages"`
}

func (c ChatConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// NotificationConfig holds settings for decision notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
