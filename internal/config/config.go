// Package config provides configuration loading, defaults, and validation
// for the KnowBot application.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config defines the application configuration. Values can be set through a
// YAML file or environment variables prefixed with BOT_
// (e.g. BOT_TELEGRAM_TOKEN).
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and routing identities.
type TelegramConfig struct {
	Token          string  `mapstructure:"token"            validate:"required"`
	AdminUserID    int64   `mapstructure:"admin_user_id"    validate:"required,gt=0"`
	TriggerWord    string  `mapstructure:"trigger_word"`
	AllowedUserIDs []int64 `mapstructure:"allowed_user_ids"`

	// BotInfo is populated at startup from GetMe; not read from the file.
	BotInfo *models.User `mapstructure:"-"`
}

// GeminiConfig holds the generation service settings.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"    validate:"required"`
	ModelName       string  `mapstructure:"model_name" validate:"required"`
	Temperature     float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens" validate:"min=0"`
}

// EmbeddingConfig holds the embedding service settings. Any OpenAI-compatible
// embeddings endpoint works; Dimensions must match the chosen model.
type EmbeddingConfig struct {
	BaseURL    string `mapstructure:"base_url"   validate:"required,url"`
	APIKey     string `mapstructure:"api_key"    validate:"required"`
	Model      string `mapstructure:"model"      validate:"required"`
	Dimensions int    `mapstructure:"dimensions" validate:"required,gt=0"`
}

// KnowledgeConfig tunes retrieval and topic extraction. The distance
// thresholds are tuned to the configured embedding space and must be
// re-validated if the embedding model changes.
type KnowledgeConfig struct {
	ProductName      string  `mapstructure:"product_name" validate:"required"`
	MaxResults       int     `mapstructure:"max_results" validate:"gt=0"`
	MaxDistance      float64 `mapstructure:"max_distance" validate:"gt=0,lte=2"`
	RelevantDistance float64 `mapstructure:"relevant_distance" validate:"gt=0,lte=2"`
	HistoryLimit     int     `mapstructure:"history_limit" validate:"gt=0"`
	ReidentifyTopics bool    `mapstructure:"reidentify_topics"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig maps task names to their cron schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a named scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// DefaultAITimeout bounds a single generation call at the adapter level.
const DefaultAITimeout = 2 * time.Minute

// LoadConfig reads configuration from the given YAML file (optional) and
// BOT_* environment variables, applies defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; env vars and defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	// Secrets default to empty so their keys are known to viper and can be
	// supplied through BOT_* environment variables alone.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)
	v.SetDefault("telegram.trigger_word", "")
	v.SetDefault("telegram.allowed_user_ids", []int64{})

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("embedding.api_key", "")

	v.SetDefault("gemini.model_name", "gemini-2.5-flash")
	v.SetDefault("gemini.temperature", 1.0)
	v.SetDefault("gemini.max_output_tokens", 10000)

	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)

	v.SetDefault("knowledge.product_name", "KnowBot")
	v.SetDefault("knowledge.max_results", 10)
	v.SetDefault("knowledge.max_distance", 0.7)
	v.SetDefault("knowledge.relevant_distance", 0.5)
	v.SetDefault("knowledge.history_limit", 7)
	v.SetDefault("knowledge.reidentify_topics", false)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"daily_digest":     {Enabled: true, Schedule: "0 0 22 * * *"},
		"topic_extraction": {Enabled: false, Schedule: "0 30 3 * * *"},
		"sql_maintenance":  {Enabled: true, Schedule: "0 0 4 * * 0"},
	})
}
