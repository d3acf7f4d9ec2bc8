// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
)

// Default triage parameters, applied when the environment leaves them unset.
const (
	DefaultSummaryIntervalHours  = 4
	DefaultMaxMessagesPerSummary = 15
	DefaultMinPriorityScore      = 1
	DefaultWarningThreshold      = 5
)

// Config holds the application configuration.
type Config struct {
	BotToken      string
	ClientUserID  int64
	OwnerUsername string

	DatabasePath string
	LogLevel     string

	SummaryIntervalHours  int
	MaxMessagesPerSummary int
	MinPriorityScore      int
	WarningThresholdScore int
	QuietHours            *model.QuietWindow

	OpenAIAPIKey string
	OpenAIModel  string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	rawClientID := os.Getenv("CLIENT_USER_ID")
	if rawClientID == "" {
		return nil, fmt.Errorf("CLIENT_USER_ID is required")
	}
	clientID, err := strconv.ParseInt(rawClientID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CLIENT_USER_ID %q: %w", rawClientID, err)
	}

	cfg := &Config{
		BotToken:              token,
		ClientUserID:          clientID,
		OwnerUsername:         os.Getenv("OWNER_USERNAME"),
		DatabasePath:          envOrDefault("DATABASE_PATH", "./data/secretary.db"),
		LogLevel:              envOrDefault("LOG_LEVEL", "info"),
		SummaryIntervalHours:  DefaultSummaryIntervalHours,
		MaxMessagesPerSummary: DefaultMaxMessagesPerSummary,
		MinPriorityScore:      DefaultMinPriorityScore,
		WarningThresholdScore: DefaultWarningThreshold,
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           os.Getenv("OPENAI_MODEL"),
	}

	if err := intFromEnv("SUMMARY_INTERVAL_HOURS", &cfg.SummaryIntervalHours, 1); err != nil {
		return nil, err
	}
	if err := intFromEnv("MAX_MESSAGES_PER_SUMMARY", &cfg.MaxMessagesPerSummary, 1); err != nil {
		return nil, err
	}
	if err := intFromEnv("MIN_PRIORITY_SCORE", &cfg.MinPriorityScore, 0); err != nil {
		return nil, err
	}
	if err := intFromEnv("WARNING_THRESHOLD_SCORE", &cfg.WarningThresholdScore, 0); err != nil {
		return nil, err
	}

	if raw := os.Getenv("QUIET_HOURS"); raw != "" {
		w, err := model.ParseQuietWindow(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid QUIET_HOURS: %w", err)
		}
		cfg.QuietHours = w
	}

	return cfg, nil
}

// DefaultPreferences builds the initial preference row for the monitored user.
func (c *Config) DefaultPreferences() *model.UserPreferences {
	return &model.UserPreferences{
		UserID:                c.ClientUserID,
		SummaryIntervalHours:  c.SummaryIntervalHours,
		MaxMessagesPerSummary: c.MaxMessagesPerSummary,
		QuietHours:            c.QuietHours,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, dst *int, minimum int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < minimum {
		return fmt.Errorf("%s must be at least %d, got %d", key, minimum, v)
	}
	*dst = v
	return nil
}
