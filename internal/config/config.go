package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port         int
	PortAttempts int
	PublicURL    string
	Debug        bool
	TimeZone     string

	// Slack configuration
	SlackBotToken      string
	SlackSigningSecret string
	SlackAPIURL        string

	// Metrics and response cache
	MetricsEnabled  bool
	ResponseCacheMB int

	// Optional periodic analysis of a single channel
	ScheduleCron      string
	ScheduleChannelID string
	ScheduleUserID    string
	ScheduleDays      int

	// Azure Storage configuration (snapshot archive)
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getIntEnv("PORT", 8000),
		PortAttempts: getIntEnv("PORT_ATTEMPTS", 10),
		PublicURL:    getEnv("PUBLIC_URL", ""),
		Debug:        getBoolEnv("DEBUG", false),
		TimeZone:     getEnv("TIMEZONE", "Local"),

		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackSigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),
		SlackAPIURL:        getEnv("SLACK_API_URL", "https://slack.com/api/"),

		MetricsEnabled:  getBoolEnv("METRICS_ENABLED", true),
		ResponseCacheMB: getIntEnv("RESPONSE_CACHE_MB", 64),

		ScheduleCron:      strings.TrimSpace(getEnv("SCHEDULE_CRON", "")),
		ScheduleChannelID: getEnv("SCHEDULE_CHANNEL_ID", ""),
		ScheduleUserID:    getEnv("SCHEDULE_USER_ID", ""),
		ScheduleDays:      getIntEnv("SCHEDULE_DAYS", 30),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mention-map"),

		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.PortAttempts < 1 {
		return fmt.Errorf("PORT_ATTEMPTS must be at least 1")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}

	if c.ScheduleCron != "" && c.ScheduleChannelID == "" {
		return fmt.Errorf("SCHEDULE_CHANNEL_ID is required when SCHEDULE_CRON is set")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Location resolves TimeZone. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// BrowserURL is the address handed to users for the visualization page.
// PublicURL wins; otherwise the bound port on localhost is used.
func (c *Config) BrowserURL(boundPort int) string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", boundPort)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
