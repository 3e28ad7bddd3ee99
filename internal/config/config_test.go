package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 10, cfg.PortAttempts)
	assert.Equal(t, "https://slack.com/api/", cfg.SlackAPIURL)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 30, cfg.ScheduleDays)
	assert.Equal(t, "mention-map", cfg.StorageContainer)
}

func TestConfig_validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "Minimal valid",
			cfg:     Config{SlackBotToken: "xoxb", Port: 8000, PortAttempts: 1},
			wantErr: false,
		},
		{
			name:    "Missing token",
			cfg:     Config{Port: 8000, PortAttempts: 1},
			wantErr: true,
		},
		{
			name:    "Port out of range",
			cfg:     Config{SlackBotToken: "xoxb", Port: 70000, PortAttempts: 1},
			wantErr: true,
		},
		{
			name:    "Schedule without channel",
			cfg:     Config{SlackBotToken: "xoxb", Port: 8000, PortAttempts: 1, ScheduleCron: "0 0 9 * * MON"},
			wantErr: true,
		},
		{
			name:    "Email without SMTP",
			cfg:     Config{SlackBotToken: "xoxb", Port: 8000, PortAttempts: 1, NotificationEmail: "a@b.c"},
			wantErr: true,
		},
		{
			name:    "Unknown time zone",
			cfg:     Config{SlackBotToken: "xoxb", Port: 8000, PortAttempts: 1, TimeZone: "Mars/Olympus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := &Config{TimeZone: "Local"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.TimeZone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestConfig_BrowserURL(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "http://localhost:8003", cfg.BrowserURL(8003))

	cfg.PublicURL = "https://map.example.com/"
	assert.Equal(t, "https://map.example.com", cfg.BrowserURL(8003))
}
