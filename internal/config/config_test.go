package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "production")
	t.Setenv("MAIL_USERNAME", "fax@example.com")
	t.Setenv("MAIL_PASSWORD", "app-password")
	t.Setenv("NOTION_TOKEN", "secret_token")
	t.Setenv("NOTION_DATABASE_ID", "db-records")
}

func TestNewConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_IMAP_SERVER", "imap.example.com")
	t.Setenv("MAIL_IMAP_PORT", "1993")
	t.Setenv("MAIL_USE_TLS", "false")
	t.Setenv("EMAIL_POLLING_INTERVAL_MINUTES", "10")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com, , admin@example.com")
	t.Setenv("DIFY_API_URL", "https://dify.example.com/v1/")
	t.Setenv("PORT", "3000")

	config, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "imap.example.com:1993", config.IMAPAddress())
	assert.False(t, config.UseTLS)
	assert.Equal(t, 10*time.Minute, config.PollingInterval())
	assert.Equal(t, []string{"ops@example.com", "admin@example.com"}, config.AlertRecipients)
	assert.Equal(t, "https://dify.example.com/v1", config.DifyAPIURL)
	assert.Equal(t, "3000", config.Port)
}

func TestNewConfigWithDefaults(t *testing.T) {
	setRequiredEnv(t)
	// Empty values are treated as unset.
	for _, key := range []string{"TZ", "PORT", "MAIL_IMAP_SERVER", "MAIL_IMAP_PORT", "STATE_BACKEND", "STORAGE_PATH", "SMTP_SERVER"} {
		t.Setenv(key, "")
	}

	config, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "imap.gmail.com:993", config.IMAPAddress())
	assert.Equal(t, "INBOX", config.Folder)
	assert.True(t, config.UseTLS)
	assert.False(t, config.IdleEnabled)
	assert.Equal(t, 168, config.UploadExpiryHours)
	assert.Equal(t, "https://api.notion.com", config.NotionAPIURL)
	assert.Equal(t, "./storage", config.StoragePath)
	assert.Equal(t, StateBackendFile, config.StateBackend)
	assert.Equal(t, 5*time.Minute, config.PollingInterval())
	assert.Equal(t, "8000", config.Port)
	assert.Equal(t, "Asia/Tokyo", config.Location().String())
	assert.False(t, config.AlertsEnabled())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Username:               "fax@example.com",
			Password:               "pw",
			NotionToken:            "token",
			NotionDatabaseID:       "db",
			StateBackend:           StateBackendFile,
			PollingIntervalMinutes: 5,
			Timezone:               "UTC",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing username", mutate: func(c *Config) { c.Username = "" }, wantErr: "MAIL_USERNAME"},
		{name: "missing password", mutate: func(c *Config) { c.Password = "" }, wantErr: "MAIL_PASSWORD"},
		{name: "missing notion token", mutate: func(c *Config) { c.NotionToken = "" }, wantErr: "NOTION_TOKEN"},
		{name: "missing notion database", mutate: func(c *Config) { c.NotionDatabaseID = "" }, wantErr: "NOTION_DATABASE_ID"},
		{name: "postgres without url", mutate: func(c *Config) { c.StateBackend = StateBackendPostgres }, wantErr: "DATABASE_URL"},
		{
			name: "postgres with url",
			mutate: func(c *Config) {
				c.StateBackend = StateBackendPostgres
				c.DatabaseURL = "postgres://localhost/sync"
			},
		},
		{name: "unknown backend", mutate: func(c *Config) { c.StateBackend = "redis" }, wantErr: "STATE_BACKEND"},
		{name: "zero interval", mutate: func(c *Config) { c.PollingIntervalMinutes = 0 }, wantErr: "EMAIL_POLLING_INTERVAL_MINUTES"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "TZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
