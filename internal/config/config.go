package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
)

type Config struct {
	Environment string

	IMAPServer  string
	IMAPPort    int
	Username    string
	Password    string
	Folder      string
	UseTLS      bool
	IdleEnabled bool

	UploadAPIURL      string
	UploadAPIKey      string
	UploadExpiryHours int

	DifyAPIURL      string
	DifyOCRAPIKey   string
	DifyMatchAPIKey string
	DifyUser        string

	NotionToken            string
	NotionDatabaseID       string
	NotionClientDatabaseID string
	NotionAPIURL           string

	StoragePath  string
	StateBackend string
	DatabaseURL  string

	PollingIntervalMinutes int
	Port                   string
	APIToken               string
	Timezone               string

	SMTPServer      string
	SMTPPort        int
	SMTPEmail       string
	SMTPPassword    string
	AlertRecipients []string

	LogLevel  string
	LogFormat string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := fromViper(env, newViper())

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("MAIL_IMAP_SERVER", "imap.gmail.com")
	v.SetDefault("MAIL_IMAP_PORT", 993)
	v.SetDefault("MAIL_FOLDER", "INBOX")
	v.SetDefault("MAIL_USE_TLS", true)
	v.SetDefault("MAIL_IDLE_ENABLED", false)
	v.SetDefault("UPLOAD_EXPIRY_HOURS", 168)
	v.SetDefault("DIFY_API_URL", "https://api.dify.ai/v1")
	v.SetDefault("DIFY_USER", "yahei-fax-ocr")
	v.SetDefault("NOTION_API_URL", "https://api.notion.com")
	v.SetDefault("STORAGE_PATH", "./storage")
	v.SetDefault("STATE_BACKEND", StateBackendFile)
	v.SetDefault("EMAIL_POLLING_INTERVAL_MINUTES", 5)
	v.SetDefault("PORT", "8000")
	v.SetDefault("TZ", "Asia/Tokyo")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	return v
}

func fromViper(env string, v *viper.Viper) *Config {
	return &Config{
		Environment: env,

		IMAPServer:  v.GetString("MAIL_IMAP_SERVER"),
		IMAPPort:    v.GetInt("MAIL_IMAP_PORT"),
		Username:    v.GetString("MAIL_USERNAME"),
		Password:    v.GetString("MAIL_PASSWORD"),
		Folder:      v.GetString("MAIL_FOLDER"),
		UseTLS:      v.GetBool("MAIL_USE_TLS"),
		IdleEnabled: v.GetBool("MAIL_IDLE_ENABLED"),

		UploadAPIURL:      v.GetString("UPLOAD_API_URL"),
		UploadAPIKey:      v.GetString("UPLOAD_API_KEY"),
		UploadExpiryHours: v.GetInt("UPLOAD_EXPIRY_HOURS"),

		DifyAPIURL:      strings.TrimRight(v.GetString("DIFY_API_URL"), "/"),
		DifyOCRAPIKey:   v.GetString("DIFY_OCR_API_KEY"),
		DifyMatchAPIKey: v.GetString("DIFY_MATCH_API_KEY"),
		DifyUser:        v.GetString("DIFY_USER"),

		NotionToken:            v.GetString("NOTION_TOKEN"),
		NotionDatabaseID:       v.GetString("NOTION_DATABASE_ID"),
		NotionClientDatabaseID: v.GetString("NOTION_CLIENT_DATABASE_ID"),
		NotionAPIURL:           strings.TrimRight(v.GetString("NOTION_API_URL"), "/"),

		StoragePath:  v.GetString("STORAGE_PATH"),
		StateBackend: strings.ToLower(v.GetString("STATE_BACKEND")),
		DatabaseURL:  v.GetString("DATABASE_URL"),

		PollingIntervalMinutes: v.GetInt("EMAIL_POLLING_INTERVAL_MINUTES"),
		Port:                   v.GetString("PORT"),
		APIToken:               v.GetString("API_TOKEN"),
		Timezone:               v.GetString("TZ"),

		SMTPServer:      v.GetString("SMTP_SERVER"),
		SMTPPort:        v.GetInt("SMTP_PORT"),
		SMTPEmail:       v.GetString("SMTP_EMAIL"),
		SMTPPassword:    v.GetString("SMTP_PASSWORD"),
		AlertRecipients: splitList(v.GetString("ALERT_RECIPIENTS")),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
}

func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("MAIL_USERNAME is required")
	}

	if c.Password == "" {
		return fmt.Errorf("MAIL_PASSWORD is required")
	}

	if c.NotionToken == "" {
		return fmt.Errorf("NOTION_TOKEN is required")
	}

	if c.NotionDatabaseID == "" {
		return fmt.Errorf("NOTION_DATABASE_ID is required")
	}

	switch c.StateBackend {
	case StateBackendFile:
	case StateBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STATE_BACKEND is %s", StateBackendPostgres)
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", StateBackendFile, StateBackendPostgres, c.StateBackend)
	}

	if c.PollingIntervalMinutes <= 0 {
		return fmt.Errorf("EMAIL_POLLING_INTERVAL_MINUTES must be positive")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TZ %q: %w", c.Timezone, err)
	}

	return nil
}

// IMAPAddress returns the host:port of the mailbox server.
func (c *Config) IMAPAddress() string {
	return net.JoinHostPort(c.IMAPServer, strconv.Itoa(c.IMAPPort))
}

// SMTPAddress returns the host:port of the alert relay.
func (c *Config) SMTPAddress() string {
	return net.JoinHostPort(c.SMTPServer, strconv.Itoa(c.SMTPPort))
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PollingInterval returns the scheduler interval.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMinutes) * time.Minute
}

// AlertsEnabled reports whether failure alerts can be sent.
func (c *Config) AlertsEnabled() bool {
	return c.SMTPServer != "" && c.SMTPEmail != "" && len(c.AlertRecipients) > 0
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
