package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string
	AppName  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	RateLimitRPM int
	SessionDays  int

	InviteExpiryDays    int
	InviteRetentionDays int

	NotifyWebhookURL string
	NotifyTimeoutMS  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("PM_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("PM_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("PM_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("PM_HTTP_ADDR", ":8080")
	cfg.AppName = getEnvOrDefault("PM_APP_NAME", "PM Dashboard")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PM_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("PM_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("PM_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PM_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("PM_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("PM_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("PM_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("PM_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("PM_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("PM_RATE_LIMIT_RPM", 300)
	if err != nil {
		return nil, err
	}

	cfg.SessionDays, err = getEnvIntOrDefault("PM_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.InviteExpiryDays, err = getEnvIntOrDefault("PM_INVITE_EXPIRY_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteExpiryDays <= 0 || cfg.InviteExpiryDays > 90 {
		return nil, fmt.Errorf("PM_INVITE_EXPIRY_DAYS must be between 1 and 90 (got: %d)", cfg.InviteExpiryDays)
	}

	cfg.InviteRetentionDays, err = getEnvIntOrDefault("PM_INVITE_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if cfg.InviteRetentionDays <= 0 {
		return nil, fmt.Errorf("PM_INVITE_RETENTION_DAYS must be positive (got: %d)", cfg.InviteRetentionDays)
	}

	cfg.NotifyWebhookURL = strings.TrimSpace(os.Getenv("PM_NOTIFY_WEBHOOK_URL"))
	if cfg.NotifyWebhookURL != "" && !strings.HasPrefix(cfg.NotifyWebhookURL, "https://") && cfg.Env == "prod" {
		return nil, fmt.Errorf("PM_NOTIFY_WEBHOOK_URL must use https in prod")
	}

	cfg.NotifyTimeoutMS, err = getEnvIntOrDefault("PM_NOTIFY_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.NotifyTimeoutMS <= 0 || cfg.NotifyTimeoutMS > 30000 {
		return nil, fmt.Errorf("PM_NOTIFY_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.NotifyTimeoutMS)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// InvitationLink builds the public acceptance URL for an invitation token.
func (c *Config) InvitationLink(token string) string {
	return c.BaseURL + "/invitations/" + token
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	webhook := ""
	if c.NotifyWebhookURL != "" {
		webhook = "[SET]"
	}
	return map[string]string{
		"PM_ENV":                   c.Env,
		"PM_HTTP_ADDR":             c.HTTPAddr,
		"PM_BASE_URL":              c.BaseURL,
		"PM_APP_NAME":              c.AppName,
		"PM_DB_DSN":                redactDSN(c.DBDSN),
		"PM_JWT_SECRET":            "[REDACTED]",
		"PM_LOG_LEVEL":             c.LogLevel,
		"PM_RATE_LIMIT_RPM":        strconv.Itoa(c.RateLimitRPM),
		"PM_SESSION_DAYS":          strconv.Itoa(c.SessionDays),
		"PM_INVITE_EXPIRY_DAYS":    strconv.Itoa(c.InviteExpiryDays),
		"PM_INVITE_RETENTION_DAYS": strconv.Itoa(c.InviteRetentionDays),
		"PM_NOTIFY_WEBHOOK_URL":    webhook,
		"PM_NOTIFY_TIMEOUT_MS":     strconv.Itoa(c.NotifyTimeoutMS),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
