package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort int
	AppEnv     string
	LogLevel   string

	DatabaseDriver string // "sqlite" or "pgx"
	DatabaseURL    string

	SessionSecret string
	JWTSecret     string

	StaticDir          string // Serves files/cheat_sheet.pdf
	UploadDir          string
	CorsAllowedOrigins []string

	Mail   MailConfig
	Notify NotifyConfig

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
}

// MailConfig describes the delegated mail API and its OAuth client.
type MailConfig struct {
	Enabled      bool
	Recipient    string
	ClientID     string
	ClientSecret string
	TenantID     string
	RefreshToken string
	TokenURL     string
	APIBase      string
	WarmupSpec   string
}

// NotifyConfig tunes the background notification workers.
type NotifyConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Timeout     time.Duration
}

// IsProduction reports whether cookies should be marked Secure.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load loads configuration from environment variables (and a .env file, when present)
// or sets defaults. Missing secrets are an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	mailEnabled, err := strconv.ParseBool(getEnv("MAIL_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAIL_ENABLED: %w", err)
	}

	workers, err := getEnvInt("NOTIFY_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	queueSize, err := getEnvInt("NOTIFY_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	attempts, err := getEnvInt("NOTIFY_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	timeout, err := time.ParseDuration(getEnv("NOTIFY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_TIMEOUT: %w", err)
	}

	cfg := &Config{
		ServerPort:         port,
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseDriver:     getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL:        getEnv("DATABASE_URL", "./telemed.db"),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		StaticDir:          getEnv("STATIC_DIR", "./static"),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		CorsAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		Mail: MailConfig{
			Enabled:      mailEnabled,
			Recipient:    getEnv("MY_EMAIL", ""),
			ClientID:     getEnv("CLIENT_365_ID", ""),
			ClientSecret: getEnv("CLIENT_365_SECRET", ""),
			TenantID:     getEnv("TENANT_365_ID", ""),
			RefreshToken: getEnv("REFRESH_TOKEN", ""),
			TokenURL:     getEnv("MAIL_TOKEN_URL", ""),
			APIBase:      getEnv("MAIL_API_BASE", "https://graph.microsoft.com/v1.0"),
			WarmupSpec:   getEnv("MAIL_TOKEN_WARMUP", "@every 45m"),
		},
		Notify: NotifyConfig{
			Workers:     workers,
			QueueSize:   queueSize,
			MaxAttempts: attempts,
			Timeout:     timeout,
		},
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		KafkaBrokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "telemed-notifications"),
	}

	if cfg.Mail.TokenURL == "" && cfg.Mail.TenantID != "" {
		cfg.Mail.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Mail.TenantID)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings. The command line tools use it so
// they run without the server's secrets.
func LoadDatabase() (driver, url string, err error) {
	_ = godotenv.Load()
	driver = getEnv("DB_DRIVER", "sqlite")
	url = getEnv("DATABASE_URL", "./telemed.db")
	switch driver {
	case "sqlite", "pgx":
		return driver, url, nil
	default:
		return "", "", fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func (c *Config) validate() error {
	var missing []string
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Mail.Enabled {
		required := []struct{ key, value string }{
			{"MY_EMAIL", c.Mail.Recipient},
			{"CLIENT_365_ID", c.Mail.ClientID},
			{"CLIENT_365_SECRET", c.Mail.ClientSecret},
			{"TENANT_365_ID", c.Mail.TenantID},
			{"REFRESH_TOKEN", c.Mail.RefreshToken},
		}
		for _, r := range required {
			if r.value == "" {
				missing = append(missing, r.key)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	switch c.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DatabaseDriver)
	}
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
