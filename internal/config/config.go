package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string     `json:"serverAddress"`
	PublicBaseURL string     `json:"publicBaseUrl"`
	DatabasePath  string     `json:"databasePath"`
	DatabaseURL   string     `json:"databaseUrl"`
	LogLevel      string     `json:"logLevel"`
	Catalog       Catalog    `json:"catalog"`
	SMTP          SMTP       `json:"smtp"`
	Reconciler    Reconciler `json:"reconciler"`
	Sessions      Sessions   `json:"sessions"`
	Security      Security   `json:"security"`
	Telemetry     Telemetry  `json:"telemetry"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Catalog configures the external content catalog client
type Catalog struct {
	BaseURL        string   `json:"baseUrl"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	ClientID       string   `json:"clientId"`
	ClientSecret   string   `json:"clientSecret"`
	TokenURL       string   `json:"tokenUrl"`
	Scopes         []string `json:"scopes"`
}

// Timeout returns the per-request catalog timeout
func (c Catalog) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// UsesOAuth reports whether client-credentials auth is configured
func (c Catalog) UsesOAuth() bool {
	return c.ClientID != "" && c.TokenURL != ""
}

// SMTP configures outbound mail. An empty host disables delivery.
type SMTP struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	FromName string `json:"fromName"`
	UseTLS   bool   `json:"useTls"`
}

// Enabled reports whether mail delivery is configured
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Reconciler configures the edit reconciliation job
type Reconciler struct {
	Enabled              bool   `json:"enabled"`
	AutoStart            bool   `json:"autoStart"`
	IntervalMinutes      int    `json:"intervalMinutes"`
	IdleThresholdMinutes int    `json:"idleThresholdMinutes"`
	EditMarker           string `json:"editMarker"`
	LeaseTTLMinutes      int    `json:"leaseTtlMinutes"`
	AlbumTimeoutSeconds  int    `json:"albumTimeoutSeconds"`
	SessionRetentionDays int    `json:"sessionRetentionDays"`
}

func (r Reconciler) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

func (r Reconciler) IdleThreshold() time.Duration {
	return time.Duration(r.IdleThresholdMinutes) * time.Minute
}

func (r Reconciler) LeaseTTL() time.Duration {
	return time.Duration(r.LeaseTTLMinutes) * time.Minute
}

func (r Reconciler) AlbumTimeout() time.Duration {
	return time.Duration(r.AlbumTimeoutSeconds) * time.Second
}

func (r Reconciler) SessionRetention() time.Duration {
	return time.Duration(r.SessionRetentionDays) * 24 * time.Hour
}

// Sessions configures magic-link sessions
type Sessions struct {
	ExpiryDays int `json:"expiryDays"`
}

// Lifetime returns the session expiry horizon. Zero means non-expiring.
func (s Sessions) Lifetime() time.Duration {
	return time.Duration(s.ExpiryDays) * 24 * time.Hour
}

// Security configuration
type Security struct {
	AdminAPIKey     string   `json:"adminApiKey"`
	AdminAPIKeyHash string   `json:"adminApiKeyHash"`
	APIKeyHeader    string   `json:"apiKeyHeader"`
	AllowedOrigins  []string `json:"allowedOrigins"`
}

// Telemetry configuration
type Telemetry struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlpEndpoint"`
	Environment  string `json:"environment"`
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		PublicBaseURL: "http://localhost:5000",
		DatabasePath:  "proofing.db",
		LogLevel:      "info",
		Catalog: Catalog{
			BaseURL:        "http://localhost:8080/api",
			TimeoutSeconds: 15,
		},
		SMTP: SMTP{
			Port:     587,
			FromName: "Proofing",
			UseTLS:   true,
		},
		Reconciler: Reconciler{
			Enabled:              true,
			AutoStart:            true,
			IntervalMinutes:      10,
			IdleThresholdMinutes: 30,
			EditMarker:           "-Edit",
			LeaseTTLMinutes:      15,
			AlbumTimeoutSeconds:  60,
			SessionRetentionDays: 30,
		},
		Sessions: Sessions{
			ExpiryDays: 30,
		},
		Security: Security{
			APIKeyHeader: "X-API-Key",
		},
		Telemetry: Telemetry{
			Enabled: false,
		},
	}
}

// Load loads configuration from .env, the config file and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ServerAddress, "SERVER_ADDRESS")
	setString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setString(&cfg.Catalog.BaseURL, "CATALOG_BASE_URL")
	setInt(&cfg.Catalog.TimeoutSeconds, "CATALOG_TIMEOUT_SECONDS")
	setString(&cfg.Catalog.ClientID, "CATALOG_CLIENT_ID")
	setString(&cfg.Catalog.ClientSecret, "CATALOG_CLIENT_SECRET")
	setString(&cfg.Catalog.TokenURL, "CATALOG_TOKEN_URL")
	if scopes := os.Getenv("CATALOG_SCOPES"); scopes != "" {
		cfg.Catalog.Scopes = splitList(scopes)
	}

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	setString(&cfg.SMTP.FromName, "SMTP_FROM_NAME")
	setBool(&cfg.SMTP.UseTLS, "SMTP_USE_TLS")

	setBool(&cfg.Reconciler.Enabled, "RECONCILER_ENABLED")
	setBool(&cfg.Reconciler.AutoStart, "RECONCILER_AUTO_START")
	setInt(&cfg.Reconciler.IntervalMinutes, "RECONCILER_INTERVAL_MINUTES")
	setInt(&cfg.Reconciler.IdleThresholdMinutes, "RECONCILER_IDLE_MINUTES")
	setString(&cfg.Reconciler.EditMarker, "RECONCILER_EDIT_MARKER")
	setInt(&cfg.Reconciler.LeaseTTLMinutes, "RECONCILER_LEASE_TTL_MINUTES")
	setInt(&cfg.Reconciler.AlbumTimeoutSeconds, "RECONCILER_ALBUM_TIMEOUT_SECONDS")
	setInt(&cfg.Reconciler.SessionRetentionDays, "SESSION_RETENTION_DAYS")

	setInt(&cfg.Sessions.ExpiryDays, "SESSION_EXPIRY_DAYS")

	setString(&cfg.Security.AdminAPIKey, "ADMIN_API_KEY")
	setString(&cfg.Security.AdminAPIKeyHash, "ADMIN_API_KEY_HASH")
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.Security.AllowedOrigins = splitList(origins)
	}

	setBool(&cfg.Telemetry.Enabled, "OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.Environment, "ENVIRONMENT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt ignores values that are not positive integers; zero is only
// reachable through the config file.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
