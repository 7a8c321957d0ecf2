package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config carries service wiring. Values come from the environment first; a
// JSON config file, when given, overrides the environment and can be hot
// reloaded through Watcher.
type Config struct {
	Environment string `json:"environment"`
	HTTPAddr    string `json:"httpAddr"`
	APIToken    string `json:"apiToken"`

	DatabaseURL string `json:"databaseUrl"`
	FeedDSN     string `json:"feedDsn"`

	CalendarBaseURL string `json:"calendarBaseUrl"`
	CalendarAPIKey  string `json:"calendarApiKey"`

	BookingTermsWebhookURL   string `json:"bookingTermsWebhookUrl"`
	SessionCreatedWebhookURL string `json:"sessionCreatedWebhookUrl"`

	DebounceWindow    time.Duration `json:"-"`
	SuppressionWindow time.Duration `json:"-"`

	// JSON-friendly duration strings, applied over the typed fields.
	DebounceWindowRaw    string `json:"debounceWindow,omitempty"`
	SuppressionWindowRaw string `json:"suppressionWindow,omitempty"`
}

// FromEnv builds a Config from RMR_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Environment: strings.TrimSpace(os.Getenv("RMR_ENV")),
		HTTPAddr:    strings.TrimSpace(os.Getenv("RMR_ADDR")),
		APIToken:    strings.TrimSpace(os.Getenv("RMR_API_TOKEN")),

		DatabaseURL: strings.TrimSpace(os.Getenv("RMR_DATABASE_URL")),
		FeedDSN:     strings.TrimSpace(os.Getenv("RMR_FEED_DSN")),

		CalendarBaseURL: strings.TrimSpace(os.Getenv("RMR_CALENDAR_URL")),
		CalendarAPIKey:  strings.TrimSpace(os.Getenv("RMR_CALENDAR_API_KEY")),

		BookingTermsWebhookURL:   strings.TrimSpace(os.Getenv("RMR_BOOKING_TERMS_WEBHOOK_URL")),
		SessionCreatedWebhookURL: strings.TrimSpace(os.Getenv("RMR_SESSION_CREATED_WEBHOOK_URL")),

		DebounceWindow:    durationEnv("RMR_DEBOUNCE_WINDOW", 0),
		SuppressionWindow: durationEnv("RMR_SUPPRESSION_WINDOW", 0),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.FeedDSN == "" {
		cfg.FeedDSN = cfg.DatabaseURL
	}
	return cfg
}

// Load builds a Config from the environment, then overlays the JSON file at
// path when path is non-empty.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var overlay Config
	if err := json.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	applyNonEmpty(&c.Environment, overlay.Environment)
	applyNonEmpty(&c.HTTPAddr, overlay.HTTPAddr)
	applyNonEmpty(&c.APIToken, overlay.APIToken)
	applyNonEmpty(&c.DatabaseURL, overlay.DatabaseURL)
	applyNonEmpty(&c.FeedDSN, overlay.FeedDSN)
	applyNonEmpty(&c.CalendarBaseURL, overlay.CalendarBaseURL)
	applyNonEmpty(&c.CalendarAPIKey, overlay.CalendarAPIKey)
	applyNonEmpty(&c.BookingTermsWebhookURL, overlay.BookingTermsWebhookURL)
	applyNonEmpty(&c.SessionCreatedWebhookURL, overlay.SessionCreatedWebhookURL)
	if overlay.DebounceWindowRaw != "" {
		parsed, err := time.ParseDuration(overlay.DebounceWindowRaw)
		if err != nil {
			return fmt.Errorf("parse debounceWindow: %w", err)
		}
		c.DebounceWindow = parsed
	}
	if overlay.SuppressionWindowRaw != "" {
		parsed, err := time.ParseDuration(overlay.SuppressionWindowRaw)
		if err != nil {
			return fmt.Errorf("parse suppressionWindow: %w", err)
		}
		c.SuppressionWindow = parsed
	}
	if c.FeedDSN == "" {
		c.FeedDSN = c.DatabaseURL
	}
	return nil
}

func applyNonEmpty(target *string, value string) {
	if strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
