package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envAppFile          = "HOSPITAL_APP_FILE"
	envProbeTimeout     = "HOSPITAL_PROBE_TIMEOUT"
	envHealthPort       = "HOSPITAL_HEALTH_PORT"
	envMetricsPort      = "HOSPITAL_METRICS_PORT"
	envSlackWebhookURL  = "HOSPITAL_SLACK_WEBHOOK_URL"
	envNotifyWebhookURL = "HOSPITAL_NOTIFY_WEBHOOK_URL"
	envLogLevel         = "HOSPITAL_LOG_LEVEL"
)

const defaultProbeTimeout = 5 * time.Second

// Config describes runtime configuration loaded from the environment.
type Config struct {
	AppFile          string
	ProbeTimeout     time.Duration
	HealthPort       int
	MetricsPort      int
	SlackWebhookURL  string
	NotifyWebhookURL string
	LogLevel         string
}

// Load reads configuration from environment variables and a local .env file
// if present. Existing environment variables take precedence over .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ProbeTimeout: defaultProbeTimeout,
	}

	if value, ok := lookupTrimmed(envAppFile); ok {
		cfg.AppFile = value
	}

	if value, ok := lookupTrimmed(envProbeTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envProbeTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envProbeTimeout)
		}
		cfg.ProbeTimeout = timeout
	}

	var err error
	if cfg.HealthPort, err = lookupPort(envHealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = lookupPort(envMetricsPort); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envNotifyWebhookURL); ok {
		cfg.NotifyWebhookURL = value
	}
	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}

	if cfg.AppFile == "" {
		return Config{}, errors.New("HOSPITAL_APP_FILE is required")
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.NotifyWebhookURL != "" {
		if err := validateURL(cfg.NotifyWebhookURL, envNotifyWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func lookupPort(key string) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be a valid port", key)
	}
	return port, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
