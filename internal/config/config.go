// Package config resolves the process configuration. Sources are applied in
// order of increasing precedence: built-in defaults, an optional YAML file
// named by VIYA_CONFIG_FILE, then individual environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load resolves configuration from the real process environment.
func Load() (*domain.AppConfig, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom resolves configuration using lookup for every environment read.
func LoadFrom(lookup LookupFunc) (*domain.AppConfig, error) {
	cfg := domain.DefaultConfig()

	if path, ok := lookup("VIYA_CONFIG_FILE"); ok && path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *domain.AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config file %s: %v", domain.ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("%w: parse config file %s: %v", domain.ErrConfiguration, path, err)
	}
	return nil
}

func applyEnv(cfg *domain.AppConfig, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("SAS_SERVER", &cfg.Viya.ServerURL)
	str("SAS_SERVER_FILE", &cfg.Viya.ServerFile)
	str("SAS_ACCESS_TOKEN", &cfg.Viya.Token)
	str("SAS_ACCESS_TOKEN_FILE", &cfg.Viya.TokenFile)
	str("VIYA_CONTEXT_NAME", &cfg.Viya.ContextName)
	str("VIYA_LISTEN_ADDR", &cfg.Server.ListenAddr)
	str("VIYA_LOG_LEVEL", &cfg.Log.Level)
	str("VIYA_LOG_FORMAT", &cfg.Log.Format)
	str("VIYA_TRACE_EXPORTER", &cfg.Trace.Exporter)
	str("VIYA_TRACE_ENDPOINT", &cfg.Trace.Endpoint)
	str("VIYA_SERVICE_NAME", &cfg.Trace.ServiceName)

	if v, ok := lookup("VIYA_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	var err error
	if v, ok := lookup("VIYA_TLS_VERIFY"); ok && v != "" {
		if cfg.Viya.TLSVerify, err = strconv.ParseBool(v); err != nil {
			return envError("VIYA_TLS_VERIFY", v, err)
		}
	}
	if v, ok := lookup("VIYA_TRACE_INSECURE"); ok && v != "" {
		if cfg.Trace.Insecure, err = strconv.ParseBool(v); err != nil {
			return envError("VIYA_TRACE_INSECURE", v, err)
		}
	}
	if v, ok := lookup("VIYA_HTTP_TIMEOUT"); ok && v != "" {
		if cfg.Viya.Timeout, err = parseDuration(v); err != nil {
			return envError("VIYA_HTTP_TIMEOUT", v, err)
		}
	}
	if v, ok := lookup("VIYA_RATE_LIMIT"); ok && v != "" {
		if cfg.Viya.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return envError("VIYA_RATE_LIMIT", v, err)
		}
	}
	if v, ok := lookup("VIYA_POLL_INTERVAL"); ok && v != "" {
		if cfg.Poll.Interval, err = parseDuration(v); err != nil {
			return envError("VIYA_POLL_INTERVAL", v, err)
		}
	}
	if v, ok := lookup("VIYA_POLL_MAX_ATTEMPTS"); ok && v != "" {
		if cfg.Poll.MaxAttempts, err = strconv.Atoi(v); err != nil {
			return envError("VIYA_POLL_MAX_ATTEMPTS", v, err)
		}
	}
	if v, ok := lookup("VIYA_HISTORY_LIMIT"); ok && v != "" {
		if cfg.HistoryLimit, err = strconv.Atoi(v); err != nil {
			return envError("VIYA_HISTORY_LIMIT", v, err)
		}
	}
	if v, ok := lookup("VIYA_MAX_WATCHES"); ok && v != "" {
		if cfg.MaxWatches, err = strconv.ParseInt(v, 10, 64); err != nil {
			return envError("VIYA_MAX_WATCHES", v, err)
		}
	}
	return nil
}

// Validate rejects values the services cannot run with.
func Validate(cfg *domain.AppConfig) error {
	switch {
	case cfg.Viya.ContextName == "":
		return fmt.Errorf("%w: compute context name is empty", domain.ErrConfiguration)
	case cfg.Viya.RateLimit < 0:
		return fmt.Errorf("%w: rate limit must not be negative", domain.ErrConfiguration)
	case cfg.Poll.MaxAttempts < 1:
		return fmt.Errorf("%w: poll max attempts must be at least 1", domain.ErrConfiguration)
	case cfg.Poll.Interval < 0:
		return fmt.Errorf("%w: poll interval must not be negative", domain.ErrConfiguration)
	case cfg.HistoryLimit < 1:
		return fmt.Errorf("%w: history limit must be at least 1", domain.ErrConfiguration)
	case cfg.MaxWatches < 1:
		return fmt.Errorf("%w: max watches must be at least 1", domain.ErrConfiguration)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", domain.ErrConfiguration, cfg.Log.Format)
	}

	switch strings.ToLower(cfg.Trace.Exporter) {
	case "", "none", "otlp":
	default:
		return fmt.Errorf("%w: unknown trace exporter %q", domain.ErrConfiguration, cfg.Trace.Exporter)
	}
	return nil
}

// parseDuration accepts Go duration strings and bare seconds ("2", "0.5").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envError(key, value string, err error) error {
	return fmt.Errorf("%w: %s=%q: %v", domain.ErrConfiguration, key, value, err)
}
