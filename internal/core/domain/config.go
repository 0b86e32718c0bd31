package domain

import "time"

// AppConfig is the fully resolved process configuration.
type AppConfig struct {
	Viya   ViyaConfig   `yaml:"viya" json:"viya"`
	Poll   PollConfig   `yaml:"poll" json:"poll"`
	Server ServerConfig `yaml:"server" json:"server"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Trace  TraceConfig  `yaml:"trace" json:"trace"`

	// HistoryLimit bounds the per-session context history.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`
	// MaxWatches bounds concurrent background poll loops.
	MaxWatches int64 `yaml:"max_watches" json:"max_watches"`
}

// ViyaConfig configures the remote compute gateway.
type ViyaConfig struct {
	ServerURL   string        `yaml:"server_url" json:"server_url"`
	ServerFile  string        `yaml:"server_file" json:"server_file"`
	Token       string        `yaml:"-" json:"-"`
	TokenFile   string        `yaml:"token_file" json:"token_file"`
	ContextName string        `yaml:"context_name" json:"context_name"`
	TLSVerify   bool          `yaml:"tls_verify" json:"tls_verify"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited
}

// PollConfig bounds the job state machine.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval" json:"interval"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
}

type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TraceConfig selects where spans go. Exporter is "none" or "otlp"; an empty
// Endpoint leaves the OTLP exporter on its OTEL_EXPORTER_OTLP_* defaults.
type TraceConfig struct {
	Exporter    string `yaml:"exporter" json:"exporter"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	Insecure    bool   `yaml:"insecure" json:"insecure"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// DefaultConfig returns the baseline every other source overrides.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Viya: ViyaConfig{
			ServerFile:  "access_server.txt",
			TokenFile:   "access_token.txt",
			ContextName: "SAS Studio compute context",
			TLSVerify:   false,
			Timeout:     30 * time.Second,
		},
		Poll: PollConfig{
			Interval:    time.Second,
			MaxAttempts: 30,
		},
		Server: ServerConfig{
			ListenAddr:  ":8000",
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Trace: TraceConfig{
			Exporter:    "none",
			ServiceName: "viya-kernel",
		},
		HistoryLimit: 100,
		MaxWatches:   10,
	}
}
