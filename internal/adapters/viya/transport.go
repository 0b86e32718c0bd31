package viya

import (
	"crypto/tls"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// NewHTTPClient builds the client used for every remote call. TLS verification
// follows cfg.TLSVerify; the reference deployment runs with it off.
func NewHTTPClient(cfg domain.ViyaConfig) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: !cfg.TLSVerify, //nolint:gosec // operator controlled
		MinVersion:         tls.VersionTLS12,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(base),
	}
}
