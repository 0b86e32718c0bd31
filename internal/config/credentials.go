package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/ports"
)

// StaticCredentials holds a bearer token and server URL resolved once at
// startup. There is no refresh; a rotated token needs a restart.
type StaticCredentials struct {
	serverURL string
	token     string
}

var _ ports.CredentialProvider = (*StaticCredentials)(nil)

// NewStaticCredentials prefers inline values and falls back to the files named
// in cfg. A missing or empty value is a configuration error.
func NewStaticCredentials(cfg domain.ViyaConfig) (*StaticCredentials, error) {
	server, err := valueOrFile(cfg.ServerURL, cfg.ServerFile, "server URL")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: server URL %q is not an http(s) URL", domain.ErrConfiguration, server)
	}

	token, err := valueOrFile(cfg.Token, cfg.TokenFile, "access token")
	if err != nil {
		return nil, err
	}

	return &StaticCredentials{
		serverURL: strings.TrimRight(server, "/"),
		token:     token,
	}, nil
}

func (c *StaticCredentials) Token(ctx context.Context) (string, error) {
	return c.token, nil
}

func (c *StaticCredentials) ServerURL() string {
	return c.serverURL
}

// String keeps the token out of logs and fmt output.
func (c *StaticCredentials) String() string {
	return fmt.Sprintf("server=%s token=%s", c.serverURL, MaskSecret(c.token))
}

func valueOrFile(value, path, what string) (string, error) {
	if v := strings.TrimSpace(value); v != "" {
		return v, nil
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s not set", domain.ErrConfiguration, what)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s not set and %s does not exist", domain.ErrConfiguration, what, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", domain.ErrConfiguration, path, err)
	}

	v := strings.TrimSpace(string(raw))
	if v == "" {
		return "", fmt.Errorf("%w: %s file %s is empty", domain.ErrConfiguration, what, path)
	}
	return v, nil
}

// MaskSecret returns a masked version safe for display: "****abcd"
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
