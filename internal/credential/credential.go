// Package credential turns the [credentials] config section into the bearer
// token source the upload engine and Drive verifier consume.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/services"
)

// DefaultScope limits service accounts to files this application created.
const DefaultScope = "https://www.googleapis.com/auth/drive.file"

// FromConfig returns a token source. A static access token takes precedence
// over a service account file.
func FromConfig(ctx context.Context, cfg config.Credentials) (oauth2.TokenSource, error) {
	if token := strings.TrimSpace(cfg.AccessToken); token != "" {
		return Static(token), nil
	}
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "credential", "resolve", "no access token or service account configured", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "credential", "read service account", path, err)
	}
	return FromServiceAccount(ctx, data, cfg.Scopes)
}

// Static wraps a fixed bearer token.
func Static(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// FromServiceAccount builds a self-refreshing source from service account
// key JSON. Tokens are fetched lazily on first use.
func FromServiceAccount(ctx context.Context, keyJSON []byte, scopes []string) (oauth2.TokenSource, error) {
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	conf, err := google.JWTConfigFromJSON(keyJSON, scopes...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "credential", "parse service account", "", err)
	}
	return oauth2.ReuseTokenSource(nil, conf.TokenSource(ctx)), nil
}

// Describe renders the configured credential for diagnostics without
// exposing secrets.
func Describe(cfg config.Credentials) string {
	if strings.TrimSpace(cfg.AccessToken) != "" {
		return "static access token"
	}
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if path == "" {
		return "none"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("service account %s (unreadable)", path)
	}
	var key struct {
		ClientEmail string `json:"client_email"`
	}
	if json.Unmarshal(data, &key) != nil || key.ClientEmail == "" {
		return fmt.Sprintf("service account %s (invalid)", path)
	}
	return "service account " + key.ClientEmail
}
