package credential_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/credential"
	"feedbackpipe/internal/services"
)

func serviceAccountJSON(t *testing.T, tokenURL string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "uploader@example.iam.gserviceaccount.com",
		"private_key_id": "key-1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"token_uri":      tokenURL,
	})
	if err != nil {
		t.Fatalf("marshal service account: %v", err)
	}
	return data
}

func TestStaticTokenTakesPrecedence(t *testing.T) {
	src, err := credential.FromConfig(context.Background(), config.Credentials{
		AccessToken:        "token-abc",
		ServiceAccountFile: "/does/not/exist.json",
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	tok, err := src.Token()
	if err != nil || tok.AccessToken != "token-abc" || tok.Type() != "Bearer" {
		t.Fatalf("unexpected token %+v, %v", tok, err)
	}
}

func TestMissingCredentialsIsConfigurationError(t *testing.T) {
	_, err := credential.FromConfig(context.Background(), config.Credentials{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestServiceAccountExchangesAssertion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("unexpected grant type %q", got)
		}
		if strings.Count(r.Form.Get("assertion"), ".") != 2 {
			t.Errorf("assertion is not a JWT: %q", r.Form.Get("assertion"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"sa-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, serviceAccountJSON(t, server.URL), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	cfg := config.Credentials{ServiceAccountFile: path}

	src, err := credential.FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	for range 2 {
		tok, err := src.Token()
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok.AccessToken != "sa-token" {
			t.Fatalf("unexpected access token %q", tok.AccessToken)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected the token to be reused, got %d exchanges", calls.Load())
	}
	if got := credential.Describe(cfg); got != "service account uploader@example.iam.gserviceaccount.com" {
		t.Fatalf("Describe = %q", got)
	}
}

func TestInvalidServiceAccount(t *testing.T) {
	_, err := credential.FromServiceAccount(context.Background(), []byte(`{"type":"authorized_user"}`), nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDescribeNeverPrintsToken(t *testing.T) {
	if got := credential.Describe(config.Credentials{AccessToken: "secret"}); strings.Contains(got, "secret") {
		t.Fatalf("Describe leaked token: %q", got)
	}
	if got := credential.Describe(config.Credentials{}); got != "none" {
		t.Fatalf("Describe = %q", got)
	}
}
