// ABOUTME: Tests for configuration loading, env expansion, and validation.
// ABOUTME: Covers defaults, duration parsing, and required-field errors.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullConfig(t *testing.T) {
	yaml := `
server:
  http_addr: ":8080"
provider:
  api_url: "https://graph.example.com/v22.0"
  token: "provider-token"
  phone_number_id: "12345"
engine:
  url: "http://localhost:5000/ask"
  timeout: "45s"
webhook:
  verify_token: "hub-secret"
auth:
  jwt_secret: "admin-secret"
dedupe:
  inbound_window: "10m"
  reply_window: "2m"
  sweep_interval: "30s"
logging:
  level: "debug"
  format: "json"
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://graph.example.com/v22.0", cfg.Provider.APIURL)
	assert.Equal(t, "provider-token", cfg.Provider.Token)
	assert.Equal(t, "12345", cfg.Provider.PhoneNumberID)
	assert.Equal(t, "http://localhost:5000/ask", cfg.Engine.URL)
	assert.Equal(t, 45*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "hub-secret", cfg.Webhook.VerifyToken)
	assert.Equal(t, "admin-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.Dedupe.InboundWindow)
	assert.Equal(t, 2*time.Minute, cfg.Dedupe.ReplyWindow)
	assert.Equal(t, 30*time.Second, cfg.Dedupe.SweepInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParse_Defaults(t *testing.T) {
	yaml := `
server:
  http_addr: ":8080"
webhook:
  verify_token: "hub-secret"
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, DefaultInboundWindow, cfg.Dedupe.InboundWindow)
	assert.Equal(t, DefaultReplyWindow, cfg.Dedupe.ReplyWindow)
	assert.Equal(t, DefaultSweepInterval, cfg.Dedupe.SweepInterval)
	assert.Equal(t, DefaultEngineTimeout, cfg.Engine.Timeout)
	assert.Equal(t, "https://graph.facebook.com/v22.0", cfg.Provider.APIURL)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_VERIFY_TOKEN", "from-env")

	yaml := `
server:
  http_addr: ":8080"
webhook:
  verify_token: "${TEST_VERIFY_TOKEN}"
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhook.VerifyToken)
}

func TestParse_UnsetEnvBecomesEmpty(t *testing.T) {
	yaml := `
server:
  http_addr: ":8080"
webhook:
  verify_token: "${DEFINITELY_NOT_SET_ANYWHERE}"
`
	_, err := Parse([]byte(yaml))
	assert.ErrorContains(t, err, "webhook.verify_token is required")
}

func TestParse_MissingHTTPAddr(t *testing.T) {
	yaml := `
webhook:
  verify_token: "hub-secret"
`
	_, err := Parse([]byte(yaml))
	assert.ErrorContains(t, err, "server.http_addr is required")
}

func TestParse_ProviderCredentialsMustPair(t *testing.T) {
	yaml := `
server:
  http_addr: ":8080"
webhook:
  verify_token: "hub-secret"
provider:
  token: "provider-token"
`
	_, err := Parse([]byte(yaml))
	assert.ErrorContains(t, err, "must be set together")
}

func TestParse_BadDuration(t *testing.T) {
	yaml := `
server:
  http_addr: ":8080"
webhook:
  verify_token: "hub-secret"
dedupe:
  inbound_window: "fifteen minutes"
`
	_, err := Parse([]byte(yaml))
	assert.ErrorContains(t, err, "parsing inbound_window")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_addr: ":9090"
webhook:
  verify_token: "hub-secret"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.ErrorContains(t, err, "reading config file")
}
