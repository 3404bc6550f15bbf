// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":4000"
session:
  credentials_path: "data/credentials.db"
  dial_retry_wait: "5s"
network:
  mode: "sim"
send:
  timeout: "30s"
assets:
  pdf_path: "assets/menu.pdf"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.HTTPAddr)
	assert.Equal(t, "data/credentials.db", cfg.Session.CredentialsPath)
	assert.Equal(t, 5*time.Second, cfg.Session.DialRetryWait)
	assert.Equal(t, 30*time.Second, cfg.Send.Timeout)
	assert.Equal(t, "assets/menu.pdf", cfg.Assets.PDFPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
session:
  credentials_path: "data/credentials.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultSendTimeout, cfg.Send.Timeout)
	assert.Equal(t, DefaultDialRetryWait, cfg.Session.DialRetryWait)
	assert.Equal(t, DefaultPDFPath, cfg.Assets.PDFPath)
	assert.Equal(t, "sim", cfg.Network.Mode)
}

func TestLoadPortEnvFallback(t *testing.T) {
	t.Setenv("PORT", "8123")

	path := writeConfig(t, `
session:
  credentials_path: "data/credentials.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8123", cfg.Server.HTTPAddr)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("CREDS_DIR", "/var/lib/tars")

	path := writeConfig(t, `
session:
  credentials_path: "${CREDS_DIR}/credentials.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tars/credentials.db", cfg.Session.CredentialsPath)
}

func TestLoadRejectsMissingCredentialsPath(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":3000"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials_path")
}

func TestLoadRejectsUnknownNetworkMode(t *testing.T) {
	path := writeConfig(t, `
session:
  credentials_path: "data/credentials.db"
network:
  mode: "carrier-pigeon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.mode")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
session:
  credentials_path: "data/credentials.db"
send:
  timeout: "soonish"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send.timeout")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
