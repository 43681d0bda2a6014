package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keepmind9/chatbridge/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with fresh flag state
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	validateConfigFile, validateShow, validateJSON = "", false, false
	versionJSON, statusJSON = false, false
	statusAddr = "http://localhost:8080"
	webhookConfigFile, webhookURL = "config.yaml", ""
	configFile, serveValidate = "config.yaml", false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
bots:
  telegram:
    enabled: true
    token: "123:abc"
`

func TestRootCommand_HasSubcommands(t *testing.T) {
	assert.Equal(t, "chatbridge", rootCmd.Use)

	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, expected := range []string{"serve", "validate", "status", "webhook", "version"} {
		assert.True(t, names[expected], "missing subcommand: %s", expected)
	}
}

func TestCommandFlags(t *testing.T) {
	assert.NotNil(t, validateCmd.Flags().Lookup("config"))
	assert.NotNil(t, validateCmd.Flags().Lookup("show"))
	assert.NotNil(t, validateCmd.Flags().Lookup("json"))
	assert.NotNil(t, serveCmd.Flags().Lookup("validate"))
	assert.NotNil(t, webhookCmd.Flags().Lookup("url"))
	assert.Equal(t, "c", serveCmd.Flags().Lookup("config").Shorthand)
}

func TestVersion_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v.Version)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatbridge version information")
}

func TestValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	out, err := execute(t, "validate", "-c", path, "--json")
	require.NoError(t, err)

	var result ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"telegram"}, result.Platforms)
	assert.Equal(t, "echo", result.Pipeline)
	assert.Equal(t, "memory", result.Store)
	assert.Contains(t, result.Warnings, "Whitelist is disabled - this is a security risk")
}

func TestValidate_Show(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	out, err := execute(t, "validate", "-c", path, "--show")
	require.NoError(t, err)
	assert.Contains(t, out, "telegram: enabled")
	assert.Contains(t, out, "✓ Configuration is valid")
}

func TestValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "bots: {}\n")

	out, err := execute(t, "validate", "-c", path, "--json")
	require.Error(t, err)

	var result ValidationResult
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(out, "\n", 2)[0]), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "at least one bot")
}

func TestServe_ValidateOnly(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	out, err := execute(t, "serve", "-c", path, "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestWebhook_Telegram(t *testing.T) {
	var gotURL, gotSecret string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/bot123:abc/setWebhook", r.URL.Path)
		gotURL = r.FormValue("url")
		gotSecret = r.FormValue("secret_token")
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer api.Close()

	path := writeConfig(t, `
server:
  public_url: "https://bridge.example.com/"
bots:
  telegram:
    enabled: true
    token: "123:abc"
    secret_token: "s3cret"
    api_base_url: "`+api.URL+`"
`)

	out, err := execute(t, "webhook", "telegram", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "telegram webhook set")
	assert.Equal(t, "https://bridge.example.com/webhook/telegram", gotURL)
	assert.Equal(t, "s3cret", gotSecret)
}

func TestWebhook_Unsupported(t *testing.T) {
	path := writeConfig(t, `
bots:
  dingtalk:
    enabled: true
`)
	_, err := execute(t, "webhook", "dingtalk", "-c", path, "--url", "https://x/webhook/dingtalk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform console")

	_, err = execute(t, "webhook", "dingtalk", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url")
}

func TestStatus(t *testing.T) {
	report := core.HealthReport{Status: "ok", Platforms: map[string]string{"telegram": "ok"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()

	out, err := execute(t, "status", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ telegram: ok")

	report = core.HealthReport{Status: "degraded", Platforms: map[string]string{"discord": "401"}}
	_, err = execute(t, "status", "--addr", srv.URL)
	assert.ErrorContains(t, err, "degraded")
}
