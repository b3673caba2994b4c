package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/config"
	"chatdocs.app/internal/obs"
)

func testLogger() func() {
	return obs.SetLogger(obs.NewLogger(io.Discard, "error"))
}

func TestBuildAppRefusesMissingSecretInProduction(t *testing.T) {
	defer testLogger()()
	cfg := config.Default()
	_, err := buildApp(context.Background(), cfg, obs.Logger())
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestBuildAppServesGate(t *testing.T) {
	defer testLogger()()
	cfg := config.Default()
	cfg.Env = config.EnvDevelopment
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.DSN = filepath.Join(t.TempDir(), "web.db")

	a, err := buildApp(context.Background(), cfg, obs.Logger())
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()
	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := client.Get(srv.URL + "/documents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login?redirect="))

	resp, err = client.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), version)
}
