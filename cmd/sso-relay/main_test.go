package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/sso-relay/internal/config"
	"github.com/marcogenualdo/sso-relay/internal/flow"
	"github.com/marcogenualdo/sso-relay/internal/host"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeError, getExitCode(fmt.Errorf("boom")))
	assert.Equal(t, ExitCodeNotHandled, getExitCode(&notHandledError{}))
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(&flow.ServerError{Code: "access_denied"}))
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(fmt.Errorf("login: %w", flow.ErrTimeout)))
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(flow.ErrCancelled))
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	assert.Equal(t, "sso-relay version "+version+"\n", buf.String())
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"login", "logout", "revoke", "deliver", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.False(t, logger.Enabled(t.Context(), -4))
	assert.True(t, logger.Enabled(t.Context(), 4))
}

// writeConfig points the loopback listener at server.
func writeConfig(t *testing.T, server *httptest.Server) string {
	t.Helper()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	hostname, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	data := fmt.Sprintf(`server:
  host: %s
  port: %s
flow:
  redirect_url: com.example.app:/oauth2redirect
provider:
  type: oidc
  oidc:
    issuer: https://login.example.com
    client_id: sso-relay
`, hostname, port)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestDeliverCmd(t *testing.T) {
	for _, handled := range []bool{true, false} {
		t.Run(fmt.Sprint(handled), func(t *testing.T) {
			uris := make(chan string, 1)
			primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req host.ForwardRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				uris <- req.URI
				_ = json.NewEncoder(w).Encode(&host.ForwardResponse{Handled: handled})
			}))
			defer primary.Close()

			out, err := runRoot(t, "deliver", "-c", writeConfig(t, primary), "com.example.app:/oauth2redirect?state=abc&code=x")
			assert.Equal(t, "com.example.app:/oauth2redirect?state=abc&code=x", <-uris)

			if handled {
				require.NoError(t, err)
				assert.Contains(t, out, "redirect delivered")
			} else {
				var notHandled *notHandledError
				assert.ErrorAs(t, err, &notHandled)
			}
		})
	}
}

func TestDeliverCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  type: oidc\n  oidc: {}\n"), 0o600))

	_, err := runRoot(t, "deliver", "-c", path, "com.example.app:/oauth2redirect")
	assert.ErrorContains(t, err, "invalid config")
}
