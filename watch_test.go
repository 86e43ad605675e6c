package certpin

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avialdo/certpin/internal/observability"
)

func writeWatchConfig(t *testing.T, path, pinPath string) {
	t.Helper()
	content := `
target:
  hostname: 127.0.0.1
pin:
  certificateFile: ` + pinPath + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// startPinnedServer runs an HTTPS server with the PKI's certificate and no
// client-certificate requirement.
func startPinnedServer(t *testing.T, pki testPKI) *httptest.Server {
	t.Helper()

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pinned") //nolint:errcheck
	}))
	server.TLS = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pki.serverCertificate(t)},
	}
	server.StartTLS()
	t.Cleanup(server.Close)
	return server
}

func TestWatch_InvalidInitialConfig(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"),
		WithLogger(observability.NopLogger()),
	)
	require.Error(t, err)
}

func TestWatch_RebuildsOnPinRotation(t *testing.T) {
	oldPKI := newTestPKI(t)
	newPKI := newTestPKI(t)
	oldServer := startPinnedServer(t, oldPKI)
	newServer := startPinnedServer(t, newPKI)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "certpin.yaml")
	pinPath := filepath.Join(dir, "root.der")
	require.NoError(t, os.WriteFile(pinPath, oldPKI.caCert.Raw, 0o600))
	writeWatchConfig(t, configPath, pinPath)

	reloader, err := Watch(context.Background(), configPath,
		WithLogger(observability.NopLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { reloader.Stop() }) //nolint:errcheck

	initial := reloader.Client()
	resp, err := reloader.HTTPClient().Get(oldServer.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Rotate the pinned certificate on disk.
	require.NoError(t, os.WriteFile(pinPath, newPKI.caCert.Raw, 0o600))

	require.Eventually(t, func() bool {
		return reloader.Client() != initial
	}, 5*time.Second, 50*time.Millisecond, "client was not rebuilt after pin rotation")

	ctx := context.Background()
	conn, err := reloader.Client().DialTLS(ctx, "tcp", newServer.Listener.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// The old server no longer matches the rotated pin.
	_, err = reloader.Client().DialTLS(ctx, "tcp", oldServer.Listener.Addr().String())
	assert.Error(t, err)
}

func TestWatch_FailedRebuildKeepsClient(t *testing.T) {
	pki := newTestPKI(t)
	server := startPinnedServer(t, pki)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "certpin.yaml")
	pinPath := filepath.Join(dir, "root.der")
	require.NoError(t, os.WriteFile(pinPath, pki.caCert.Raw, 0o600))
	writeWatchConfig(t, configPath, pinPath)

	reloader, err := Watch(context.Background(), configPath,
		WithLogger(observability.NopLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { reloader.Stop() }) //nolint:errcheck

	initial := reloader.Client()

	// A pin that no longer parses must not dislodge the running client.
	require.NoError(t, os.WriteFile(pinPath, []byte("not a certificate"), 0o600))
	time.Sleep(500 * time.Millisecond)

	assert.Same(t, initial, reloader.Client())

	resp, err := reloader.HTTPClient().Get(server.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
