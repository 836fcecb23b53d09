// ABOUTME: Tests for server construction and lifecycle
// ABOUTME: Verifies Run returns cleanly on cancel and that listen failures surface and release storage

package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/its-lightning/light-assistant/internal/ollama"
	"github.com/its-lightning/light-assistant/internal/store"
)

func TestRun_GracefulOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = "127.0.0.1:0"

	s, err := NewWithBackends(cfg, store.NewMemoryBackend(), ollama.NewClient("http://127.0.0.1:1", time.Second, nil), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = ln.Addr().String()

	backendStore := store.NewMemoryBackend()
	s, err := NewWithBackends(cfg, backendStore, ollama.NewClient("http://127.0.0.1:1", time.Second, nil), nil)
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorContains(t, err, "listening on HTTP address")
	assert.True(t, backendStore.Closed(), "store must be released when the listener cannot start")
}

func TestNew_OpensConfiguredStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "light.db")

	s, err := New(cfg, nil)
	require.NoError(t, err)
	_, ok := s.store.(*store.SQLiteBackend)
	assert.True(t, ok)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestNew_BadSessionSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.SessionSecret = "short"

	_, err := NewWithBackends(cfg, store.NewMemoryBackend(), ollama.NewClient("http://127.0.0.1:1", time.Second, nil), nil)
	assert.Error(t, err)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/srv/ts")
	require.NoError(t, err)
	assert.Equal(t, "/srv/ts", dir)

	t.Setenv("HOME", "/home/light")
	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/light", ".local", "share", "light-assistant", "tailscale"), dir)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "tskey-env")
	assert.Equal(t, "tskey-config", resolveTailscaleAuthKey("tskey-config"))
	assert.Equal(t, "tskey-env", resolveTailscaleAuthKey(""))
}
