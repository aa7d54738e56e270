package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort reserves an ephemeral port and releases it for the server
// under test.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServeStartsAndShutsDown(t *testing.T) {
	resetCommandFlags()
	t.Setenv("GATEWARDEN_STORAGE_BACKEND", "memory")
	t.Setenv("GATEWARDEN_DATA_DIR", t.TempDir())

	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"serve", "--host", "127.0.0.1", "--port", strconv.Itoa(port)})

	errCh := make(chan error, 1)
	go func() { errCh <- rootCmd.ExecuteContext(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/health") //nolint:noctx // test poll
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, "health endpoint never came up")

	// The metrics endpoint rides on the same listener.
	resp, err := http.Get(base + "/metrics") //nolint:noctx // test poll
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down after context cancellation")
	}
}

func TestServeFlagsRegistered(t *testing.T) {
	for _, name := range []string{"config", "host", "port"} {
		if serveCmd.Flags().Lookup(name) == nil {
			t.Errorf("serve flag --%s not registered", name)
		}
	}
}
