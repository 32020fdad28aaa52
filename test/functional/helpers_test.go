//go:build functional

// Package functional runs the roster server on a real port and drives it
// over HTTP and WebSocket.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/studenttracker/internal/config"
	"github.com/vyrodovalexey/studenttracker/internal/server"
	"github.com/vyrodovalexey/studenttracker/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost = "TEST_SERVER_HOST"
	EnvTestLogLevel   = "TEST_LOG_LEVEL"
)

// Default test configuration values.
const (
	DefaultTestHost        = "127.0.0.1"
	DefaultReadyTimeout    = 10 * time.Second
	DefaultRequestTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// TestServer is a running roster server backed by a students file in a
// temporary directory.
type TestServer struct {
	Server       *server.Server
	Store        *store.MemoryStore
	StudentsFile string
	BaseURL      string
	WSURL        string
}

// StartTestServer starts a server and stops it when the test ends.
func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	host := getEnvOrDefault(EnvTestServerHost, DefaultTestHost)

	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := &config.Config{
		ServerHost:      host,
		ServerPort:      port,
		LogLevel:        getEnvOrDefault(EnvTestLogLevel, "error"),
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  true,
		StudentsFile:    filepath.Join(t.TempDir(), "students.txt"),
		AuthMode:        "none",
	}

	rosterStore := store.NewMemoryStore(store.NewCSVFile(cfg.StudentsFile), zap.NewNop())
	srv := server.New(cfg, zap.NewNop(), rosterStore, nil)

	go func() {
		if err := srv.Start(); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	ts := &TestServer{
		Server:       srv,
		Store:        rosterStore,
		StudentsFile: cfg.StudentsFile,
		BaseURL:      fmt.Sprintf("http://%s", cfg.Address()),
		WSURL:        fmt.Sprintf("ws://%s/ws", cfg.Address()),
	}
	ts.waitForReady(t)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Logf("server shutdown error: %v", err)
		}
	})

	return ts
}

func (ts *TestServer) waitForReady(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.BaseURL + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, DefaultReadyTimeout, 50*time.Millisecond, "server did not become ready")
}

// Response is a decoded API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Data decodes the data field of a success envelope into v.
func (r *Response) Data(t *testing.T, v any) {
	t.Helper()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(r.Body, &env))
	require.True(t, env.Success, "body: %s", r.Body)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// ErrorMessage decodes the message of an error response.
func (r *Response) ErrorMessage(t *testing.T) string {
	t.Helper()

	var e struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(r.Body, &e))
	return e.Message
}

// Do sends a request with an optional JSON body.
func (ts *TestServer) Do(t *testing.T, method, path string, body any) *Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, ts.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
