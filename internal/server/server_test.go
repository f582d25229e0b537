package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, srv Service) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	return cancel, errChan
}

func TestNew(t *testing.T) {
	srv := New(Config{Host: "localhost", HTTPPort: 8000}, nil)
	require.NotNil(t, srv)
	assert.Empty(t, srv.Addr())
	assert.NotNil(t, srv.HTTPMux())
}

func TestServer_ServeAndStop(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil)
	srv.RegisterHTTPHandler("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	srv.HTTPMux().HandleFunc("GET /v1/instances", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	cancel, errChan := startServer(t, srv)
	defer cancel()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get("http://" + srv.Addr() + "/v1/instances")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestServer_Start_AlreadyStarted(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil)
	cancel, _ := startServer(t, srv)
	defer cancel()
	defer srv.Stop(context.Background())

	err := srv.Start(context.Background())
	assert.EqualError(t, err, "server already started")
}

func TestServer_Start_PortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := New(Config{Host: "127.0.0.1", HTTPPort: port}, nil)
	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http listen")
}

func TestServer_Stop_NotStarted(t *testing.T) {
	srv := New(Config{}, nil)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_Stop_ContextTimeout(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1"}, nil)
	release := make(chan struct{})
	srv.RegisterHTTPHandler("/slow", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	cancel, _ := startServer(t, srv)
	defer cancel()
	defer close(release)

	go http.Get("http://" + srv.Addr() + "/slow")
	time.Sleep(50 * time.Millisecond)

	ctx, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	err := srv.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
