package observability

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 0)
	assert.Equal(t, DefaultShutdownTimeout, sm.shutdownTimeout)
}

func TestShutdownManager_RunsFunctions(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	var calls int32
	for _, name := range []string{"database", "redis", "otel"} {
		sm.RegisterShutdownFunc(name, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}
	sm.RegisterShutdownFunc("nil", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// Second call does not run functions again
	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	closeErr := errors.New("close failed")
	sm.RegisterShutdownFunc("ok", func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc("database", func(ctx context.Context) error { return closeErr })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, closeErr)
	assert.Contains(t, err.Error(), "database")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 50*time.Millisecond)

	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownManager_StopsServers(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NewServeMux()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second, server, nil)
	require.NoError(t, sm.Shutdown(context.Background()))

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}
