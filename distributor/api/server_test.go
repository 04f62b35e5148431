package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	t.Run("create server with valid config", func(t *testing.T) {
		server := NewServer(nil, nil, nil, logger, 8080)

		assert.NotNil(t, server)
		assert.NotNil(t, server.server)
		assert.Equal(t, ":8080", server.server.Addr)
	})

	t.Run("create server with different port", func(t *testing.T) {
		server := NewServer(nil, nil, nil, logger, 9090)

		assert.NotNil(t, server)
		assert.Equal(t, ":9090", server.server.Addr)
	})
}

func TestServerStartStop(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	t.Run("start and stop server", func(t *testing.T) {
		h := newTestServer(t)

		err := h.server.Start()
		require.NoError(t, err)

		time.Sleep(200 * time.Millisecond)

		err = h.server.Stop()
		assert.NoError(t, err)
	})

	t.Run("start with nil server", func(t *testing.T) {
		server := &Server{
			logger: logger,
		}

		err := server.Start()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "api server is nil")
	})

	t.Run("stop with nil server", func(t *testing.T) {
		server := &Server{
			logger: logger,
		}

		err := server.Stop()
		assert.NoError(t, err)
	})
}

func TestServerIntegration(t *testing.T) {
	t.Run("server lifecycle with HTTP client", func(t *testing.T) {
		h := newTestServer(t)
		h.server.server.Addr = ":18085"

		err := h.server.Start()
		require.NoError(t, err)
		defer h.server.Stop()

		time.Sleep(200 * time.Millisecond)

		resp, err := http.Get("http://localhost:18085/health")
		if err == nil {
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})
}
