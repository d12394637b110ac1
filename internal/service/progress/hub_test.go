package progress

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinReplay/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDeliversFilteredEvents(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	all := dial(t, srv, "")
	only := dial(t, srv, "?run_id=r2")
	waitClients(t, h, 2)

	h.PublishProgress(models.ProgressEvent{RunID: "r1", Split: "valid", Step: 0})
	h.PublishProgress(models.ProgressEvent{RunID: "r2", Split: "test", Step: 3, Done: true})

	var got models.ProgressEvent
	require.NoError(t, all.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := all.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "r1", got.RunID)

	require.NoError(t, only.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err = only.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "r2", got.RunID)
	assert.True(t, got.Done)
}

func TestHubRemovesClosedClients(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)
}

func TestPublishProgressNeverBlocks(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 300; i++ {
		h.PublishProgress(models.ProgressEvent{Step: i})
	}
	assert.Equal(t, int64(300-256), h.Dropped())
}
