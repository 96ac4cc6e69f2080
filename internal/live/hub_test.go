package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zap.NewNop())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h, srv := startHub(t)
	a := dial(t, srv, "u1")
	b := dial(t, srv, "u2")
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	h.Broadcast("nuevaNotificacion", map[string]string{"id": "n1"})

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "nuevaNotificacion", got.Type)
		assert.Equal(t, "n1", got.Data["id"])
	}
}

func TestHub_PingPong(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "u1")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{Type: messageTypePing}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, messageTypePong, got.Type)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "u1")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := NewHub(zap.NewNop())
	for range 300 {
		h.Broadcast("nuevaNotificacion", nil)
	}
	assert.Zero(t, h.ClientCount())
}
