package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A subscriber whose socket died must not break a broadcast or starve the
// remaining subscribers.
func TestBroadcastSurvivesDeadSubscriber(t *testing.T) {
	assert := assert.New(t)
	feed := NewAdmissionFeed()

	ts := httptest.NewServer(http.HandlerFunc(feed.HandleWebsocket))
	defer ts.Close()

	wsUrl := strings.Replace(ts.URL, "http", "ws", 1)
	first, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	require.NoError(t, err)
	defer first.Close()
	second, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	require.NoError(t, err)
	defer second.Close()
	require.Eventually(t, func() bool { return feed.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	// Sever one server side socket so its next write fails.
	feed.mu.Lock()
	for conn := range feed.clients {
		conn.UnderlyingConn().Close()
		break
	}
	feed.mu.Unlock()

	feed.Broadcast(&AdmissionEvent{Policy: "api", Path: "/api/ping", Allowed: true})

	require.Eventually(t, func() bool { return feed.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// The surviving subscriber still received the event.
	received := false
	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, payload, err := conn.ReadMessage(); err == nil &&
			strings.Contains(string(payload), `"policy":"api"`) {
			received = true
		}
	}
	assert.True(received)
}
