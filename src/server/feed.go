package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// The feed is only reachable through the debug listener, which is never
// exposed publicly, so cross origin upgrades are accepted.
var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// feedWriteWait bounds each broadcast write. Broadcasters run on the request
// path, so a stalled subscriber must not hold the feed lock past it.
const feedWriteWait = time.Second

// AdmissionEvent is one gate decision as broadcast to feed subscribers.
type AdmissionEvent struct {
	Policy            string `json:"policy"`
	Path              string `json:"path"`
	RequestId         string `json:"request_id,omitempty"`
	Allowed           bool   `json:"allowed"`
	Queued            bool   `json:"queued"`
	Remaining         uint32 `json:"remaining"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
	Timestamp         int64  `json:"timestamp"`
}

// AdmissionFeed fans admission decisions out to websocket subscribers.
type AdmissionFeed struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewAdmissionFeed() *AdmissionFeed {
	return &AdmissionFeed{clients: make(map[*websocket.Conn]bool)}
}

// HandleWebsocket upgrades the connection and registers the subscriber.
func (feed *AdmissionFeed) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("admission feed upgrade error: %v", err)
		return
	}

	feed.mu.Lock()
	feed.clients[conn] = true
	feed.mu.Unlock()

	// Read loop detects disconnects and unregisters the subscriber.
	go func() {
		defer func() {
			feed.mu.Lock()
			delete(feed.clients, conn)
			feed.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to every connected subscriber. Connections do not
// allow concurrent writers, so broadcasters hold the write lock.
func (feed *AdmissionFeed) Broadcast(event *AdmissionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("admission feed marshal error: %v", err)
		return
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	for conn := range feed.clients {
		conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The read loop unregisters the subscriber once closed.
			conn.Close()
		}
	}
}

// ClientCount reports the number of connected subscribers.
func (feed *AdmissionFeed) ClientCount() int {
	feed.mu.RLock()
	defer feed.mu.RUnlock()
	return len(feed.clients)
}
