// Package realtime streams a learner's own progression events to connected
// websocket clients.
package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/studyflow/internal/events"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Hub fans events out to the subscriptions of the event's learner. Slow
// subscribers lose events rather than block delivery.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan events.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan events.Event]struct{})}
}

// Subscribe registers a subscription for userID. The returned cancel func
// must be called to release it.
func (h *Hub) Subscribe(userID string) (<-chan events.Event, func()) {
	ch := make(chan events.Event, sendBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan events.Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of open subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Deliver hands e to every subscription of e.UserID without blocking.
func (h *Hub) Deliver(e events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[e.UserID] {
		select {
		case ch <- e:
		default:
			slog.Warn("dropping event for slow websocket client", "user_id", e.UserID, "type", e.Type)
		}
	}
}

// Publish lets the hub act as a Publisher when no redis bus is configured.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	h.Deliver(e)
	return nil
}

// ServeWS upgrades the request and streams userID's events until the client
// goes away or the request context ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	defer c.CloseNow()

	ctx := c.CloseRead(r.Context())
	ch, cancel := h.Subscribe(userID)
	defer cancel()

	slog.Debug("websocket client connected", "user_id", userID)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-ch:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c, e)
			wcancel()
			if err != nil {
				slog.Debug("websocket write failed", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
