package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/studyflow/internal/events"
	"github.com/p-n-ai/studyflow/internal/realtime"
)

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	hub := realtime.NewHub()
	mine, cancelMine := hub.Subscribe("u1")
	defer cancelMine()
	other, cancelOther := hub.Subscribe("u2")
	defer cancelOther()

	hub.Deliver(events.Event{Type: events.TypeXPAwarded, UserID: "u1"})

	select {
	case e := <-mine:
		if e.Type != events.TypeXPAwarded {
			t.Errorf("Type = %q", e.Type)
		}
	default:
		t.Fatal("owner did not receive the event")
	}
	select {
	case e := <-other:
		t.Errorf("other learner received %+v", e)
	default:
	}
}

func TestHub_CancelReleases(t *testing.T) {
	hub := realtime.NewHub()
	_, cancel := hub.Subscribe("u1")
	if hub.Subscribers("u1") != 1 {
		t.Fatalf("Subscribers() = %d, want 1", hub.Subscribers("u1"))
	}
	cancel()
	cancel()
	if hub.Subscribers("u1") != 0 {
		t.Errorf("Subscribers() = %d after cancel, want 0", hub.Subscribers("u1"))
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := realtime.NewHub()
	_, cancel := hub.Subscribe("u1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(context.Background(), events.Event{Type: events.TypeXPAwarded, UserID: "u1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Deliver blocked on a full subscription")
	}
}

func TestHub_ServeWS(t *testing.T) {
	hub := realtime.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "u1")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("u1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Deliver(events.Event{
		Type:   events.TypeLevelUp,
		UserID: "u1",
		Data:   map[string]any{"new_level": 3},
	})

	var got events.Event
	if err := wsjson.Read(ctx, c, &got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Type != events.TypeLevelUp || got.Data["new_level"] != float64(3) {
		t.Errorf("got %+v", got)
	}

	c.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("u1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
