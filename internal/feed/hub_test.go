package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/casecoach/internal/domain"
)

func TestHubPublishDelivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(4, nil)
	sub := hub.Subscribe("a1")

	var (
		wg  sync.WaitGroup
		got []Event
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub.C {
			got = append(got, ev)
		}
	}()

	hub.Publish(Event{AssignmentID: "a1", SessionID: "s1", Phase: domain.PhaseClarify})
	hub.Publish(Event{AssignmentID: "a2", SessionID: "other"})
	hub.Publish(Event{AssignmentID: "a1", SessionID: "s2", Phase: domain.PhaseDirection})

	require.Eventually(t, func() bool { return len(sub.C) == 0 }, time.Second, 5*time.Millisecond)
	hub.Unsubscribe(sub)
	wg.Wait()

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "turn", got[0].Type)
	assert.False(t, got[0].At.IsZero())
	assert.Equal(t, "s2", got[1].SessionID)
	assert.Zero(t, hub.Subscribers("a1"))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(2, nil)
	sub := hub.Subscribe("a1")
	defer hub.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.Publish(Event{AssignmentID: "a1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, sub.C, 2)
}

func TestHubUnsubscribeTwiceAndClose(t *testing.T) {
	hub := NewHub(0, nil)
	a := hub.Subscribe("a1")
	b := hub.Subscribe("a1")
	assert.Equal(t, 2, hub.Subscribers("a1"))

	hub.Unsubscribe(a)
	hub.Unsubscribe(a)
	assert.Equal(t, 1, hub.Subscribers("a1"))

	hub.Close()
	_, open := <-b.C
	assert.False(t, open)
	hub.Unsubscribe(b)
}

func TestWebSocketFeed(t *testing.T) {
	hub := NewHub(4, nil)
	r := chi.NewRouter()
	r.Handle("/ws/assignments/{id}/feed", NewWebSocketHandler(hub, "*", false, nil))
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/assignments/a1/feed"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	require.Eventually(t, func() bool { return hub.Subscribers("a1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{AssignmentID: "a1", SessionID: "s1", Phase: domain.PhaseCritique, Content: "feedback"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, domain.PhaseCritique, ev.Phase)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Subscribers("a1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(1, nil)
	r := chi.NewRouter()
	r.Handle("/ws/assignments/{id}/feed", NewWebSocketHandler(hub, "https://casecoach.app", false, nil))

	req := httptest.NewRequest("GET", "/ws/assignments/a1/feed", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, 403, w.Code)
	assert.Zero(t, hub.Subscribers("a1"))
}
