package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/voicedesk/switchboard/internal/storage"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return hub, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial(wsURL, "", "http://localhost/")
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func receiveFrame(t *testing.T, ws *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw string
	if err := websocket.Message.Receive(ws, &raw); err != nil {
		t.Fatalf("receiving frame: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("decoding frame %q: %v", raw, err)
	}
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	if err := json.Unmarshal(frame["type"], &typ); err != nil {
		t.Fatalf("decoding frame type: %v", err)
	}
	return typ
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ActiveCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ActiveCount = %d, want %d", hub.ActiveCount(), want)
}

func TestSubscribeHandshake(t *testing.T) {
	hub, wsURL := startHub(t)
	ws := dial(t, wsURL)
	waitForCount(t, hub, 1)

	if err := websocket.Message.Send(ws, `{"type":"subscribe"}`); err != nil {
		t.Fatalf("sending subscribe: %v", err)
	}

	frame := receiveFrame(t, ws)
	if typ := frameType(t, frame); typ != "subscribed" {
		t.Errorf("ack type = %q, want subscribed", typ)
	}
	var data struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(frame["data"], &data); err != nil {
		t.Fatalf("decoding ack data: %v", err)
	}
	if data.Message != subscribedAck {
		t.Errorf("ack message = %q", data.Message)
	}
	if _, ok := frame["timestamp"]; !ok {
		t.Error("frame missing timestamp")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub, wsURL := startHub(t)
	ws1 := dial(t, wsURL)
	ws2 := dial(t, wsURL)
	waitForCount(t, hub, 2)

	hub.Broadcast(HelpRequestCreated{Request: storage.HelpRequest{
		ID:       "hr-1",
		Question: "what are your hours",
		Status:   storage.StatusPending,
	}})

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		frame := receiveFrame(t, ws)
		if typ := frameType(t, frame); typ != "help_request_created" {
			t.Errorf("type = %q, want help_request_created", typ)
		}
		var req storage.HelpRequest
		if err := json.Unmarshal(frame["data"], &req); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if req.ID != "hr-1" || req.Status != storage.StatusPending {
			t.Errorf("payload = %+v", req)
		}
	}
}

func TestBrokenClientIsPruned(t *testing.T) {
	hub, wsURL := startHub(t)
	ws1 := dial(t, wsURL)
	ws2 := dial(t, wsURL)
	waitForCount(t, hub, 2)

	ws1.Close()
	waitForCount(t, hub, 1)

	// The surviving client still receives broadcasts.
	hub.Broadcast(CustomerFollowup{SessionID: "sess-1", Message: "hello"})
	frame := receiveFrame(t, ws2)
	if typ := frameType(t, frame); typ != "customer_followup" {
		t.Errorf("type = %q, want customer_followup", typ)
	}
}

func TestNoReplayToLateSubscriber(t *testing.T) {
	hub, wsURL := startHub(t)

	hub.Broadcast(KnowledgeUpdated{Entry: storage.KnowledgeEntry{ID: "ke-1"}})

	ws := dial(t, wsURL)
	waitForCount(t, hub, 1)
	if err := websocket.Message.Send(ws, `{"type":"subscribe"}`); err != nil {
		t.Fatalf("sending subscribe: %v", err)
	}

	// The first (and only) frame is the subscribe ack, not the old event.
	frame := receiveFrame(t, ws)
	if typ := frameType(t, frame); typ != "subscribed" {
		t.Errorf("late subscriber got %q, want only the subscribed ack", typ)
	}
}

func TestActiveCountEmpty(t *testing.T) {
	hub := NewHub()
	if n := hub.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount = %d, want 0", n)
	}
	// Broadcast into an empty hub must not panic.
	hub.Broadcast(HelpRequestUpdated{Request: storage.HelpRequest{ID: "hr-1"}})
}
