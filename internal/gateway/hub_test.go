package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type recordingHandler struct {
	mu        sync.Mutex
	questions []string
	sessions  []string
	reply     string
}

func (h *recordingHandler) Handle(ctx context.Context, conn Client, sessionID, text string) {
	h.mu.Lock()
	h.questions = append(h.questions, text)
	h.sessions = append(h.sessions, sessionID)
	h.mu.Unlock()
	if h.reply != "" {
		conn.Send(NewFrame(FrameResult, sessionID, h.reply))
	}
}

func setupHub(t *testing.T, handler Handler) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(handler, zerolog.Nop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return hub, ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame Frame
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return frame
}

func TestConnectedFrameOnAccept(t *testing.T) {
	hub, ws := setupHub(t, &recordingHandler{})

	frame := readFrame(t, ws)
	if frame.Type != FrameConnected {
		t.Errorf("first frame type = %q, want connected", frame.Type)
	}
	if frame.Timestamp == "" {
		t.Errorf("frame missing timestamp")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d, want 1", hub.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJSONMessageDispatched(t *testing.T) {
	handler := &recordingHandler{reply: "done"}
	_, ws := setupHub(t, handler)
	readFrame(t, ws) // connected

	payload, _ := json.Marshal(inboundFrame{Type: FrameMessage, SessionID: "sess-1", Message: "123456789012 보고서"})
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatal(err)
	}

	frame := readFrame(t, ws)
	if frame.Type != FrameResult || frame.SessionID != "sess-1" || frame.Message != "done" {
		t.Errorf("result frame = %+v", frame)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.questions) != 1 || handler.questions[0] != "123456789012 보고서" {
		t.Errorf("handled questions = %v", handler.questions)
	}
}

func TestRawTextTreatedAsQuestion(t *testing.T) {
	handler := &recordingHandler{reply: "ok"}
	_, ws := setupHub(t, handler)
	readFrame(t, ws)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("스크리너 돌려줘")); err != nil {
		t.Fatal(err)
	}
	readFrame(t, ws)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.questions) != 1 || handler.questions[0] != "스크리너 돌려줘" {
		t.Errorf("handled questions = %v", handler.questions)
	}
	if handler.sessions[0] == "" {
		t.Errorf("raw text question should get a generated session id")
	}
}

func TestClientPingGetsPong(t *testing.T) {
	_, ws := setupHub(t, &recordingHandler{})
	readFrame(t, ws)

	payload, _ := json.Marshal(inboundFrame{Type: FramePing, SessionID: "s"})
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatal(err)
	}
	frame := readFrame(t, ws)
	if frame.Type != FramePong {
		t.Errorf("frame type = %q, want pong", frame.Type)
	}
}

func TestDisconnectCancelsConnectionContext(t *testing.T) {
	var (
		mu     sync.Mutex
		ctxt   context.Context
		gotCtx = make(chan struct{})
	)
	handler := HandlerFunc(func(ctx context.Context, conn Client, sessionID, text string) {
		mu.Lock()
		ctxt = conn.(*Conn).Context()
		mu.Unlock()
		close(gotCtx)
	})
	hub, ws := setupHub(t, handler)
	readFrame(t, ws)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("question")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-gotCtx:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	ws.Close()

	mu.Lock()
	ctx := ctxt
	mu.Unlock()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection context not cancelled after disconnect")
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d after disconnect, want 0", hub.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
