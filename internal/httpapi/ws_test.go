package httpapi_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/cronus42/homeassistant-ollama-agent/internal/agent"
	"github.com/cronus42/homeassistant-ollama-agent/internal/httpapi"
)

func dialWS(t *testing.T, h *httpapi.Handler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(httpapi.NewRouter(h, testConfig()))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/assistant"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) httpapi.WSMessage {
	t.Helper()
	for i := 0; i < 5; i++ {
		var msg httpapi.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %q frame received", msgType)
	return httpapi.WSMessage{}
}

func TestWebSocket_MessageRoundTrip(t *testing.T) {
	processor := &stubProcessor{result: agent.ProcessResult{ReplyText: "The light is on.", ConversationID: "conv-ws"}}
	h := httpapi.NewHandler(testConfig(), nil, nil, processor)
	conn := dialWS(t, h)

	if err := conn.WriteJSON(httpapi.WSMessage{Type: "message", Content: "turn on the light"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readUntil(t, conn, "reply")
	if reply.Content != "The light is on." {
		t.Errorf("reply content = %q", reply.Content)
	}
	if reply.ConversationID != "conv-ws" {
		t.Errorf("reply conversation id = %q", reply.ConversationID)
	}
	if processor.lastReq.Text != "turn on the light" {
		t.Errorf("forwarded text = %q", processor.lastReq.Text)
	}
}

func TestWebSocket_SessionKeepsConversation(t *testing.T) {
	processor := &stubProcessor{result: agent.ProcessResult{ReplyText: "ok", ConversationID: "conv-1"}}
	h := httpapi.NewHandler(testConfig(), nil, nil, processor)
	conn := dialWS(t, h)

	if err := conn.WriteJSON(httpapi.WSMessage{Type: "message", Content: "first"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "reply")
	if processor.lastReq.ConversationID != "" {
		t.Errorf("first turn conversation id = %q, want empty", processor.lastReq.ConversationID)
	}

	if err := conn.WriteJSON(httpapi.WSMessage{Type: "message", Content: "second"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "reply")
	if processor.lastReq.ConversationID != "conv-1" {
		t.Errorf("second turn conversation id = %q, want conv-1", processor.lastReq.ConversationID)
	}

	// Resetting starts a fresh conversation.
	if err := conn.WriteJSON(httpapi.WSMessage{Type: "new_conversation"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "conversation_cleared")

	if err := conn.WriteJSON(httpapi.WSMessage{Type: "message", Content: "third"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "reply")
	if processor.lastReq.ConversationID != "" {
		t.Errorf("post-reset conversation id = %q, want empty", processor.lastReq.ConversationID)
	}
}
