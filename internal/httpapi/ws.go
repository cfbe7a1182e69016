package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cronus42/homeassistant-ollama-agent/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage is one frame on the assistant WebSocket. Client frames use types
// "message" and "new_conversation"; server frames use "reply", "typing",
// "conversation_cleared", and "error".
type WSMessage struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language,omitempty"`
}

// HandleWebSocket upgrades the connection and runs a chat session. Each
// session tracks its own conversation id, so consecutive messages continue
// the same conversation until the client resets it.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &chatSession{conn: conn, handler: h}
	session.run()
}

type chatSession struct {
	conn           *websocket.Conn
	handler        *Handler
	conversationID string
}

func (s *chatSession) run() {
	for {
		var msg WSMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		switch msg.Type {
		case "message":
			s.handleMessage(msg)
		case "new_conversation":
			s.conversationID = ""
			s.send(WSMessage{Type: "conversation_cleared"})
		}
	}
}

func (s *chatSession) handleMessage(msg WSMessage) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	if s.handler == nil || s.handler.orchestrator == nil {
		s.send(WSMessage{Type: "error", Content: "assistant not configured"})
		return
	}

	s.send(WSMessage{Type: "typing"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result := s.handler.orchestrator.Process(ctx, agent.ProcessRequest{
		Text:           msg.Content,
		ConversationID: s.conversationID,
		Language:       msg.Language,
	})
	if result.ConversationID != "" {
		s.conversationID = result.ConversationID
	}

	if result.Err != nil {
		s.send(WSMessage{Type: "error", Content: result.ReplyText, ConversationID: result.ConversationID})
		return
	}
	s.send(WSMessage{Type: "reply", Content: result.ReplyText, ConversationID: result.ConversationID})
}

func (s *chatSession) send(msg WSMessage) {
	_ = s.conn.WriteJSON(msg)
}
