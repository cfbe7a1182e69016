package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cronus42/homeassistant-ollama-agent/internal/agent"
	"github.com/cronus42/homeassistant-ollama-agent/internal/config"
	"github.com/cronus42/homeassistant-ollama-agent/internal/homeassistant"
	"github.com/cronus42/homeassistant-ollama-agent/internal/llm"
)

// Processor runs one conversation turn. Implemented by agent.Orchestrator.
type Processor interface {
	Process(ctx context.Context, req agent.ProcessRequest) agent.ProcessResult
}

type Handler struct {
	config       *config.Config
	llmClient    *llm.OllamaClient
	haClient     *homeassistant.Client
	orchestrator Processor
}

func NewHandler(cfg *config.Config, llmClient *llm.OllamaClient, haClient *homeassistant.Client, orchestrator Processor) *Handler {
	return &Handler{
		config:       cfg,
		llmClient:    llmClient,
		haClient:     haClient,
		orchestrator: orchestrator,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ollamaAvailable := false
	if h.llmClient != nil {
		ok, _ := h.llmClient.Available(ctx)
		ollamaAvailable = ok
	}

	haAvailable := false
	if h.haClient != nil {
		ok, _ := h.haClient.Available(ctx)
		haAvailable = ok
	}

	model := ""
	if h.config != nil {
		model = h.config.Ollama.Model
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                   "ok",
		"service":                  "ollama-agent",
		"model":                    model,
		"ollama_available":         ollamaAvailable,
		"home_assistant_available": haAvailable,
	})
}

type ProcessRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language,omitempty"`
}

type ProcessResponse struct {
	ReplyText      string `json:"reply_text"`
	ConversationID string `json:"conversation_id"`
	Error          string `json:"error,omitempty"`
}

// Process runs one conversation turn. Turn-level failures still produce a
// spoken error reply, reported in the error field.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	result := h.orchestrator.Process(r.Context(), agent.ProcessRequest{
		Text:           req.Text,
		ConversationID: req.ConversationID,
		Language:       req.Language,
	})

	resp := ProcessResponse{
		ReplyText:      result.ReplyText,
		ConversationID: result.ConversationID,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListEntities returns the current exposed-entity snapshot.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	if h.haClient == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "home assistant not configured")
		return
	}

	entities, err := h.haClient.ExposedEntities(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to fetch entities: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

func (h *Handler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	available := false
	if h.llmClient != nil {
		ok, _ := h.llmClient.Available(ctx)
		available = ok
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":          "ollama-agent",
		"ollama_host":      h.config.Ollama.Host,
		"ollama_model":     h.config.Ollama.Model,
		"ollama_available": available,
		"context_length":   h.config.Ollama.ContextLength,
		"history_backend":  h.config.History.Backend,
		"history_limit":    h.config.History.Limit,
	})
}

func (h *Handler) AdminListModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	models, err := h.llmClient.Models(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list models: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":        models,
		"current_model": h.llmClient.GetModel(),
	})
}
