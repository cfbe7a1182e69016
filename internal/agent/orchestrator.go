// Package agent drives one conversational turn end to end: prompt assembly,
// the completion/tool-call round trip, and conversation history upkeep.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cronus42/homeassistant-ollama-agent/internal/actions"
	"github.com/cronus42/homeassistant-ollama-agent/internal/homeassistant"
	"github.com/cronus42/homeassistant-ollama-agent/internal/llm"
	"github.com/cronus42/homeassistant-ollama-agent/internal/metrics"
	"github.com/cronus42/homeassistant-ollama-agent/internal/normalize"
	"github.com/cronus42/homeassistant-ollama-agent/internal/prompt"
	"github.com/cronus42/homeassistant-ollama-agent/internal/store"
)

// DefaultHistoryLimit is how many messages of a conversation are retained.
const DefaultHistoryLimit = 10

// EntitySource supplies the exposed-entity snapshot for prompt building.
type EntitySource interface {
	ExposedEntities(ctx context.Context) (map[string]homeassistant.Entity, error)
}

// ProcessRequest is one user utterance.
type ProcessRequest struct {
	Text           string
	ConversationID string
	Language       string
}

// ProcessResult is the outcome of one turn. Err is set only for turn-level
// failures (backend transport); ReplyText always carries something to speak.
type ProcessResult struct {
	ReplyText      string
	ConversationID string
	Err            error
}

// Orchestrator owns the turn state machine. Turns for the same conversation
// id are serialized so history updates are linearizable; turns for different
// ids run concurrently with no shared mutable state.
type Orchestrator struct {
	llm          llm.Client
	catalog      *actions.Catalog
	dispatcher   *actions.Dispatcher
	entities     EntitySource
	store        store.ConversationStore
	historyLimit int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an orchestrator. historyLimit <= 0 falls back to
// DefaultHistoryLimit.
func New(client llm.Client, catalog *actions.Catalog, dispatcher *actions.Dispatcher, entities EntitySource, st store.ConversationStore, historyLimit int) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Orchestrator{
		llm:          client,
		catalog:      catalog,
		dispatcher:   dispatcher,
		entities:     entities,
		store:        st,
		historyLimit: historyLimit,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}

// Process runs one conversation turn. It always produces some reply text; a
// backend failure yields an error reply with the original conversation id and
// leaves previously persisted history untouched.
func (o *Orchestrator) Process(ctx context.Context, req ProcessRequest) ProcessResult {
	conversationID := req.ConversationID
	resuming := conversationID != ""
	if !resuming {
		conversationID = uuid.NewString()
	}

	lock := o.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	var history []store.Message
	if resuming {
		h, err := o.store.Get(ctx, conversationID)
		if err != nil {
			return o.failTurn(req.ConversationID, fmt.Errorf("failed to load conversation: %w", err))
		}
		history = h
	}

	snapshot, err := o.entities.ExposedEntities(ctx)
	if err != nil {
		// Degrade to an empty snapshot: the model can still converse, it
		// just cannot see device state.
		log.Printf("Failed to fetch entity snapshot: %v", err)
		snapshot = nil
	}

	working := make([]llm.Message, 0, len(history)+2)
	working = append(working, llm.Message{Role: "system", Content: prompt.BuildSystemPrompt(snapshot)})
	for _, msg := range history {
		working = append(working, toWire(msg))
	}
	working = append(working, llm.Message{Role: "user", Content: req.Text})

	resp, err := o.llm.Chat(ctx, working, o.catalog.ToolDefinitions())
	if err != nil {
		return o.failTurn(req.ConversationID, err)
	}

	norm := normalize.Normalize(resp.Message)
	metrics.ResponseFormatTotal.WithLabelValues(norm.Kind.String()).Inc()

	// Messages produced this turn; persisted only when it completes.
	turn := []store.Message{{Role: "user", Content: req.Text}}

	replyText := norm.Text
	var executed []actions.Call
	var results []actions.Result

	if len(norm.Calls) > 0 {
		assistantWire := llm.Message{Role: "assistant", Content: resp.Message.Content, ToolCalls: toWireCalls(norm.Calls)}
		working = append(working, assistantWire)
		turn = append(turn, store.Message{Role: "assistant", Content: resp.Message.Content, ActionCalls: norm.Calls})

		// Strictly sequential: later calls may depend on state set by
		// earlier ones, and the follow-up completion must see all results.
		for _, call := range norm.Calls {
			result := o.dispatcher.Dispatch(ctx, call)
			status := "ok"
			if !result.Success {
				status = "failed"
			}
			metrics.ActionsTotal.WithLabelValues(call.Name, status).Inc()

			executed = append(executed, call)
			results = append(results, result)
			working = append(working, llm.Message{Role: "tool", Content: result.Message})
			turn = append(turn, store.Message{Role: "tool", Content: result.Message})
		}

		// No catalog on the follow-up: no further calls are expected.
		followup, err := o.llm.Chat(ctx, working, nil)
		if err != nil {
			return o.failTurn(req.ConversationID, err)
		}
		replyText = normalize.Normalize(followup.Message).Text
	}

	if strings.TrimSpace(replyText) == "" {
		replyText = fallbackReply(executed, results)
	}
	turn = append(turn, store.Message{Role: "assistant", Content: replyText})

	if err := o.store.Append(ctx, conversationID, turn...); err != nil {
		log.Printf("Failed to persist conversation %s: %v", conversationID, err)
	} else if err := o.store.Truncate(ctx, conversationID, o.historyLimit); err != nil {
		log.Printf("Failed to truncate conversation %s: %v", conversationID, err)
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	return ProcessResult{ReplyText: replyText, ConversationID: conversationID}
}

func (o *Orchestrator) failTurn(conversationID string, err error) ProcessResult {
	log.Printf("Error processing conversation: %v", err)
	metrics.TurnsTotal.WithLabelValues("error").Inc()
	return ProcessResult{
		ReplyText:      fmt.Sprintf("Sorry, I encountered an error: %v", err),
		ConversationID: conversationID,
		Err:            err,
	}
}

// fallbackReply synthesizes a reply when the model's cleaned text is empty.
func fallbackReply(calls []actions.Call, results []actions.Result) string {
	var parts []string
	for i, call := range calls {
		if !results[i].Success {
			continue
		}
		if p := describeCall(call); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return "Done! I've " + strings.Join(parts, ", and ") + "."
	}
	if len(calls) > 0 {
		return "I wasn't able to complete that request."
	}
	return "I'm sorry, I couldn't process that."
}

func describeCall(call actions.Call) string {
	entity := call.Arguments["entity_id"]
	switch call.Name {
	case "light_turn_on":
		if b, ok := call.Arguments["brightness"]; ok {
			return fmt.Sprintf("turned on %v at brightness %v", entity, b)
		}
		return fmt.Sprintf("turned on %v", entity)
	case "light_turn_off":
		return fmt.Sprintf("turned off %v", entity)
	case "climate_set_temperature":
		return fmt.Sprintf("set %v to %v°", entity, call.Arguments["temperature"])
	}
	return fmt.Sprintf("ran %s for %v", call.Name, entity)
}

func toWire(msg store.Message) llm.Message {
	return llm.Message{
		Role:      msg.Role,
		Content:   msg.Content,
		ToolCalls: toWireCalls(msg.ActionCalls),
	}
}

func toWireCalls(calls []actions.Call) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for _, call := range calls {
		raw, err := json.Marshal(call.Arguments)
		if err != nil {
			raw = []byte("{}")
		}
		out = append(out, llm.ToolCall{Function: llm.ToolCallFunction{
			Name:      call.Name,
			Arguments: raw,
		}})
	}
	return out
}
