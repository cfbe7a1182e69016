// Package normalize turns raw model responses into canonical action calls
// plus cleaned reply text. Models answer in one of three dialects: standard
// structured tool calls, a compact JSON object keyed by entity reference
// ("compact-action"), or plain prose; the latter two may arrive wrapped in a
// markdown code fence. Any dialect may carry <think> reasoning blocks that
// must never reach the user.
package normalize

import (
	"bytes"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/cronus42/homeassistant-ollama-agent/internal/actions"
	"github.com/cronus42/homeassistant-ollama-agent/internal/llm"
)

// Kind identifies which response dialect was detected.
type Kind int

const (
	KindPlainText Kind = iota
	KindStandard
	KindCompactAction
)

// String returns the dialect name, used as a metric label.
func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindCompactAction:
		return "compact_action"
	default:
		return "plain_text"
	}
}

// Result is the normalized form of one model response.
type Result struct {
	Kind  Kind
	Text  string
	Calls []actions.Call
}

var (
	thinkBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkTrailRe = regexp.MustCompile(`(?is)<think>.*$`)
	blankRunRe   = regexp.MustCompile(`\n\s*\n+`)
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// StripReasoning removes <think>...</think> blocks (case-insensitive, across
// lines) and a trailing unclosed <think> through end-of-text, then collapses
// blank-line runs and trims. Idempotent: stripping already-cleaned text is a
// no-op.
func StripReasoning(text string) string {
	if text == "" {
		return text
	}
	cleaned := thinkBlockRe.ReplaceAllString(text, "")
	cleaned = thinkTrailRe.ReplaceAllString(cleaned, "")
	cleaned = blankRunRe.ReplaceAllString(cleaned, "\n")
	return strings.TrimSpace(cleaned)
}

// classifier pairs a detection predicate with its parser. Classifiers are
// tried in order; the first match wins.
type classifier struct {
	kind   Kind
	detect func(msg llm.Message, obj *object) bool
	parse  func(msg llm.Message, obj *object) []actions.Call
}

var classifiers = []classifier{
	{
		kind:   KindStandard,
		detect: func(msg llm.Message, _ *object) bool { return len(msg.ToolCalls) > 0 },
		parse:  func(msg llm.Message, _ *object) []actions.Call { return fromStandardCalls(msg.ToolCalls) },
	},
	{
		kind:   KindCompactAction,
		detect: func(_ llm.Message, obj *object) bool { return isCompactAction(obj) },
		parse:  func(_ llm.Message, obj *object) []actions.Call { return parseCompactAction(obj) },
	},
}

// Normalize classifies a raw model message and converts it into cleaned text
// plus zero or more canonical action calls.
func Normalize(msg llm.Message) Result {
	text := StripReasoning(msg.Content)
	obj := extractJSON(text)
	for _, c := range classifiers {
		if c.detect(msg, obj) {
			return Result{Kind: c.kind, Text: text, Calls: c.parse(msg, obj)}
		}
	}
	return Result{Kind: KindPlainText, Text: text}
}

// fromStandardCalls converts explicit structured calls. Arguments may arrive
// as a JSON object or a JSON-encoded string; a call whose arguments cannot be
// decoded is dropped with a warning, never fatal.
func fromStandardCalls(toolCalls []llm.ToolCall) []actions.Call {
	var calls []actions.Call
	for _, tc := range toolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			log.Printf("Dropping tool call %s: invalid arguments: %v", tc.Function.Name, err)
			continue
		}
		calls = append(calls, actions.Call{Name: tc.Function.Name, Arguments: args})
	}
	return calls
}

func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]interface{}{}, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		trimmed = []byte(s)
	}
	var args map[string]interface{}
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// object is a decoded JSON object that remembers source key order, so
// compact-action calls are emitted in the order the model wrote them.
type object struct {
	keys   []string
	values map[string]json.RawMessage
}

func (o *object) has(key string) bool {
	_, ok := o.values[key]
	return ok
}

func (o *object) stringValue(key string) (string, bool) {
	raw, ok := o.values[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// extractJSON finds a JSON object in the message content: the first fenced
// code block (optionally tagged "json") that decodes wins; blocks that fail
// to decode are skipped. Without a fence the entire content is tried. A block
// that decodes to a non-object ends the scan with no result, matching
// first-successful-decode-wins semantics.
func extractJSON(content string) *object {
	if content == "" {
		return nil
	}
	for _, m := range fenceRe.FindAllStringSubmatch(content, -1) {
		inner := strings.TrimSpace(m[1])
		if inner == "" {
			continue
		}
		var probe interface{}
		if err := json.Unmarshal([]byte(inner), &probe); err != nil {
			continue
		}
		if _, ok := probe.(map[string]interface{}); !ok {
			return nil
		}
		return decodeOrdered([]byte(inner))
	}

	trimmed := strings.TrimSpace(content)
	var probe interface{}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return nil
	}
	return decodeOrdered([]byte(trimmed))
}

// decodeOrdered walks an already-validated JSON object token by token to
// preserve key order.
func decodeOrdered(raw []byte) *object {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil
	}
	obj := &object{values: make(map[string]json.RawMessage)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil
		}
		if _, seen := obj.values[key]; !seen {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = val
	}
	return obj
}

// Keys that never name an entity in a compact-action object.
func isReservedCompactKey(key string) bool {
	switch key {
	case "type", "content", "__reasoning__", "text":
		return true
	}
	return false
}

// isCompactAction reports whether a decoded object is in compact-action form:
// a string "type" field naming an action domain plus at least one key that
// looks like an entity reference or one of the literal tokens on/off/
// brightness. An object carrying a standard tool_calls field never qualifies.
func isCompactAction(obj *object) bool {
	if obj == nil {
		return false
	}
	if obj.has("tool_calls") {
		return false
	}
	if _, ok := obj.stringValue("type"); !ok {
		return false
	}
	for _, key := range obj.keys {
		if isReservedCompactKey(key) {
			continue
		}
		if strings.Contains(key, ".") || key == "on" || key == "off" || key == "brightness" {
			return true
		}
	}
	return false
}

// parseCompactAction converts a compact-action object into canonical calls.
// Malformed entries are skipped with a warning; skips never abort the pass.
func parseCompactAction(obj *object) []actions.Call {
	domain, _ := obj.stringValue("type")

	var calls []actions.Call
	for _, key := range obj.keys {
		if isReservedCompactKey(key) {
			continue
		}

		entityID := key
		if !strings.Contains(key, ".") {
			entityID = domain + "." + key
		}

		var value interface{}
		if err := json.Unmarshal(obj.values[key], &value); err != nil {
			log.Printf("Skipping compact-action entry %s: %v", key, err)
			continue
		}

		switch v := value.(type) {
		case string:
			if call, ok := compactStringCall(domain, entityID, v); ok {
				calls = append(calls, call)
			}
		case map[string]interface{}:
			if call, ok := compactObjectCall(domain, entityID, v); ok {
				calls = append(calls, call)
			}
		default:
			log.Printf("Skipping compact-action entry %s: unsupported value type", key)
		}
	}
	return calls
}

func compactStringCall(domain, entityID, value string) (actions.Call, bool) {
	switch domain {
	case "light":
		switch strings.ToLower(value) {
		case "on":
			return actions.Call{Name: "light_turn_on", Arguments: map[string]interface{}{"entity_id": entityID}}, true
		case "off":
			return actions.Call{Name: "light_turn_off", Arguments: map[string]interface{}{"entity_id": entityID}}, true
		}
		log.Printf("Skipping compact-action entry %s: unknown light action %q", entityID, value)
	case "climate":
		temp, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			log.Printf("Skipping compact-action entry %s: non-numeric temperature %q", entityID, value)
			return actions.Call{}, false
		}
		return actions.Call{Name: "climate_set_temperature", Arguments: map[string]interface{}{"entity_id": entityID, "temperature": temp}}, true
	default:
		log.Printf("Skipping compact-action entry %s: unknown domain %q", entityID, domain)
	}
	return actions.Call{}, false
}

func compactObjectCall(domain, entityID string, params map[string]interface{}) (actions.Call, bool) {
	switch domain {
	case "light":
		args := map[string]interface{}{"entity_id": entityID}
		for k, v := range params {
			args[k] = v
		}
		return actions.Call{Name: "light_turn_on", Arguments: args}, true
	case "climate":
		temp, ok := params["temperature"]
		if !ok {
			log.Printf("Skipping compact-action entry %s: climate object missing temperature", entityID)
			return actions.Call{}, false
		}
		return actions.Call{Name: "climate_set_temperature", Arguments: map[string]interface{}{"entity_id": entityID, "temperature": temp}}, true
	default:
		log.Printf("Skipping compact-action entry %s: unknown domain %q", entityID, domain)
	}
	return actions.Call{}, false
}
