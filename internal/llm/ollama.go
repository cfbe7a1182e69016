package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message represents a chat message on the Ollama wire format.
type Message struct {
	Role      string     `json:"role"` // "system", "user", "assistant", "tool"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition represents a tool for Ollama function calling.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction represents a function definition.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall represents a tool call emitted by the model. Arguments stay raw
// because some models send a JSON object and others a JSON-encoded string.
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction represents the function being called.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatRequest represents an Ollama chat request.
type ChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []ToolDefinition       `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatResponse represents an Ollama chat response.
type ChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

// Client is the LLM backend consumed by the orchestrator.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*ChatResponse, error)
	Available(ctx context.Context) (bool, error)
	Models(ctx context.Context) ([]string, error)
}

// OllamaClient implements Client against the Ollama HTTP API.
type OllamaClient struct {
	baseURL       string
	model         string
	contextLength int
	temperature   float64
	httpClient    *http.Client
}

// NewOllamaClient creates a new Ollama client. The timeout bounds a single
// chat completion; exceeding it surfaces as a transport error.
func NewOllamaClient(baseURL, model string, contextLength int, temperature float64, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL:       baseURL,
		model:         model,
		contextLength: contextLength,
		temperature:   temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Chat sends messages (plus optional tool definitions) and returns the
// complete, non-streamed response.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*ChatResponse, error) {
	payload := ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Tools:    tools,
		Options: map[string]interface{}{
			"num_ctx":     c.contextLength,
			"temperature": c.temperature,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &chatResp, nil
}

// Available checks if Ollama is reachable.
func (c *OllamaClient) Available(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// ModelsResponse represents the response from /api/tags.
type ModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models returns a list of available model names.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, err
	}

	models := make([]string, len(modelsResp.Models))
	for i, m := range modelsResp.Models {
		models[i] = m.Name
	}
	return models, nil
}

// GetModel returns the current model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}
