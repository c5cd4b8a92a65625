// Package llm provides the chat-completion client used by the analysis
// pipeline.
//
// Defines a Completer interface and an OpenAI implementation that supports
// the provider's structured-output mode (response_format: json_schema).
// Callers that need typed results pass a ResponseFormat and unmarshal the
// returned JSON themselves; see the llmmap package.
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

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat describes a structured-output schema. When present, the
// provider is constrained to emit JSON matching Schema and the completion
// text is that JSON document.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
}

// Request is one completion call.
type Request struct {
	Messages    []Message
	Format      *ResponseFormat // nil for free-form text
	Temperature float32
}

// Completer performs chat completions. Implementations must be safe for
// concurrent use; the pipeline issues up to 128 calls in flight.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// perCallTimeout is the maximum time for a single completion call.
// Separate from the pipeline's overall context timeout so one slow call
// doesn't stall an entire fan-out stage.
const perCallTimeout = 120 * time.Second

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates a client for the chat completions API.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type openAIJSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type openAIResponseFormat struct {
	Type       string           `json:"type"`
	JSONSchema openAIJSONSchema `json:"json_schema"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion request. With a ResponseFormat the
// returned string is the model's JSON document; otherwise it is the raw
// text of the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	payload := openAIChatRequest{
		Model:    c.model,
		Messages: req.Messages,
	}
	if req.Temperature > 0 {
		payload.Temperature = &req.Temperature
	}
	if req.Format != nil {
		rf, err := json.Marshal(openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: openAIJSONSchema{
				Name:   req.Format.Name,
				Strict: true,
				Schema: req.Format.Schema,
			},
		})
		if err != nil {
			return "", fmt.Errorf("llm: marshal response format: %w", err)
		}
		payload.ResponseFormat = rf
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("llm: openai error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}
