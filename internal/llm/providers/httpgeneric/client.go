// Package httpgeneric implements a raw-HTTP, OpenAI-chat-shaped model
// provider for any OpenAI-compatible endpoint the operator points it at
// without needing a dedicated SDK. Adapted directly from the teacher's
// ai.OpenAIClient (ai/client.go): same request construction, same
// choices[0].message.content extraction, generalized to an arbitrary
// BaseURL rather than a hardcoded OpenAI endpoint.
package httpgeneric

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
)

func init() {
	llm.Register(factory{})
}

type factory struct{}

func (factory) Name() string { return "httpgeneric" }

func (factory) DetectEnvironment() bool {
	return llm.EnvNonEmpty("GRAPHMIND_MODEL_BASE_URL")
}

func (factory) Create(cfg llm.ProviderConfig, log logger.Logger) (llm.Provider, error) {
	return New(cfg, log), nil
}

// Client talks to any HTTP endpoint accepting an OpenAI-style
// `/chat/completions` body and returning an OpenAI-style response.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        logger.Logger
}

// New builds a Client, falling back to GRAPHMIND_MODEL_API_KEY if cfg's
// APIKey is empty, matching the teacher's NewOpenAIClient fallback.
func New(cfg llm.ProviderConfig, log logger.Logger) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GRAPHMIND_MODEL_API_KEY")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

func (c *Client) Name() string { return "httpgeneric" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float32        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
}

// streamChunkResponse mirrors one `data: {...}` line of an OpenAI-style
// chat-completion SSE stream.
type streamChunkResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) buildRequest(prompt string, opts llm.Options, stream bool) (string, []byte, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	var messages []chatMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if opts.Mode == llm.ModeJSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	return model, body, err
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// GenerateResponse posts a chat-completion request and extracts the
// first choice's message content.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	model, body, err := c.buildRequest(prompt, opts, false)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpgeneric: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("httpgeneric: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("httpgeneric: empty choices in response")
	}

	return &llm.Response{Content: parsed.Choices[0].Message.Content, Model: model}, nil
}

// GenerateStream posts a chat-completion request with stream:true and
// relays each `data: {...}` SSE line as a chunk, terminating cleanly on
// the `data: [DONE]` sentinel every OpenAI-compatible server sends.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	_, body, err := c.buildRequest(prompt, opts, true)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpgeneric: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("httpgeneric: status %d: %s", resp.StatusCode, string(raw))
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}
			var chunk streamChunkResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				ch <- llm.StreamChunk{Err: fmt.Errorf("httpgeneric: decode stream chunk: %w", err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			ch <- llm.StreamChunk{Content: chunk.Choices[0].Delta.Content}
		}
		if err := scanner.Err(); err != nil {
			ch <- llm.StreamChunk{Err: fmt.Errorf("httpgeneric: read stream: %w", err)}
		}
	}()
	return ch, nil
}
