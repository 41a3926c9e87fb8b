// Package openaicompat wraps github.com/sashabaranov/go-openai, the pack's
// typed OpenAI client, as an alternative to httpgeneric's raw-HTTP
// approach for operators who point the orchestrator directly at OpenAI
// or an Azure-OpenAI-compatible deployment.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
)

func init() {
	llm.Register(factory{})
}

type factory struct{}

func (factory) Name() string { return "openaicompat" }

func (factory) DetectEnvironment() bool {
	return llm.EnvNonEmpty("OPENAI_API_KEY")
}

func (factory) Create(cfg llm.ProviderConfig, log logger.Logger) (llm.Provider, error) {
	return New(cfg, log), nil
}

// Client adapts *openai.Client to the llm.Provider interface.
type Client struct {
	client *openai.Client
	model  string
	log    logger.Logger
}

// New builds a Client. If cfg.BaseURL is set, the client targets it
// instead of api.openai.com (Azure-OpenAI-compatible gateways, local
// proxies).
func New(cfg llm.ProviderConfig, log logger.Logger) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		log:    log,
	}
}

func (c *Client) Name() string { return "openaicompat" }

// buildRequest assembles the shared chat-completion request both
// GenerateResponse and GenerateStream send, differing only in the
// Stream flag.
func (c *Client) buildRequest(prompt string, opts llm.Options) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	messages := []openai.ChatCompletionMessage{}
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Mode == llm.ModeJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

// GenerateResponse issues a chat-completion request and returns the
// first choice's message content.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(prompt, opts))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openaicompat: empty choices in response")
	}

	return &llm.Response{Content: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}

// GenerateStream issues a streaming chat-completion request via
// go-openai's CreateChatCompletionStream and relays each delta as a
// chunk. The subprocess-style Recv loop runs on its own goroutine so the
// channel can be consumed lazily by the caller.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	req := c.buildRequest(prompt, opts)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: create stream: %w", err)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				ch <- llm.StreamChunk{Err: fmt.Errorf("openaicompat: stream recv: %w", err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			ch <- llm.StreamChunk{Content: resp.Choices[0].Delta.Content}
		}
	}()
	return ch, nil
}
