// Package bedrock implements the Model Client provider backed by AWS
// Bedrock's Converse API, adapted directly from the teacher's
// ai/providers/bedrock/client.go: same message/content-block
// construction, same InferenceConfiguration wiring, generalized from the
// teacher's core.AIResponse to this module's llm.Response.
package bedrock

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
)

func init() {
	llm.Register(factory{})
}

type factory struct{}

func (factory) Name() string { return "bedrock" }

func (factory) DetectEnvironment() bool {
	return llm.EnvNonEmpty("AWS_REGION") || llm.EnvNonEmpty("AWS_PROFILE")
}

func (factory) Create(cfg llm.ProviderConfig, log logger.Logger) (llm.Provider, error) {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}
	return New(awsCfg, cfg.Model, log), nil
}

// Client implements llm.Provider for AWS Bedrock.
type Client struct {
	runtime *bedrockruntime.Client
	model   string
	log     logger.Logger
}

// New builds a Client from an already-resolved aws.Config.
func New(cfg aws.Config, model string, log logger.Logger) *Client {
	return &Client{
		runtime: bedrockruntime.NewFromConfig(cfg),
		model:   model,
		log:     log,
	}
}

func (c *Client) Name() string { return "bedrock" }

// buildConverseInput assembles the shared message/system/inference
// config both GenerateResponse and GenerateStream send to Bedrock.
func (c *Client) buildConverseInput(prompt string, opts llm.Options) (*bedrockruntime.ConverseInput, string) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	messages := []types.Message{
		{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: prompt},
			},
		},
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}

	if opts.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: opts.SystemPrompt},
		}
	}

	inferenceConfig := &types.InferenceConfiguration{}
	configSet := false
	if opts.MaxTokens > 0 {
		inferenceConfig.MaxTokens = aws.Int32(int32(opts.MaxTokens))
		configSet = true
	}
	if opts.Temperature > 0 {
		inferenceConfig.Temperature = aws.Float32(opts.Temperature)
		configSet = true
	}
	if configSet {
		input.InferenceConfig = inferenceConfig
	}
	return input, model
}

// GenerateResponse calls Bedrock's Converse API with a single user
// message and an optional system prompt.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	input, model := c.buildConverseInput(prompt, opts)

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	if output.Output == nil {
		return nil, fmt.Errorf("bedrock: no output in response")
	}

	var content string
	switch v := output.Output.(type) {
	case *types.ConverseOutputMemberMessage:
		for _, block := range v.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				content += textBlock.Value
			}
		}
	default:
		return nil, fmt.Errorf("bedrock: unexpected output type")
	}
	if content == "" {
		return nil, fmt.Errorf("bedrock: no text content in response")
	}

	return &llm.Response{Content: content, Model: model}, nil
}

// GenerateStream calls Bedrock's ConverseStream API and relays each
// content-block delta event as a chunk. Event-stream draining happens on
// its own goroutine so the returned channel can be consumed lazily.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	input, _ := c.buildConverseInput(prompt, opts)

	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
	}

	output, err := c.runtime.ConverseStream(ctx, streamInput)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse stream: %w", err)
	}

	stream := output.GetStream()
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()
		for event := range stream.Events() {
			delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
			if !ok {
				continue
			}
			textDelta, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
			if !ok {
				continue
			}
			ch <- llm.StreamChunk{Content: textDelta.Value}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.StreamChunk{Err: fmt.Errorf("bedrock: stream event: %w", err)}
		}
	}()
	return ch, nil
}
