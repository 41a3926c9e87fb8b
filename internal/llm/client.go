// Package llm implements the Model Client (C3): a provider-agnostic
// facade over whichever backend is configured, wrapped in fixed-backoff
// retry and a circuit breaker. Response coercion (brace-balance JSON
// extraction and key aliasing) lives in json_extract.go; concrete
// backends live under providers/.
//
// The Provider interface and the retry/circuit-breaker composition are
// adapted from the teacher's ai.AIClient (ai/interfaces.go) and
// resilience.RetryWithCircuitBreaker (resilience/retry.go,
// resilience/circuit_breaker.go); unlike the teacher's exponential
// backoff, §4.3 calls for a fixed delay between attempts, so the retry
// loop here uses a constant interval instead of exponential growth.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/logger"
)

// Mode tells the provider which shape of completion a call wants, per
// §4.3's generate(prompt, mode) contract: json for a structured-payload
// response (the default for every phase runner), text for a call whose
// response is consumed verbatim (e.g. a repair prompt returning raw
// HCL, not JSON).
type Mode string

const (
	// ModeJSON asks the provider to return a single JSON object and
	// nothing else. It is the zero value so existing call sites that
	// never set Mode keep today's JSON-extraction behavior.
	ModeJSON Mode = ""
	ModeText Mode = "text"
)

// jsonModeInstruction is appended to the system prompt (or, absent one,
// folded into the user prompt) whenever Mode is ModeJSON, so the
// instruction to emit JSON-only lives in one place instead of being
// repeated in every phase runner's hand-written system prompt.
const jsonModeInstruction = "\n\nRespond with a single JSON object only: no prose, no markdown fences."

// Options carries the per-call generation parameters.
type Options struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	Mode         Mode
}

// withModeInstruction returns opts with the JSON-mode instruction folded
// into its system prompt, unless Mode is ModeText.
func (o Options) withModeInstruction() Options {
	if o.Mode == ModeText {
		return o
	}
	o.SystemPrompt = strings.TrimSpace(o.SystemPrompt + jsonModeInstruction)
	return o
}

// Response is a provider's raw answer before JSON coercion.
type Response struct {
	Content string
	Model   string
}

// StreamChunk is one piece of a streamed completion. A chunk carrying a
// non-nil Err terminates the sequence — the provider must close its
// channel immediately after sending one, successful or not.
type StreamChunk struct {
	Content string
	Err     error
}

// Provider is implemented by each concrete backend (Bedrock,
// OpenAI-compatible, generic HTTP). §4.3 names two distinct operations:
// a unary GenerateResponse and a streaming GenerateStream returning a
// lazy sequence of chunks — everything about the model itself is opaque,
// per §0's "language-model backend" external collaborator.
type Provider interface {
	Name() string
	GenerateResponse(ctx context.Context, prompt string, opts Options) (*Response, error)
	GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan StreamChunk, error)
}

// ChunksFromText wraps a complete response as a single-chunk stream,
// already closed. Backends with no incremental token API of their own
// (or tests standing in for one) can satisfy Provider.GenerateStream by
// calling GenerateResponse and handing the result to this helper.
func ChunksFromText(content string) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: content}
	close(ch)
	return ch
}

// circuitState mirrors the teacher's resilience.CircuitState.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreakerConfig configures the breaker wrapped around Provider
// calls.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

func defaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, OpenDuration: 30 * time.Second}
}

// RetryConfig bounds the Client's fixed-backoff retry loop, matching
// §4.3's "retry N=5 times with fixed delay ~5s, else raise as fatal".
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, Delay: 5 * time.Second}
}

// Client wraps a Provider with retry and circuit-breaking. It is safe
// for concurrent use.
type Client struct {
	provider Provider
	retry    RetryConfig
	cb       CircuitBreakerConfig
	log      logger.Logger

	mu              sync.Mutex
	state           circuitState
	consecutiveFail int
	openedAt        time.Time
}

// New wraps provider with the default retry/circuit-breaker policy.
func New(provider Provider, log logger.Logger) *Client {
	return &Client{
		provider: provider,
		retry:    defaultRetryConfig(),
		cb:       defaultCircuitBreakerConfig(),
		log:      log,
	}
}

// WithRetryConfig overrides the retry policy (used by tests and by
// config-driven MaxAttempts/RetryDelay).
func (c *Client) WithRetryConfig(cfg RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Generate calls the wrapped provider, retrying transient failures up to
// MaxAttempts times with a fixed delay between attempts. A tripped
// circuit short-circuits immediately with ErrCircuitOpen until
// OpenDuration elapses, at which point a single trial call is allowed
// (half-open) to decide whether to close again.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if !c.allowRequest() {
		return nil, graphmodel.NewError("llm.Generate", "circuit_open", graphmodel.ErrCircuitOpen)
	}
	opts = opts.withModeInstruction()

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		resp, err := c.provider.GenerateResponse(ctx, prompt, opts)
		if err == nil {
			c.recordSuccess()
			return resp, nil
		}
		lastErr = err
		c.recordFailure()

		if !isRetryableProviderError(err) {
			return nil, graphmodel.NewError("llm.Generate", "non_transient", fmt.Errorf("%w: %v", graphmodel.ErrNonTransientBackend, err))
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		c.log.Warn("model call failed, retrying", "provider", c.provider.Name(), "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retry.Delay):
		}
	}
	return nil, graphmodel.NewError("llm.Generate", "max_retries", fmt.Errorf("%w: %v", graphmodel.ErrMaxRetriesExceeded, lastErr))
}

// GenerateStream calls the wrapped provider in streaming mode, applying
// the same fixed-backoff retry and circuit breaker as Generate. Per
// §4.3/§9, a retry reopens the stream from scratch and discards
// whatever had already accumulated from the failed attempt — callers
// never see a partial buffer stitched onto a fresh one, only either a
// complete accumulated Response or a terminal error.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if !c.allowRequest() {
		return nil, graphmodel.NewError("llm.GenerateStream", "circuit_open", graphmodel.ErrCircuitOpen)
	}
	opts = opts.withModeInstruction()

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		content, err := c.drainStream(ctx, prompt, opts)
		if err == nil {
			c.recordSuccess()
			return &Response{Content: content, Model: opts.Model}, nil
		}
		lastErr = err
		c.recordFailure()

		if !isRetryableProviderError(err) {
			return nil, graphmodel.NewError("llm.GenerateStream", "non_transient", fmt.Errorf("%w: %v", graphmodel.ErrNonTransientBackend, err))
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		c.log.Warn("streaming model call failed, discarding buffer and restarting", "provider", c.provider.Name(), "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retry.Delay):
		}
	}
	return nil, graphmodel.NewError("llm.GenerateStream", "max_retries", fmt.Errorf("%w: %v", graphmodel.ErrMaxRetriesExceeded, lastErr))
}

// drainStream opens one streaming call and accumulates every chunk into
// a single string. The buffer being built here is local to one attempt:
// if the provider reports an error mid-stream, drainStream returns it
// and the partial content is simply dropped with it, never returned to
// the caller.
func (c *Client) drainStream(ctx context.Context, prompt string, opts Options) (string, error) {
	chunks, err := c.provider.GenerateStream(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		buf.WriteString(chunk.Content)
	}
	return buf.String(), nil
}

func (c *Client) allowRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case circuitOpen:
		if time.Since(c.openedAt) >= c.cb.OpenDuration {
			c.state = circuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFail = 0
	c.state = circuitClosed
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFail++
	if c.state == circuitHalfOpen || c.consecutiveFail >= c.cb.FailureThreshold {
		c.state = circuitOpen
		c.openedAt = time.Now()
	}
}

// isRetryableProviderError classifies everything except context
// cancellation as transient: the provider boundary is opaque (§0), so
// the client cannot distinguish a malformed-request error from a
// throttled one beyond what ctx tells it.
func isRetryableProviderError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
