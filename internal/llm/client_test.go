package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/logger"
)

type fakeProvider struct {
	calls   int
	failN   int // fail the first failN calls
	failErr error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateResponse(ctx context.Context, prompt string, opts Options) (*Response, error) {
	f.calls++
	if f.calls <= f.failN {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errors.New("transient failure")
	}
	return &Response{Content: "ok", Model: opts.Model}, nil
}

func (f *fakeProvider) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan StreamChunk, error) {
	resp, err := f.GenerateResponse(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return ChunksFromText(resp.Content), nil
}

func TestGenerateSucceedsAfterTransientFailures(t *testing.T) {
	p := &fakeProvider{failN: 2}
	c := New(p, logger.NoOp()).WithRetryConfig(RetryConfig{MaxAttempts: 5, Delay: time.Millisecond})

	resp, err := c.Generate(context.Background(), "prompt", Options{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, p.calls)
}

func TestGenerateFailsAfterMaxAttempts(t *testing.T) {
	p := &fakeProvider{failN: 100}
	c := New(p, logger.NoOp()).WithRetryConfig(RetryConfig{MaxAttempts: 3, Delay: time.Millisecond})

	_, err := c.Generate(context.Background(), "prompt", Options{})
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestGenerateRespectsContextCancellation(t *testing.T) {
	p := &fakeProvider{failN: 100}
	c := New(p, logger.NoOp()).WithRetryConfig(RetryConfig{MaxAttempts: 5, Delay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Generate(ctx, "prompt", Options{})
	require.Error(t, err)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	p := &fakeProvider{failN: 100}
	c := New(p, logger.NoOp()).WithRetryConfig(RetryConfig{MaxAttempts: 1, Delay: time.Millisecond})
	c.cb = CircuitBreakerConfig{FailureThreshold: 2, OpenDuration: time.Hour}

	_, _ = c.Generate(context.Background(), "p", Options{})
	_, _ = c.Generate(context.Background(), "p", Options{})

	_, err := c.Generate(context.Background(), "p", Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "circuit")
}
