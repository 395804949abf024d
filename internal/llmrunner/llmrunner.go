// Package llmrunner is the reference implementation of the task-runner
// collaborator contract (spec.md §4.6) against an OpenAI-compatible
// endpoint via github.com/sashabaranov/go-openai. It is wired by
// cmd/agentshell so the shell is runnable end-to-end; it is not part
// of the core (SPEC_FULL §4.6).
package llmrunner

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hrygo/agentshell/internal/processor"
	"github.com/hrygo/agentshell/internal/queue"
)

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	// RequestTimeout bounds a single chat completion call.
	RequestTimeout time.Duration
}

// Runner implements processor.TaskRunner against an OpenAI-compatible
// chat completions endpoint.
type Runner struct {
	client *openai.Client
	cfg    Config
}

// New constructs a Runner from cfg.
func New(cfg Config) *Runner {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = newHTTPClient()
	return &Runner{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Run sends message as a single-turn chat completion, honoring both
// ctx and the cancellation token: whichever fires first aborts the
// in-flight HTTP call.
func (r *Runner) Run(ctx context.Context, message string, token *queue.CancelToken) (processor.RunResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	if token != nil {
		go func() {
			select {
			case <-token.Done():
				cancel()
			case <-callCtx.Done():
			}
		}()
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return processor.RunResult{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return processor.RunResult{}, errors.New("llmrunner: empty response")
	}

	return processor.RunResult{
		Text:       resp.Choices[0].Message.Content,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}
