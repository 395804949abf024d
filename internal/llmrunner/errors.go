package llmrunner

import (
	"context"
	"errors"
	"net"
	"syscall"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hrygo/agentshell/internal/queue"
)

// classifyOpenAIError maps a go-openai client error onto the explicit
// transient-error sentinel set so the Priority Queue's retry predicate
// can classify it without string matching (SPEC_FULL §7). Context
// deadline/cancellation is passed through unwrapped: it is never
// retried.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return queue.ErrRateLimited
		case apiErr.HTTPStatusCode >= 500:
			return queue.ErrUpstreamUnavailable
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return queue.ErrUpstreamUnavailable
		}
		return err
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return queue.ErrConnectionReset
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return queue.ErrUpstreamUnavailable
	}

	return err
}
