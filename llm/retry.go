package llm

import (
	"context"
	"strings"
	"time"

	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

// Classify tags a provider error with its failure kind. Errors that already
// carry a kind pass through unchanged; everything else is inspected for the
// common throttle and connectivity signatures. Errors that match nothing are
// returned untagged, which makes them non-retryable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.KindOf(err); ok {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "throttl"):
		return errors.WithKind(errors.KindProviderRateLimited, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "unexpected eof"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return errors.WithKind(errors.KindProviderUnavailable, err)
	}
	return err
}

// ChatWithRetry calls the client, retrying retryable failures with bounded
// exponential backoff. Rate-limit failures wait twice as long per attempt,
// standing in for a provider retry hint. Cancellation aborts the backoff
// sleep immediately and surfaces as KindCancellationRequested.
func ChatWithRetry(ctx context.Context, c Client, messages []session.Message, availableTools []tools.Tool, retry config.Retry) (*session.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retry.BackoffBase << (attempt - 1)
			if kind, _ := errors.KindOf(lastErr); kind == errors.KindProviderRateLimited {
				delay *= 2
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errors.WithKind(errors.KindCancellationRequested, ctx.Err())
			}
		}

		reply, err := c.Chat(ctx, messages, availableTools)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return nil, errors.WithKind(errors.KindCancellationRequested, ctx.Err())
		}
		err = Classify(err)
		if !errors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
