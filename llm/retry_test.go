package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient fails a fixed number of times before succeeding.
type scriptedClient struct {
	failures int
	err      error
	calls    int
}

func (s *scriptedClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.err
	}
	return &session.Message{Role: session.RoleAssistant, Content: "ok"}, nil
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind errors.Kind
	}{
		{fmt.Errorf("429 Too Many Requests"), errors.KindProviderRateLimited},
		{fmt.Errorf("rate limit exceeded"), errors.KindProviderRateLimited},
		{fmt.Errorf("model overloaded, try again"), errors.KindProviderRateLimited},
		{fmt.Errorf("dial tcp: connection refused"), errors.KindProviderUnavailable},
		{fmt.Errorf("received 503 Service Unavailable"), errors.KindProviderUnavailable},
		{fmt.Errorf("unexpected EOF"), errors.KindProviderUnavailable},
	}

	for _, tc := range cases {
		got := Classify(tc.err)
		kind, ok := errors.KindOf(got)
		require.True(t, ok, "classifying %q", tc.err)
		assert.Equal(t, tc.kind, kind, "classifying %q", tc.err)
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	err := errors.WithKind(errors.KindMalformedUpstreamResponse, errors.New("bad payload"))
	got := Classify(err)
	kind, ok := errors.KindOf(got)
	require.True(t, ok)
	assert.Equal(t, errors.KindMalformedUpstreamResponse, kind)
}

func TestClassifyNonRetryable(t *testing.T) {
	got := Classify(fmt.Errorf("invalid request: unknown model"))
	assert.False(t, errors.IsRetryable(got))
}

func TestChatWithRetryRecovers(t *testing.T) {
	client := &scriptedClient{failures: 2, err: fmt.Errorf("503 Service Unavailable")}
	retry := config.Retry{MaxRetries: 3, BackoffBase: time.Millisecond}

	msg, err := ChatWithRetry(context.Background(), client, nil, nil, retry)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 3, client.calls)
}

func TestChatWithRetryExhausts(t *testing.T) {
	client := &scriptedClient{failures: 10, err: fmt.Errorf("429 Too Many Requests")}
	retry := config.Retry{MaxRetries: 2, BackoffBase: time.Millisecond}

	_, err := ChatWithRetry(context.Background(), client, nil, nil, retry)
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindProviderRateLimited, kind)
	assert.Equal(t, 3, client.calls)
}

func TestChatWithRetryStopsOnNonRetryable(t *testing.T) {
	client := &scriptedClient{failures: 10, err: fmt.Errorf("invalid request")}
	retry := config.Retry{MaxRetries: 5, BackoffBase: time.Millisecond}

	_, err := ChatWithRetry(context.Background(), client, nil, nil, retry)
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestChatWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{failures: 10, err: fmt.Errorf("503 Service Unavailable")}
	retry := config.Retry{MaxRetries: 5, BackoffBase: time.Second}

	_, err := ChatWithRetry(ctx, client, nil, nil, retry)
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindCancellationRequested, kind)
}
