package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManagerConfig() *config.Config {
	return &config.Config{
		TurnBudget:  4,
		ToolTimeout: time.Second,
		Retry:       config.Retry{MaxRetries: 1, BackoffBase: time.Millisecond},
		Server: config.Server{
			MaxSessions:        3,
			SessionIdleTimeout: time.Hour,
		},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	client := &scriptedLLM{replies: []*session.Message{textReply("ok")}}
	m := NewManager(testManagerConfig(), client, nil)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func TestManagerCreateAndGet(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create("")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestManagerGetUnknown(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Get("sess_missing")
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindSessionNotFound, kind)
}

func TestManagerEphemeralNeverResolvable(t *testing.T) {
	m := newTestManager(t)

	s := m.CreateEphemeral()
	require.NoError(t, s.ProcessTurn(context.Background(), "hello"))
	s.Agent().Complete()

	_, err := m.Get(s.ID)
	require.Error(t, err)
	assert.Empty(t, m.List())
}

func TestManagerSessionLimit(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 3; i++ {
		_, err := m.Create("")
		require.NoError(t, err)
	}
	_, err := m.Create("")
	require.Error(t, err)
}

func TestManagerDuplicateID(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("sess_fixed")
	require.NoError(t, err)
	_, err = m.Create("sess_fixed")
	require.Error(t, err)
}

func TestManagerGetOrCreate(t *testing.T) {
	m := newTestManager(t)

	a, err := m.GetOrCreate("sess_shared")
	require.NoError(t, err)
	b, err := m.GetOrCreate("sess_shared")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestManagerGetOrCreateConcurrentFirstUse(t *testing.T) {
	m := newTestManager(t)

	const callers = 16
	sessions := make([]*Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = m.GetOrCreate("sess_raced")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create("")
	require.NoError(t, err)
	require.NoError(t, m.Delete(s.ID))

	_, err = m.Get(s.ID)
	require.Error(t, err)
	assert.Equal(t, session.StatusCancelled, s.Conversation().Status())

	require.Error(t, m.Delete(s.ID))
}

func TestManagerList(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create("")
	require.NoError(t, err)
	require.NoError(t, s.ProcessTurn(context.Background(), "hello"))

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].ID)
	assert.Equal(t, SessionPersistent, list[0].Mode)
	assert.Equal(t, 1, list[0].Turns)
	assert.Equal(t, session.StatusRunning, list[0].Status)
}

func TestManagerCancel(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create("")
	require.NoError(t, err)

	require.NoError(t, m.Cancel(s.ID, "test cancel"))
	assert.Equal(t, session.StatusCancelled, s.Conversation().Status())

	// Idempotent through the manager as well.
	require.NoError(t, m.Cancel(s.ID, "again"))

	require.Error(t, m.Cancel("sess_missing", "nope"))
}

func TestManagerEvictsIdleSessions(t *testing.T) {
	cfg := testManagerConfig()
	cfg.Server.SessionIdleTimeout = 10 * time.Millisecond
	client := &scriptedLLM{replies: []*session.Message{textReply("ok")}}
	m := NewManager(cfg, client, nil)
	defer m.Shutdown(context.Background())

	s, err := m.Create("")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := m.Get(s.ID)
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, session.StatusCancelled, s.Conversation().Status())
}
