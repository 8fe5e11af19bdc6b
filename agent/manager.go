package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/llm"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

// SessionMode says whether a session is addressable across requests.
type SessionMode string

const (
	// SessionEphemeral sessions exist for one external request and are never
	// entered into the manager's table, so no other request can observe them.
	SessionEphemeral SessionMode = "ephemeral"
	// SessionPersistent sessions survive until deleted or idle-evicted.
	SessionPersistent SessionMode = "persistent"
)

// Session binds exactly one conversation and its driving agent under an id.
type Session struct {
	ID        string
	Mode      SessionMode
	CreatedAt time.Time

	agent *Agent

	mu         sync.Mutex
	lastActive time.Time
}

func (s *Session) Agent() *Agent                       { return s.agent }
func (s *Session) Conversation() *session.Conversation { return s.agent.Conversation() }
func (s *Session) Bus() *events.Bus                    { return s.agent.Bus() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// ProcessTurn submits a user turn to the session's agent and refreshes the
// idle clock.
func (s *Session) ProcessTurn(ctx context.Context, userInput string) error {
	s.touch()
	defer s.touch()
	return s.agent.ProcessTurn(ctx, userInput)
}

// Summary is the listing view of a session.
type Summary struct {
	ID         string         `json:"id"`
	Mode       SessionMode    `json:"mode"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	Status     session.Status `json:"status"`
	Turns      int            `json:"turns"`
}

// Manager owns the table of live persistent sessions. It is the only
// process-wide mutable shared state; everything else funnels through a
// session's single owning agent.
type Manager struct {
	cfg         *config.Config
	client      llm.Client
	activeTools []tools.Tool

	mu       sync.Mutex
	sessions map[string]*Session

	sweeperStop chan struct{}
	sweeperDone chan struct{}
}

// NewManager builds a manager. Sessions it creates share the provider client
// and tool set but each gets its own conversation, bus, and agent.
func NewManager(cfg *config.Config, client llm.Client, activeTools []tools.Tool) *Manager {
	m := &Manager{
		cfg:         cfg,
		client:      client,
		activeTools: activeTools,
		sessions:    make(map[string]*Session),
		sweeperStop: make(chan struct{}),
		sweeperDone: make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *Manager) agentConfig() Config {
	return Config{
		SystemPrompt: m.cfg.SystemPrompt,
		TurnBudget:   m.cfg.TurnBudget,
		ToolTimeout:  m.cfg.ToolTimeout,
		Retry:        m.cfg.Retry,
	}
}

func (m *Manager) newSession(id string, mode SessionMode) *Session {
	conv := session.NewConversation(id)
	bus := events.NewBus()
	now := time.Now()
	return &Session{
		ID:         id,
		Mode:       mode,
		CreatedAt:  now,
		lastActive: now,
		agent:      New(m.agentConfig(), conv, bus, m.client, m.activeTools, ModeAuto, nil),
	}
}

// CreateEphemeral builds a throwaway session. It is never entered into the
// session table: its id cannot be resolved by Get, now or later.
func (m *Manager) CreateEphemeral() *Session {
	return m.newSession("sess_"+uuid.NewString(), SessionEphemeral)
}

// Create registers a new persistent session, generating an id when none is
// given. Fails when the table is full or the id is taken.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		id = "sess_" + uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.cfg.Server.MaxSessions {
		return nil, errors.New("session limit of %d reached", m.cfg.Server.MaxSessions)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session '%s' already exists", id)
	}
	s := m.newSession(id, SessionPersistent)
	m.sessions[id] = s
	return s, nil
}

// Get resolves a persistent session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Newf(errors.KindSessionNotFound, "session '%s' not found", id)
	}
	return s, nil
}

// GetOrCreate resolves a persistent session, creating it on first use.
// Concurrent first requests for the same id all receive the same session.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if len(m.sessions) >= m.cfg.Server.MaxSessions {
		return nil, errors.New("session limit of %d reached", m.cfg.Server.MaxSessions)
	}
	s := m.newSession(id, SessionPersistent)
	m.sessions[id] = s
	return s, nil
}

// Delete tears a session down, cancelling any in-flight turn.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.Newf(errors.KindSessionNotFound, "session '%s' not found", id)
	}
	s.agent.Cancel("session deleted")
	return nil
}

// List returns a summary of every live persistent session.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		conv := s.Conversation()
		out = append(out, Summary{
			ID:         s.ID,
			Mode:       s.Mode,
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive(),
			Status:     conv.Status(),
			Turns:      conv.Turns(),
		})
	}
	return out
}

// Cancel asks a session's conversation to stop. Unknown ids are an error;
// cancelling an already-terminal conversation is not.
func (m *Manager) Cancel(id, reason string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.agent.Cancel(reason)
	return nil
}

// sweep evicts persistent sessions that sat idle past the configured timeout.
// Eviction never interrupts an in-flight turn: sessions in an awaiting state
// are skipped until they return to idle or end.
func (m *Manager) sweep() {
	defer close(m.sweeperDone)
	interval := m.cfg.Server.SessionIdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.sweeperStop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.Server.SessionIdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if !s.LastActive().Before(cutoff) {
			continue
		}
		status := s.Conversation().Status()
		if status == session.StatusAwaitingModel || status == session.StatusAwaitingTool {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.agent.Cancel("session evicted after idle timeout")
	}
}

// Shutdown stops the sweeper and drains the table, giving in-flight
// conversations until the grace period to finish before cancelling them.
func (m *Manager) Shutdown(ctx context.Context) {
	close(m.sweeperStop)
	<-m.sweeperDone

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !m.anyInFlight() {
			break
		}
		select {
		case <-ctx.Done():
		case <-deadline.C:
		case <-ticker.C:
			continue
		}
		break
	}

	m.mu.Lock()
	remaining := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		delete(m.sessions, id)
		remaining = append(remaining, s)
	}
	m.mu.Unlock()
	for _, s := range remaining {
		s.agent.Cancel("server shutting down")
	}
}

func (m *Manager) anyInFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		status := s.Conversation().Status()
		if status == session.StatusAwaitingModel || status == session.StatusAwaitingTool {
			return true
		}
	}
	return false
}
