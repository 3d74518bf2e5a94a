package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

// Memory keeps sessions in a map. Sessions live as long as the process.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: map[string]Session{}, now: time.Now}
}

func (m *Memory) Create(_ context.Context, appID, email string) (Session, error) {
	s := newSession(uuid.NewString(), appID, email, m.now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s.clone(), nil
}

func (m *Memory) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, errors.Wrap(ErrNotFound, id)
	}

	return s.clone(), nil
}

func (m *Memory) Upsert(_ context.Context, id string, outputs wire.Outputs) (Session, error) {
	return m.update(id, func(s Session) Session {
		return s.merge(outputs, m.now())
	})
}

func (m *Memory) SetStatus(_ context.Context, id string, statuses map[string]workflow.Status) (Session, error) {
	if err := ValidateStatuses(statuses); err != nil {
		return Session{}, err
	}

	return m.update(id, func(s Session) Session {
		return s.withStatus(statuses, m.now())
	})
}

func (m *Memory) update(id string, fn func(Session) Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, errors.Wrap(ErrNotFound, id)
	}

	s = fn(s)
	m.sessions[id] = s

	return s.clone(), nil
}

var _ Store = (*Memory)(nil)
