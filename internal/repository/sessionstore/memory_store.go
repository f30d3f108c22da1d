package sessionstore

import (
	"context"
	"sync"
	"time"

	"chargecast-service/internal/domain/activity"
)

// MemoryStore keeps sessions in process memory. State does not survive a
// restart and is invisible to other instances; acceptable because
// delivery is idempotent and a missed cycle is recovered on the next one.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*activity.Session
	nowFn    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*activity.Session),
		nowFn:    time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, session *activity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	copied.LastUpdatedAt = m.nowFn()
	m.sessions[session.ActivityID] = &copied
	return nil
}

func (m *MemoryStore) UpdateState(_ context.Context, activityID string, state activity.ChargeState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[activityID]
	if !ok {
		return false, nil
	}
	session.State = state
	session.LastUpdatedAt = m.nowFn()
	return true, nil
}

func (m *MemoryStore) SetPushToken(_ context.Context, activityID, pushToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[activityID]; ok {
		session.PushToken = pushToken
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, activityID string) (*activity.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[activityID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (m *MemoryStore) Remove(_ context.Context, activityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, activityID)
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context, staleAfter time.Duration) ([]*activity.Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	live := make([]*activity.Session, 0, len(m.sessions))
	pruned := 0

	for id, session := range m.sessions {
		if session.Age(now) >= staleAfter {
			delete(m.sessions, id)
			pruned++
			continue
		}
		copied := *session
		live = append(live, &copied)
	}
	return live, pruned, nil
}
