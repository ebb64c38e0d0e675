package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedBus "github.com/davicafu/hexadelivery/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// InMemoryOutboxStore implementa OutboxStore con la misma semántica que los stores SQL.
type InMemoryOutboxStore struct {
	rows map[uuid.UUID]*sharedDomain.OutboxMessage
	mu   sync.Mutex
}

var _ sharedDomain.OutboxStore = (*InMemoryOutboxStore)(nil)

func NewInMemoryOutboxStore(msgs ...sharedDomain.OutboxMessage) *InMemoryOutboxStore {
	s := &InMemoryOutboxStore{rows: make(map[uuid.UUID]*sharedDomain.OutboxMessage)}
	s.Add(msgs...)
	return s
}

func (s *InMemoryOutboxStore) Add(msgs ...sharedDomain.OutboxMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		m := m
		s.rows[m.ID] = &m
	}
}

func (s *InMemoryOutboxStore) Get(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return sharedDomain.OutboxMessage{}, sharedDomain.ErrOutboxMessageNotFound
	}
	return *m, nil
}

func (s *InMemoryOutboxStore) FetchDue(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []sharedDomain.OutboxMessage
	for _, m := range s.rows {
		if m.Status == sharedDomain.OutboxPending {
			due = append(due, *m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].ID.String() < due[j].ID.String()
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemoryOutboxStore) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return false, sharedDomain.ErrOutboxMessageNotFound
	}
	if m.Status != sharedDomain.OutboxPending {
		return false, nil
	}
	m.Status = sharedDomain.OutboxProcessing
	m.ClaimedAt = &at
	m.Attempts++
	return true, nil
}

func (s *InMemoryOutboxStore) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return sharedDomain.ErrOutboxMessageNotFound
	}
	if m.Status != sharedDomain.OutboxProcessing {
		return sharedDomain.ResolveUnapplied(m.Status, sharedDomain.OutboxProcessed)
	}
	m.Status = sharedDomain.OutboxProcessed
	m.ProcessedAt = &at
	m.ErrorMessage = nil
	return nil
}

func (s *InMemoryOutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return sharedDomain.ErrOutboxMessageNotFound
	}
	if m.Status != sharedDomain.OutboxProcessing {
		return sharedDomain.ResolveUnapplied(m.Status, sharedDomain.OutboxFailed)
	}
	m.Status = sharedDomain.OutboxFailed
	m.ErrorMessage = &reason
	return nil
}

func (s *InMemoryOutboxStore) ReclaimStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.rows {
		if m.Status == sharedDomain.OutboxProcessing && m.ClaimedAt != nil && !m.ClaimedAt.After(claimedBefore) {
			m.Status = sharedDomain.OutboxPending
			m.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryOutboxStore) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.rows {
		if m.Status == sharedDomain.OutboxFailed && m.Attempts < maxAttempts {
			m.Status = sharedDomain.OutboxPending
			m.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryOutboxStore) CountByStatus(ctx context.Context) (map[sharedDomain.OutboxStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[sharedDomain.OutboxStatus]int64)
	for _, m := range s.rows {
		counts[m.Status]++
	}
	return counts, nil
}

// MockOutboxStore es el mock de testify para forzar errores del store.
type MockOutboxStore struct {
	mock.Mock
}

var _ sharedDomain.OutboxStore = (*MockOutboxStore)(nil)

func (m *MockOutboxStore) FetchDue(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxStore) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxStore) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockOutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	args := m.Called(ctx, id, reason, at)
	return args.Error(0)
}

func (m *MockOutboxStore) ReclaimStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	args := m.Called(ctx, claimedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxStore) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	args := m.Called(ctx, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxStore) CountByStatus(ctx context.Context) (map[sharedDomain.OutboxStatus]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[sharedDomain.OutboxStatus]int64), args.Error(1)
}

func (m *MockOutboxStore) Get(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(sharedDomain.OutboxMessage), args.Error(1)
}

// MockPublisher simula el broker.
type MockPublisher struct {
	mock.Mock
}

var (
	_ sharedBus.Publisher      = (*MockPublisher)(nil)
	_ sharedBus.KeyedPublisher = (*MockPublisher)(nil)
)

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

func (m *MockPublisher) PublishKeyed(ctx context.Context, topic, key string, payload []byte) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}
