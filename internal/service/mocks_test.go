package service

import (
	"context"
	"sync"
	"time"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/repository"
)

type mockCredentialRepo struct {
	creds map[string]*domain.Credential
}

func newMockCredentialRepo() *mockCredentialRepo {
	return &mockCredentialRepo{creds: make(map[string]*domain.Credential)}
}

func (m *mockCredentialRepo) Create(_ context.Context, cred *domain.Credential) error {
	if _, exists := m.creds[cred.ClientID]; exists {
		return repository.ErrExists
	}
	m.creds[cred.ClientID] = cred
	return nil
}

func (m *mockCredentialRepo) FindByClientID(_ context.Context, clientID string) (*domain.Credential, error) {
	if c, ok := m.creds[clientID]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

type mockReviewRepo struct {
	items     map[string]*domain.ReviewItem
	updateErr error
}

func newMockReviewRepo(items ...*domain.ReviewItem) *mockReviewRepo {
	m := &mockReviewRepo{items: make(map[string]*domain.ReviewItem)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockReviewRepo) Create(_ context.Context, item *domain.ReviewItem) error {
	if _, exists := m.items[item.ID]; exists {
		return repository.ErrExists
	}
	m.items[item.ID] = item
	return nil
}

func (m *mockReviewRepo) Get(_ context.Context, id string) (*domain.ReviewItem, error) {
	if it, ok := m.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockReviewRepo) ListPending(_ context.Context) ([]*domain.ReviewItem, error) {
	var out []*domain.ReviewItem
	for _, it := range m.items {
		if it.Status == domain.ReviewPending {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) Update(_ context.Context, item *domain.ReviewItem) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.items[item.ID] = item
	return nil
}

type mockDeadLetterRepo struct {
	items map[string]*domain.DeadLetter
}

func newMockDeadLetterRepo() *mockDeadLetterRepo {
	return &mockDeadLetterRepo{items: make(map[string]*domain.DeadLetter)}
}

func (m *mockDeadLetterRepo) Create(_ context.Context, dl *domain.DeadLetter) error {
	m.items[dl.ID] = dl
	return nil
}

func (m *mockDeadLetterRepo) Get(_ context.Context, id string) (*domain.DeadLetter, error) {
	if dl, ok := m.items[id]; ok {
		return dl, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockDeadLetterRepo) List(_ context.Context, limit int) ([]*domain.DeadLetter, error) {
	var out []*domain.DeadLetter
	for _, dl := range m.items {
		out = append(out, dl)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockDeadLetterRepo) Delete(_ context.Context, dl *domain.DeadLetter) error {
	if _, ok := m.items[dl.ID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.items, dl.ID)
	return nil
}

type mockStore struct {
	records map[string]*domain.CanonicalRecord
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]*domain.CanonicalRecord)}
}

func (m *mockStore) Get(_ context.Context, et domain.EntityType, id string) (*domain.CanonicalRecord, error) {
	return m.records[domain.RecordKey(et, id)].Clone(), nil
}

func (m *mockStore) Put(_ context.Context, rec *domain.CanonicalRecord) error {
	m.records[rec.Key()] = rec.Clone()
	return nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.EntityUpdated
}

func (m *mockNotifier) Notify(n domain.EntityUpdated) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
