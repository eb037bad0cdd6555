package testutils

import (
	"context"
	"sync"

	"spot_bot/internal/models"
	"spot_bot/internal/positions"
)

// MockStore: хранилище позиций в памяти. Каждый Save сохраняет копию для проверок.
type MockStore struct {
	mu      sync.Mutex
	data    models.Positions
	status  positions.LoadStatus
	SaveErr error
	saves   []models.Positions
}

func NewMockStore(initial models.Positions) *MockStore {
	s := &MockStore{data: initial.Clone(), status: positions.StatusValid}
	if initial == nil {
		s.status = positions.StatusEmpty
	}
	return s
}

// MarkCorrupt: следующий Load вернёт StatusCorrupt и пустой набор.
func (s *MockStore) MarkCorrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = positions.StatusCorrupt
}

func (s *MockStore) Load(context.Context) positions.LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == positions.StatusCorrupt {
		s.status = positions.StatusEmpty
		s.data = models.Positions{}
		return positions.LoadResult{Positions: models.Positions{}, Status: positions.StatusCorrupt}
	}
	return positions.LoadResult{Positions: s.data.Clone(), Status: s.status}
}

func (s *MockStore) Save(_ context.Context, p models.Positions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.data = p.Clone()
	s.status = positions.StatusValid
	s.saves = append(s.saves, p.Clone())
	return nil
}

func (s *MockStore) Data() models.Positions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

func (s *MockStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}
