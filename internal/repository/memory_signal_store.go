package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// MemorySignalStore keeps signals in a map. Used for store.backend=memory and in tests.
type MemorySignalStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*models.Signal
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{rows: make(map[int64]*models.Signal)}
}

func (s *MemorySignalStore) Save(_ context.Context, sig *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sig.ID = s.nextID
	cp := cloneSignal(sig)
	s.rows[sig.ID] = &cp
	return nil
}

func (s *MemorySignalStore) Get(_ context.Context, id int64) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, domrepo.ErrSignalNotFound
	}
	cp := cloneSignal(row)
	return &cp, nil
}

func (s *MemorySignalStore) Query(_ context.Context, f domrepo.SignalFilter) ([]models.Signal, int, error) {
	s.mu.RLock()
	matched := make([]models.Signal, 0)
	for _, row := range s.rows {
		if matches(row, f) {
			matched = append(matched, cloneSignal(row))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].GeneratedAt.Equal(matched[j].GeneratedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].GeneratedAt.After(matched[j].GeneratedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if f.Offset >= total {
		return []models.Signal{}, total, nil
	}
	end := f.Offset + limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (s *MemorySignalStore) ListOpen(_ context.Context) ([]models.Signal, error) {
	s.mu.RLock()
	out := make([]models.Signal, 0)
	for _, row := range s.rows {
		if !row.Status.IsTerminal() {
			out = append(out, cloneSignal(row))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySignalStore) UpdateStatus(_ context.Context, id int64, from, to models.SignalStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return false, domrepo.ErrSignalNotFound
	}
	if row.Status != from {
		return false, nil
	}
	row.Status = to
	return true, nil
}

func (s *MemorySignalStore) BulkUpdateExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, row := range s.rows {
		if !row.Status.IsTerminal() && row.ValidUntil.Before(now) {
			row.Status = models.StatusExpired
			n++
		}
	}
	return n, nil
}

func matches(row *models.Signal, f domrepo.SignalFilter) bool {
	if f.Symbol != "" && row.Symbol != f.Symbol {
		return false
	}
	if f.Timeframe != "" && row.Timeframe != f.Timeframe {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if row.Status == st {
			return true
		}
	}
	return false
}

func cloneSignal(s *models.Signal) models.Signal {
	cp := *s
	cp.AlgorithmsTriggered = append([]string(nil), s.AlgorithmsTriggered...)
	return cp
}
