package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dibs-shares/shares-server/pkg/database/memory"
	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
)

type store struct {
	mu      sync.RWMutex
	records []*balance.Record
	last    uint64
}

func New() balance.Store {
	return &store{}
}

func (s *store) Save(ctx context.Context, data *balance.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if item := s.find(data.Mint, data.Owner); item != nil {
		if item.Version != data.Version {
			return balance.ErrStaleVersion
		}

		previous := item.Clone()
		memory.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			previous.CopyTo(item)
		})

		data.Version++
		data.LastUpdatedAt = now

		item.Quarks = data.Quarks
		item.Version = data.Version
		item.LastUpdatedAt = data.LastUpdatedAt

		return nil
	}

	s.last++
	if data.Id == 0 {
		data.Id = s.last
	}
	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	data.LastUpdatedAt = now
	data.Version++

	c := data.Clone()
	s.records = append(s.records, &c)

	id := c.Id
	memory.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.remove(id)
	})

	return nil
}

func (s *store) Get(_ context.Context, mint, owner string) (*balance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.find(mint, owner)
	if item == nil {
		return nil, balance.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) find(mint, owner string) *balance.Record {
	for _, item := range s.records {
		if item.Mint == mint && item.Owner == owner {
			return item
		}
	}
	return nil
}

func (s *store) remove(id uint64) {
	for i, item := range s.records {
		if item.Id == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
