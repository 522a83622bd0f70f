package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dibs-shares/shares-server/pkg/database/memory"
	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/market"
)

type ById []*market.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.RWMutex
	records []*market.Record
	last    uint64
}

func New() market.Store {
	return &store{}
}

func (s *store) Save(ctx context.Context, data *market.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(data.Address); item != nil {
		if item.Version != data.Version {
			return market.ErrStaleVersion
		}

		previous := item.Clone()
		memory.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			previous.CopyTo(item)
		})

		data.Version++

		item.ContinuousSupply = data.ContinuousSupply
		item.ReserveBalance = data.ReserveBalance
		item.CreatorFeesAccrued = data.CreatorFeesAccrued
		item.BeneficiaryFeesAccrued = data.BeneficiaryFeesAccrued
		item.IsPaused = data.IsPaused
		item.Version = data.Version

		return nil
	}

	if s.findByCreator(data.Creator) != nil || s.findByIndex(data.Index) != nil {
		return market.ErrExists
	}

	s.last++
	if data.Id == 0 {
		data.Id = s.last
	}
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
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

func (s *store) GetByAddress(_ context.Context, address string) (*market.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, market.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetByCreator(_ context.Context, creator string) (*market.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByCreator(creator)
	if item == nil {
		return nil, market.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetByIndex(_ context.Context, index uint64) (*market.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByIndex(index)
	if item == nil {
		return nil, market.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetAll(_ context.Context, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*market.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.filter(s.records, cursor, limit, direction)
	if len(res) == 0 {
		return nil, market.ErrNotFound
	}
	return cloneRecords(res), nil
}

func (s *store) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.records)), nil
}

func (s *store) findByAddress(address string) *market.Record {
	for _, item := range s.records {
		if item.Address == address {
			return item
		}
	}
	return nil
}

func (s *store) findByCreator(creator string) *market.Record {
	for _, item := range s.records {
		if item.Creator == creator {
			return item
		}
	}
	return nil
}

func (s *store) findByIndex(index uint64) *market.Record {
	for _, item := range s.records {
		if item.Index == index {
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

func (s *store) filter(items []*market.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*market.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*market.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	} else {
		sort.Sort(ById(res))
	}

	if limit > 0 && len(res) >= int(limit) {
		return res[:limit]
	}

	return res
}

func cloneRecords(items []*market.Record) []*market.Record {
	var res []*market.Record
	for _, item := range items {
		cloned := item.Clone()
		res = append(res, &cloned)
	}
	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
