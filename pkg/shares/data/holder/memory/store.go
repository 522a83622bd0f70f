package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dibs-shares/shares-server/pkg/database/memory"
	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
)

type ById []*holder.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.RWMutex
	records []*holder.Record
	last    uint64
}

func New() holder.Store {
	return &store{}
}

func (s *store) Save(ctx context.Context, data *holder.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.find(data.Market, data.Owner); item != nil {
		if item.Version != data.Version {
			return holder.ErrStaleVersion
		}

		previous := item.Clone()
		memory.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			previous.CopyTo(item)
		})

		data.Version++

		item.Balance = data.Balance
		item.Version = data.Version

		return nil
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

func (s *store) Get(_ context.Context, market, owner string) (*holder.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.find(market, owner)
	if item == nil {
		return nil, holder.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetAllByMarket(_ context.Context, market string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*holder.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if items := s.findByMarket(market); len(items) > 0 {
		res := s.filter(items, cursor, limit, direction)

		if len(res) == 0 {
			return nil, holder.ErrNotFound
		}

		return cloneRecords(res), nil
	}

	return nil, holder.ErrNotFound
}

func (s *store) CountByMarket(_ context.Context, market string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.findByMarket(market))), nil
}

func (s *store) find(market, owner string) *holder.Record {
	for _, item := range s.records {
		if item.Market == market && item.Owner == owner {
			return item
		}
	}
	return nil
}

func (s *store) findByMarket(market string) []*holder.Record {
	var res []*holder.Record
	for _, item := range s.records {
		if item.Market == market {
			res = append(res, item)
		}
	}
	return res
}

func (s *store) remove(id uint64) {
	for i, item := range s.records {
		if item.Id == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

func (s *store) filter(items []*holder.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*holder.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*holder.Record
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

func cloneRecords(items []*holder.Record) []*holder.Record {
	var res []*holder.Record
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
