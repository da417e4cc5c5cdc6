package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"candlestick/internal/domain/models"
	"candlestick/internal/domain/repository"
)

// MemoryStore implements Store in process memory. It backs tests and the
// "memory" backend.
type MemoryStore struct {
	mu          sync.RWMutex
	nextInst    int64
	nextBar     int64
	instruments map[int64]*models.Instrument
	bars        map[int64][]*models.Bar // per instrument, unordered
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments: make(map[int64]*models.Instrument),
		bars:        make(map[int64][]*models.Bar),
	}
}

var _ repository.Store = (*MemoryStore)(nil)

func (s *MemoryStore) Init(context.Context) error   { return nil }
func (s *MemoryStore) Health(context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

func (s *MemoryStore) CreateInstrument(_ context.Context, inst *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(inst.Symbol, inst.Exchange) != nil {
		return fmt.Errorf("%w: %s", models.ErrDuplicateInstrument, inst.Key())
	}
	s.nextInst++
	inst.ID = s.nextInst
	cp := *inst
	s.instruments[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateInstrument(_ context.Context, inst *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instruments[inst.ID]; !ok {
		return fmt.Errorf("%w: id %d", models.ErrInstrumentNotFound, inst.ID)
	}
	if other := s.findLocked(inst.Symbol, inst.Exchange); other != nil && other.ID != inst.ID {
		return fmt.Errorf("%w: %s", models.ErrDuplicateInstrument, inst.Key())
	}
	cp := *inst
	s.instruments[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteInstrument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instruments[id]; !ok {
		return fmt.Errorf("%w: id %d", models.ErrInstrumentNotFound, id)
	}
	delete(s.instruments, id)
	delete(s.bars, id)
	return nil
}

func (s *MemoryStore) GetInstrument(_ context.Context, symbol, exchange string) (*models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst := s.findLocked(symbol, exchange)
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentNotFound, (&models.Instrument{Symbol: symbol, Exchange: exchange}).Key())
	}
	cp := *inst
	return &cp, nil
}

func (s *MemoryStore) ListInstruments(_ context.Context, f repository.InstrumentFilter) ([]*models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		if f.Symbol != "" && inst.Symbol != f.Symbol {
			continue
		}
		if f.Exchange != "" && inst.Exchange != f.Exchange {
			continue
		}
		if f.Category != "" && inst.Category != f.Category {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Exchange < out[j].Exchange
	})
	return out, nil
}

func (s *MemoryStore) findLocked(symbol, exchange string) *models.Instrument {
	for _, inst := range s.instruments {
		if inst.Symbol == symbol && inst.Exchange == exchange {
			return inst
		}
	}
	return nil
}

func (s *MemoryStore) InsertBars(_ context.Context, bars []*models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		if _, ok := s.instruments[b.InstrumentID]; !ok {
			return fmt.Errorf("%w: id %d", models.ErrInstrumentNotFound, b.InstrumentID)
		}
	}
	for _, b := range bars {
		s.nextBar++
		b.ID = s.nextBar
		cp := *b
		s.bars[b.InstrumentID] = append(s.bars[b.InstrumentID], &cp)
	}
	return nil
}

func (s *MemoryStore) DeleteBars(_ context.Context, instrumentID int64, res string, from, to int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.bars[instrumentID][:0]
	var n int64
	for _, b := range s.bars[instrumentID] {
		if b.Resolution == res && b.Timestamp >= from && b.Timestamp <= to {
			n++
			continue
		}
		kept = append(kept, b)
	}
	s.bars[instrumentID] = kept
	return n, nil
}

func (s *MemoryStore) ListBars(_ context.Context, q repository.BarQuery) ([]*models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Bar, 0)
	for _, b := range s.bars[q.InstrumentID] {
		if q.Resolution != "" && b.Resolution != q.Resolution {
			continue
		}
		if !q.Contains(b.Timestamp) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) LatestBar(_ context.Context, instrumentID int64, res string) (*models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Bar
	for _, b := range s.bars[instrumentID] {
		if res != "" && b.Resolution != res {
			continue
		}
		if latest == nil || b.Timestamp > latest.Timestamp {
			latest = b
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}
