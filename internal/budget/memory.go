package budget

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. A single mutex serialises Apply.
type MemoryStore struct {
	mu       sync.Mutex
	periods  map[string]*Period
	counters map[string]map[string]int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods:  make(map[string]*Period),
		counters: make(map[string]map[string]int64),
	}
}

func (m *MemoryStore) Period(_ context.Context, day string) (*Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[day]
	if !ok {
		return nil, nil
	}
	out := clonePeriod(p)
	return &out, nil
}

func (m *MemoryStore) PeriodsBetween(_ context.Context, fromDay, toDay string) ([]Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Period
	for day, p := range m.periods {
		if day >= fromDay && day <= toDay {
			out = append(out, clonePeriod(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (m *MemoryStore) Apply(_ context.Context, charge Charge) (Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[charge.Day]
	if !ok {
		p = newPeriod(charge)
		m.periods[charge.Day] = p
	}
	applyCharge(p, charge)
	return clonePeriod(p), nil
}

func (m *MemoryStore) IncrementCounter(_ context.Context, day, name string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[day] == nil {
		m.counters[day] = make(map[string]int64)
	}
	m.counters[day][name] += delta
	return nil
}

func (m *MemoryStore) Counters(_ context.Context, day string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters[day]))
	maps.Copy(out, m.counters[day])
	return out, nil
}
