// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/quantified/hindcast/internal/core"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu            sync.RWMutex
	backtests     []BacktestRecord
	trades        map[string][]TradeRecord
	optimizations []OptimizationRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[string][]TradeRecord)}
}

// SaveBacktest appends a run, assigning ID and CreatedAt when unset.
func (m *MemoryStore) SaveBacktest(ctx context.Context, rec *BacktestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stampRecord(&rec.ID, &rec.CreatedAt)
	saved := *rec
	saved.Params = rec.Params.Clone()
	m.backtests = append(m.backtests, saved)
	return nil
}

// GetBacktest retrieves a run by ID.
func (m *MemoryStore) GetBacktest(ctx context.Context, id string) (*BacktestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.backtests {
		if m.backtests[i].ID == id {
			rec := m.backtests[i]
			rec.Params = m.backtests[i].Params.Clone()
			return &rec, nil
		}
	}
	return nil, core.ErrNotFound
}

// ListBacktests returns runs matching the filter, newest first.
func (m *MemoryStore) ListBacktests(ctx context.Context, filter ListFilter) ([]BacktestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []BacktestRecord
	// Saved order is chronological; walk backwards for newest first.
	for i := len(m.backtests) - 1; i >= 0; i-- {
		rec := m.backtests[i]
		if filter.Strategy != "" && rec.Strategy != filter.Strategy {
			continue
		}
		if filter.Symbol != "" && rec.Symbol != filter.Symbol {
			continue
		}
		result = append(result, rec)
	}
	return page(result, filter), nil
}

// SaveTrades stores a run's trade ledger, assigning trade IDs.
func (m *MemoryStore) SaveTrades(ctx context.Context, backtestID string, trades []TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make([]TradeRecord, len(trades))
	for i := range trades {
		if trades[i].ID == "" {
			trades[i].ID = uuid.NewString()
		}
		trades[i].BacktestID = backtestID
		saved[i] = trades[i]
	}
	m.trades[backtestID] = append(m.trades[backtestID], saved...)
	return nil
}

// ListTrades retrieves a run's trades in saved order.
func (m *MemoryStore) ListTrades(ctx context.Context, backtestID string) ([]TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trades := m.trades[backtestID]
	out := make([]TradeRecord, len(trades))
	copy(out, trades)
	return out, nil
}

// SaveOptimization appends one optimizer trial.
func (m *MemoryStore) SaveOptimization(ctx context.Context, rec *OptimizationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stampRecord(&rec.ID, &rec.CreatedAt)
	saved := *rec
	saved.Params = rec.Params.Clone()
	m.optimizations = append(m.optimizations, saved)
	return nil
}

// ListOptimizations returns trials matching the filter, best score first.
func (m *MemoryStore) ListOptimizations(ctx context.Context, filter ListFilter) ([]OptimizationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []OptimizationRecord
	for _, rec := range m.optimizations {
		if filter.Strategy != "" && rec.Strategy != filter.Strategy {
			continue
		}
		if filter.Symbol != "" && rec.Symbol != filter.Symbol {
			continue
		}
		result = append(result, rec)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return page(result, filter), nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func page[T any](result []T, filter ListFilter) []T {
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []T{}
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result
}
