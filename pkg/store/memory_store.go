package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzbill/hoist/pkg/types"
)

// Validate that MemoryStore implements the Store interface
var _ Store = &MemoryStore{}

// MemoryStore is an in-memory Store for tests and journal-less runs.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  map[string]types.Deployment
	history map[string][]HistoricalVersion
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:  make(map[string]types.Deployment),
		history: make(map[string][]HistoricalVersion),
	}
}

// Open is a no-op.
func (m *MemoryStore) Open(string) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func memKey(environment, service string) string {
	return string(MakeKey(environment, service))
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, environment, service string) (*types.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.latest[memKey(environment, service)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, environment, service)
	}
	return cloneDeployment(d), nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, d *types.Deployment) error {
	if err := validateRecord(d.Environment, d.Service); err != nil {
		return err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(d.Environment, d.Service)
	m.latest[key] = *cloneDeployment(*d)
	m.history[key] = append(m.history[key], HistoricalVersion{
		Version:    newVersion(d.UpdatedAt),
		Timestamp:  d.UpdatedAt,
		Deployment: *cloneDeployment(*d),
	})
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, environment string) ([]*types.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Deployment
	for _, d := range m.latest {
		if environment == "" || environment == "*" || d.Environment == environment {
			out = append(out, cloneDeployment(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Environment != out[j].Environment {
			return out[i].Environment < out[j].Environment
		}
		return out[i].Service < out[j].Service
	})
	return out, nil
}

// GetHistory implements Store.
func (m *MemoryStore) GetHistory(ctx context.Context, environment, service string) ([]HistoricalVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[memKey(environment, service)]
	out := make([]HistoricalVersion, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

func cloneDeployment(d types.Deployment) *types.Deployment {
	d.CompletedSteps = append([]string(nil), d.CompletedSteps...)
	return &d
}
