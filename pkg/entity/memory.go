package entity

import (
	"context"
	"maps"
	"sync"
)

// AccountField is the attribute holding the owning account of an entity.
const AccountField = "accountId"

// MemoryHandler keeps entities in memory. It backs tests and local development.
type MemoryHandler struct {
	mu       sync.RWMutex
	entities map[string]map[string]any
}

func NewMemoryHandler() *MemoryHandler {
	return &MemoryHandler{entities: make(map[string]map[string]any)}
}

// Put stores an entity owned by accountID, replacing any previous version.
func (h *MemoryHandler) Put(accountID, id string, data map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := maps.Clone(data)
	if stored == nil {
		stored = make(map[string]any)
	}

	stored[AccountField] = accountID
	h.entities[id] = stored
}

func (h *MemoryHandler) Load(_ context.Context, accountID, id string) (map[string]any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, ok := h.entities[id]
	if !ok || data[AccountField] != accountID {
		return nil, ErrEntityNotFound
	}

	return maps.Clone(data), nil
}

func (h *MemoryHandler) Update(_ context.Context, accountID, id string, data map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored, ok := h.entities[id]
	if !ok || stored[AccountField] != accountID {
		return ErrEntityNotFound
	}

	for key, value := range data {
		if key == AccountField {
			continue
		}

		stored[key] = value
	}

	return nil
}
