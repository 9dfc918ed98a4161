// Package entity resolves the CRM business objects (enquiries, projects, leads, clients)
// that workflow instances act on.
package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrEntityNotFound indicates the entity does not exist or belongs to another account.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnsupportedEntityType indicates no handler is registered for the entity type.
	ErrUnsupportedEntityType = errors.New("unsupported entity type")
)

// Built-in entity types.
const (
	TypeEnquiry = "enquiry"
	TypeProject = "project"
	TypeLead    = "lead"
	TypeClient  = "client"
)

// Handler loads and updates one entity type. Implementations must return ErrEntityNotFound
// for entities that are absent or owned by another account.
type Handler interface {
	Load(ctx context.Context, accountID, id string) (map[string]any, error)
	Update(ctx context.Context, accountID, id string, data map[string]any) error
}

// Registry dispatches entity operations to the handler registered for the entity type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Normalize returns the canonical form of an entity type name.
func Normalize(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType))
}

func (r *Registry) Register(entityType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[Normalize(entityType)] = handler
}

// Types lists the registered entity types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for entityType := range r.handlers {
		types = append(types, entityType)
	}

	return types
}

func (r *Registry) handler(entityType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[Normalize(entityType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, entityType)
	}

	return handler, nil
}

// Validate confirms the entity exists and belongs to the account.
func (r *Registry) Validate(ctx context.Context, accountID, entityType, id string) error {
	_, err := r.Load(ctx, accountID, entityType, id)

	return err
}

func (r *Registry) Load(ctx context.Context, accountID, entityType, id string) (map[string]any, error) {
	handler, err := r.handler(entityType)
	if err != nil {
		return nil, err
	}

	data, err := handler.Load(ctx, accountID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", entityType, id, err)
	}

	return data, nil
}

func (r *Registry) Update(ctx context.Context, accountID, entityType, id string, data map[string]any) error {
	handler, err := r.handler(entityType)
	if err != nil {
		return err
	}

	err = handler.Update(ctx, accountID, id, data)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", entityType, id, err)
	}

	return nil
}

// IsNotFound reports whether err means the entity cannot be seen by the caller.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
