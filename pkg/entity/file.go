package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// FileHandler stores entities as JSON documents under <root>/entities/<type>/<id>.json,
// next to the file persistence of the engine.
type FileHandler struct {
	mu  sync.Mutex
	dir string
}

func NewFileHandler(root, entityType string) *FileHandler {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &FileHandler{dir: path.Join(cleanRoot, "entities", Normalize(entityType))}
}

func (h *FileHandler) file(id string) (string, bool) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", false
	}

	return path.Join(h.dir, id+".json"), true
}

// Save writes the entity owned by accountID.
func (h *FileHandler) Save(accountID, id string, data map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc := make(map[string]any, len(data)+1)
	for key, value := range data {
		doc[key] = value
	}

	doc[AccountField] = accountID

	return h.write(id, doc)
}

func (h *FileHandler) write(id string, doc map[string]any) error {
	file, ok := h.file(id)
	if !ok {
		return fmt.Errorf("invalid entity id %q", id)
	}

	err := os.MkdirAll(h.dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create entity directory: %w", err)
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return os.WriteFile(file, body, 0o600)
}

func (h *FileHandler) read(accountID, id string) (map[string]any, error) {
	file, ok := h.file(id)
	if !ok {
		return nil, ErrEntityNotFound
	}

	body, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEntityNotFound
		}

		return nil, fmt.Errorf("failed to read entity: %w", err)
	}

	var doc map[string]any

	err = json.Unmarshal(body, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	if doc[AccountField] != accountID {
		return nil, ErrEntityNotFound
	}

	return doc, nil
}

func (h *FileHandler) Load(_ context.Context, accountID, id string) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.read(accountID, id)
}

func (h *FileHandler) Update(_ context.Context, accountID, id string, data map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc, err := h.read(accountID, id)
	if err != nil {
		return err
	}

	for key, value := range data {
		if key != AccountField {
			doc[key] = value
		}
	}

	return h.write(id, doc)
}
