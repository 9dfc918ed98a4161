// Package file provides file-based persistence implementation for workflows and their executions.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every record is a JSON document under <root>/<collection>/<id>.json.
type Persistence struct {
	root string

	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
	executionRepo  *StepExecutionRepository
	approvalRepo   *ApprovalRepository
	resumptionRepo *ResumptionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.RWMutex{}

	return &Persistence{
		root:           cleanRoot,
		definitionRepo: &DefinitionRepository{mu: mu, docs: newCollection[models.WorkflowDefinition](cleanRoot, "definitions")},
		instanceRepo:   &InstanceRepository{mu: mu, docs: newCollection[models.WorkflowInstance](cleanRoot, "instances")},
		executionRepo:  &StepExecutionRepository{mu: mu, docs: newCollection[models.WorkflowStepExecution](cleanRoot, "executions")},
		approvalRepo:   &ApprovalRepository{mu: mu, docs: newCollection[models.WorkflowApproval](cleanRoot, "approvals")},
		resumptionRepo: &ResumptionRepository{mu: mu, docs: newCollection[models.ScheduledResumption](cleanRoot, "resumptions")},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return fp.definitionRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

func (fp *Persistence) StepExecutionRepository() persistence.StepExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return fp.approvalRepo
}

func (fp *Persistence) ResumptionRepository() persistence.ResumptionRepository {
	return fp.resumptionRepo
}

// collection stores documents of one kind in a single directory.
type collection[T any] struct {
	dir string
}

func newCollection[T any](root, name string) collection[T] {
	return collection[T]{dir: path.Join(root, name)}
}

// validID rejects identifiers that cannot be used as a file name.
func validID(id string) bool {
	return id != "" && id == filepath.Base(id) && !strings.HasPrefix(id, ".")
}

// load returns nil, nil when the document does not exist.
func (c collection[T]) load(id string) (*T, error) {
	if !validID(id) {
		return nil, nil
	}

	body, err := os.ReadFile(path.Join(c.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s/%s: %w", c.dir, id, err)
	}

	var doc T

	err = json.Unmarshal(body, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s/%s: %w", c.dir, id, err)
	}

	return &doc, nil
}

func (c collection[T]) save(id string, doc *T) error {
	if !validID(id) {
		return fmt.Errorf("invalid document id %q", id)
	}

	err := os.MkdirAll(c.dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.dir, err)
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", c.dir, id, err)
	}

	err = os.WriteFile(path.Join(c.dir, id+".json"), body, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", c.dir, id, err)
	}

	return nil
}

func (c collection[T]) all() ([]*T, error) {
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return []*T{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(c.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.dir, err)
	}

	docs := make([]*T, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		doc, err := c.load(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if doc != nil {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	return id.String(), nil
}
