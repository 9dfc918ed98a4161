package workflow

import (
	"errors"
	"fmt"

	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

var (
	ErrEntityNotFound           = entity.ErrEntityNotFound
	ErrDefinitionInactive       = errors.New("workflow definition is inactive")
	ErrUnsupportedStepType      = errors.New("unsupported step type")
	ErrInstanceTerminal         = errors.New("workflow instance is not running")
	ErrDuplicatePosition        = errors.New("duplicate step position")
	ErrInvalidDefinition        = errors.New("invalid workflow definition")
	ErrInvalidStepConfiguration = errors.New("invalid step configuration")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrStepFailed               = errors.New("step failed")
	ErrChainLimitExceeded       = errors.New("step chain limit exceeded")
)

// StepError reports a step that failed and took its instance down with it.
type StepError struct {
	InstanceID string
	StepID     string
	Message    string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s of instance %s failed: %s", e.StepID, e.InstanceID, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func newValidationError(base error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err means the requested record cannot be seen by the caller.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrDefinitionInactive)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDefinition) ||
		errors.Is(err, ErrInvalidStepConfiguration) ||
		errors.Is(err, ErrDuplicatePosition) ||
		errors.Is(err, ErrUnsupportedStepType) ||
		errors.Is(err, ErrInvalidRequest)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrInstanceTerminal)
}

// IsStepFailure reports whether err is a step that failed while running.
func IsStepFailure(err error) bool {
	var stepErr *StepError

	return errors.As(err, &stepErr)
}
