package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/renocrm/workflow-engine/pkg/models"
)

// ConditionEvaluator matches DECISION conditions against entity data. Evaluation never
// fails: anything that cannot be evaluated is false.
type ConditionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{programs: make(map[string]*vm.Program)}
}

func (c *ConditionEvaluator) Evaluate(condition models.Condition, data map[string]any) bool {
	if data == nil {
		return false
	}

	if condition.Expression != "" {
		return c.evaluateExpression(condition.Expression, data)
	}

	value, _ := lookupField(data, condition.Field)

	switch condition.Operator {
	case models.OperatorEquals:
		return valuesEqual(value, condition.Value)
	case models.OperatorNotEquals:
		return !valuesEqual(value, condition.Value)
	case models.OperatorGreaterThan:
		left, right, ok := numbers(value, condition.Value)

		return ok && left > right
	case models.OperatorLessThan:
		left, right, ok := numbers(value, condition.Value)

		return ok && left < right
	case models.OperatorContains:
		return contains(value, condition.Value)
	default:
		return false
	}
}

// evaluateExpression runs an expr-lang expression with the entity fields as variables.
// The whole record is also available as "entity".
func (c *ConditionEvaluator) evaluateExpression(expression string, data map[string]any) bool {
	program, err := c.program(expression)
	if err != nil {
		return false
	}

	env := make(map[string]any, len(data)+1)
	for key, value := range data {
		env[key] = value
	}

	env["entity"] = data

	output, err := expr.Run(program, env)
	if err != nil {
		return false
	}

	matched, ok := output.(bool)

	return ok && matched
}

func (c *ConditionEvaluator) program(expression string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.programs[expression] = program
	c.mu.Unlock()

	return program, nil
}

// lookupField resolves a dotted path such as "address.city".
func lookupField(data map[string]any, field string) (any, bool) {
	if field == "" {
		return nil, false
	}

	if value, ok := data[field]; ok {
		return value, true
	}

	var current any = data

	for _, part := range strings.Split(field, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func valuesEqual(left, right any) bool {
	if l, lok := toNumber(left); lok {
		if r, rok := toNumber(right); rok {
			return l == r
		}
	}

	return reflect.DeepEqual(left, right)
}

func numbers(left, right any) (float64, float64, bool) {
	l, ok := toNumberLoose(left)
	if !ok {
		return 0, 0, false
	}

	r, ok := toNumberLoose(right)
	if !ok {
		return 0, 0, false
	}

	return l, r, true
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			n = fmt.Sprint(needle)
		}

		return strings.Contains(h, n)
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
	}

	return false
}

// toNumber converts numeric types only; strings never equal numbers.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

// toNumberLoose also accepts numeric strings, as ordering comparisons do.
func toNumberLoose(value any) (float64, bool) {
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)

		return f, err == nil
	}

	return toNumber(value)
}
