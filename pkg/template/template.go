// Package template renders {{ }} placeholders in step configuration against the instance
// and the entity it acts on.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
)

const noValue = "<no value>"

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"default": func(fallback, value any) any {
		if value == nil || value == "" {
			return fallback
		}

		return value
	},
}

// NeedsTemplating reports whether input contains a placeholder.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Data is the template data of an instance: .instance, .entity and .metadata.
func Data(instance *models.WorkflowInstance, entity map[string]any) map[string]any {
	return map[string]any{
		"instance": map[string]any{
			"id":            instance.ID,
			"workflowId":    instance.WorkflowID,
			"entityType":    instance.EntityType,
			"entityId":      instance.EntityID,
			"priority":      string(instance.Priority),
			"initiatedById": instance.InitiatedByID,
		},
		"entity":   entity,
		"metadata": instance.Metadata,
	}
}

// RenderString executes templateStr. Missing keys render as empty text.
func RenderString(templateStr string, data any) (string, error) {
	tmpl, err := template.New("step").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), noValue, ""), nil
}

// Render executes templateStr and converts the output to JSON, a number or a boolean when
// it reads as one.
func Render(templateStr string, data any) (any, error) {
	rendered, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderValue renders every string inside value that needs templating, walking maps and
// slices. Other values are returned unchanged.
func RenderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}
