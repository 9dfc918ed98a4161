package workflow

import (
	"fmt"
	"strings"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var stepConfigurationSchemas = map[models.StepType]string{
	models.StepTypeApproval: `{
		"type": "object",
		"properties": {
			"message": {"type": "string"}
		}
	}`,
	models.StepTypeTask: `{
		"type": "object",
		"properties": {
			"assigneeId": {"type": "string"},
			"title": {"type": "string"},
			"description": {"type": "string"},
			"dueInMinutes": {"type": "integer", "minimum": 0}
		}
	}`,
	models.StepTypeNotification: `{
		"type": "object",
		"properties": {
			"recipients": {"type": "array", "items": {"type": "string"}},
			"title": {"type": "string"},
			"message": {"type": "string"}
		}
	}`,
	models.StepTypeEmail: `{
		"type": "object",
		"properties": {
			"to": {"type": "array", "items": {"type": "string"}},
			"cc": {"type": "array", "items": {"type": "string"}},
			"bcc": {"type": "array", "items": {"type": "string"}},
			"subject": {"type": "string"},
			"body": {"type": "string"},
			"template": {"type": "string"},
			"templateData": {"type": "object"}
		}
	}`,
	models.StepTypeDataUpdate: `{
		"type": "object",
		"properties": {
			"entityType": {"type": "string"},
			"updateData": {"type": "object"}
		}
	}`,
	models.StepTypeWebhook: `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string", "pattern": "^[A-Za-z]+$"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}}
		}
	}`,
	models.StepTypeWait: `{
		"type": "object",
		"properties": {
			"waitMinutes": {"type": "number", "minimum": 0}
		}
	}`,
	models.StepTypeDecision: `{
		"type": "object",
		"properties": {
			"conditions": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["nextStepId"],
					"properties": {
						"field": {"type": "string"},
						"operator": {"enum": ["equals", "not_equals", "greater_than", "less_than", "contains"]},
						"expression": {"type": "string"},
						"nextStepId": {"type": "string", "minLength": 1}
					},
					"anyOf": [
						{"required": ["field", "operator"]},
						{"required": ["expression"]}
					]
				}
			}
		}
	}`,
}

// schemaSet holds the compiled configuration schema of every step type.
type schemaSet struct {
	schemas map[models.StepType]*gojsonschema.Schema
}

func compileSchemas() (*schemaSet, error) {
	set := &schemaSet{schemas: make(map[models.StepType]*gojsonschema.Schema, len(stepConfigurationSchemas))}

	for stepType, source := range stepConfigurationSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s configuration schema: %w", stepType, err)
		}

		set.schemas[stepType] = schema
	}

	return set, nil
}

func mustCompileSchemas() *schemaSet {
	set, err := compileSchemas()
	if err != nil {
		panic(err)
	}

	return set
}

// validate checks a step configuration against the schema of its type.
func (s *schemaSet) validate(stepType models.StepType, configuration map[string]any) error {
	schema, ok := s.schemas[stepType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedStepType, stepType)
	}

	if configuration == nil {
		configuration = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(configuration))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStepConfiguration, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidStepConfiguration, strings.Join(messages, "; "))
	}

	return nil
}
