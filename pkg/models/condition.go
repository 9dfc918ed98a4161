package models

// Condition operators understood by DECISION steps.
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorContains    = "contains"
)

// Condition is one branch of a DECISION step. Either Field/Operator/Value or Expression
// is set; the first matching condition routes the instance to NextStepID.
type Condition struct {
	Field      string `json:"field,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Value      any    `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
	NextStepID string `json:"nextStepId"`
}
