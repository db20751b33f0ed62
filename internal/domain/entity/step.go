package entity

import "fmt"

type Outcome string

const (
	OutcomePassed Outcome = "PASSED"
	OutcomeFailed Outcome = "FAILED"
	OutcomeError  Outcome = "ERROR"
)

type StepRequest struct {
	RequestID  string         `json:"requestId,omitempty"`
	ScenarioID string         `json:"scenarioId,omitempty"`
	StepID     string         `json:"stepId"`
	Data       map[string]any `json:"data,omitempty"`
}

type StepResponse struct {
	RequestID     string   `json:"requestId,omitempty"`
	StepID        string   `json:"stepId,omitempty"`
	Outcome       Outcome  `json:"outcome"`
	MessageFormat string   `json:"messageFormat"`
	MessageArgs   []any    `json:"messageArgs,omitempty"`
	Records       []Record `json:"records,omitempty"`
}

// Message renders the templated message.
func (r *StepResponse) Message() string {
	if len(r.MessageArgs) == 0 {
		return r.MessageFormat
	}
	return fmt.Sprintf(r.MessageFormat, r.MessageArgs...)
}

// Record is an evidence attachment. Exactly one of KeyValue, Table or Binary
// is set.
type Record struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	KeyValue *KeyValue `json:"keyValue,omitempty"`
	Table    *Table    `json:"table,omitempty"`
	Binary   *Binary   `json:"binary,omitempty"`
}

type KeyValue struct {
	Map map[string]any `json:"map"`
}

type Table struct {
	Headers map[string]string `json:"headers"`
	Rows    []map[string]any  `json:"rows"`
}

type Binary struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type StepType string

const (
	StepTypeAction     StepType = "ACTION"
	StepTypeValidation StepType = "VALIDATION"
)

type FieldType string

const (
	FieldTypeString    FieldType = "STRING"
	FieldTypeURL       FieldType = "URL"
	FieldTypeNumeric   FieldType = "NUMERIC"
	FieldTypeMap       FieldType = "MAP"
	FieldTypeBoolean   FieldType = "BOOLEAN"
	FieldTypeAnyScalar FieldType = "ANYSCALAR"
)

type Optionality string

const (
	Required Optionality = "REQUIRED"
	Optional Optionality = "OPTIONAL"
)

type FieldDefinition struct {
	Key         string      `json:"key"`
	Type        FieldType   `json:"type"`
	Optionality Optionality `json:"optionality"`
	Description string      `json:"description"`
}

type StepDefinition struct {
	StepID         string            `json:"stepId"`
	Name           string            `json:"name"`
	Expression     string            `json:"expression"`
	Type           StepType          `json:"type"`
	ExpectedFields []FieldDefinition `json:"expectedFields"`
}

type CogManifest struct {
	Name            string            `json:"name"`
	Label           string            `json:"label"`
	Version         string            `json:"version"`
	Homepage        string            `json:"homepage,omitempty"`
	AuthFields      []FieldDefinition `json:"authFields"`
	StepDefinitions []StepDefinition  `json:"stepDefinitions"`
}
