package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"schemabench/internal/model"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas for the support-ticket extraction task: one per sequential step
// plus the full ticket schema that one-shot responses (and merged step
// outputs) must satisfy. Every property is required and additional
// properties are rejected, which is also what provider strict mode demands.

const customerSchemaJSON = `{
  "type": "object",
  "required": ["name", "email", "account_id", "plan"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "email": {"type": "string", "pattern": "^[^@\\s]+@[^@\\s]+\\.[^@\\s]+$"},
    "account_id": {"type": "string", "pattern": "^ACCT-[0-9]{4}$"},
    "plan": {"type": "string", "enum": ["basic", "pro", "enterprise"]}
  }
}`

const issueSchemaJSON = `{
  "type": "object",
  "required": ["category", "severity", "summary", "error_code"],
  "additionalProperties": false,
  "properties": {
    "category": {"type": "string", "enum": ["billing", "technical", "account", "other"]},
    "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
    "summary": {"type": "string", "minLength": 10},
    "error_code": {"type": ["string", "null"]}
  }
}`

const resolutionSchemaJSON = `{
  "type": "object",
  "required": ["status", "action_taken", "follow_up_required", "satisfaction_estimate"],
  "additionalProperties": false,
  "properties": {
    "status": {"type": "string", "enum": ["resolved", "escalated", "pending"]},
    "action_taken": {"type": "string", "minLength": 10},
    "follow_up_required": {"type": "boolean"},
    "satisfaction_estimate": {"type": "integer", "minimum": 1, "maximum": 5}
  }
}`

var fullSchemaJSON = fmt.Sprintf(`{
  "type": "object",
  "required": ["customer", "issue", "resolution"],
  "additionalProperties": false,
  "properties": {
    "customer": %s,
    "issue": %s,
    "resolution": %s
  }
}`, customerSchemaJSON, issueSchemaJSON, resolutionSchemaJSON)

type responseSchema struct {
	name     string
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

var (
	fullSchema  = mustSchema("support_ticket", fullSchemaJSON)
	stepSchemas = [3]*responseSchema{
		mustSchema("customer_profile", customerSchemaJSON),
		mustSchema("issue_classification", issueSchemaJSON),
		mustSchema("resolution_summary", resolutionSchemaJSON),
	}
)

func mustSchema(name, raw string) *responseSchema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return &responseSchema{name: name, raw: json.RawMessage(raw), compiled: compiled}
}

// schemaFor returns the schema for a pipeline step (1-3) or, for step 0, the
// full ticket schema used by one-shot scenarios.
func schemaFor(step int) *responseSchema {
	if step >= 1 && step <= 3 {
		return stepSchemas[step-1]
	}
	return fullSchema
}

// validateAgainst checks parsed data against a schema and returns one
// structured error per violation. An empty slice means the data is valid.
func validateAgainst(s *responseSchema, data map[string]interface{}) []model.ValidationError {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return []model.ValidationError{{Path: "(root)", Message: err.Error(), Code: "schema_error"}}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]model.ValidationError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, model.ValidationError{
			Path:    e.Field(),
			Message: e.Description(),
			Code:    e.Type(),
		})
	}
	return errs
}

// ValidateTicket checks a candidate object against the full ticket schema.
func ValidateTicket(data map[string]interface{}) []model.ValidationError {
	return validateAgainst(fullSchema, data)
}

// MergeStepOutputs combines the three validated step outputs into one ticket
// object shaped like a one-shot response. The result still has to pass
// ValidateTicket before it is accepted.
func MergeStepOutputs(customer, issue, resolution map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"customer":   customer,
		"issue":      issue,
		"resolution": resolution,
	}
}

// ExtractJSON recovers a JSON object from a freeform response, tolerating
// markdown fences and surrounding prose.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}
