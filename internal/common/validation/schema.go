// Package validation checks repaired model documents against JSON schemas
// before they are allowed to drive query execution or cleaning.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult holds the outcome of a schema check.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateDocument validates an arbitrary decoded document against a schema
// expressed as a Go map.
func ValidateDocument(schemaMap map[string]interface{}, doc interface{}) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return &ValidationResult{Valid: false, Errors: errs}, nil
}

// StrategySchema describes the planner's strategy document.
var StrategySchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"method"},
	"properties": map[string]interface{}{
		"method": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"structured", "live-search", "combined"},
		},
		"reasoning":         map[string]interface{}{"type": "string"},
		"fallback_strategy": map[string]interface{}{"type": "string"},
		"primary_query": map[string]interface{}{
			"type": []interface{}{"string", "object"},
		},
	},
}

// CleaningInstructionsSchema describes the rule document that governs a
// cleaning job. columnRules is the critical part; the rest has defaults.
var CleaningInstructionsSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"columnRules"},
	"properties": map[string]interface{}{
		"columnRules": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"dataType": map[string]interface{}{
						"type": "string",
						"enum": []interface{}{"numeric", "text", "email", "url", "date"},
					},
					"cleaningActions": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
					"transformations": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		"globalRules": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"duplicateHandling":    map[string]interface{}{"type": "string"},
				"missingValueStrategy": map[string]interface{}{"type": "string"},
				"outlierHandling":      map[string]interface{}{"type": "string"},
				"textNormalization":    map[string]interface{}{"type": "string"},
			},
		},
		"qualityThresholds": map[string]interface{}{"type": "object"},
		"modelUsed":         map[string]interface{}{"type": "string"},
	},
}

// FormatErrors joins validation errors into a single details string.
func FormatErrors(result *ValidationResult) string {
	return strings.Join(result.Errors, "; ")
}
