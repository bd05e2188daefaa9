package csvcleaner

import (
	"context"
	"encoding/json"
	"strings"

	"ai-pipeline/internal/common/jsonrepair"
	"ai-pipeline/internal/common/validation"
)

// fetchInstructions asks the model for a rule document once per job, using
// only a small sample of rows. Any failure substitutes the built-in default
// document so cleaning can always proceed. Returns the instructions and
// their origin ("model" or "default").
func (h *Handler) fetchInstructions(ctx context.Context, input *Input, header []string, rows []map[string]interface{}) (*CleaningInstructions, string) {
	ctx, cancel := context.WithTimeout(ctx, h.config.InstructionTimeout)
	defer cancel()

	sample := rows
	if len(sample) > h.config.SampleRows {
		sample = sample[:h.config.SampleRows]
	}

	result, err := h.gen.GenerateJSON(ctx, buildInstructionPrompt(input, header, sample))
	if err != nil {
		h.logger.Warn("instruction inference failed, using default rules", map[string]interface{}{
			"error": err.Error(),
		})
		return defaultInstructions(header, sample), "default"
	}

	doc, err := jsonrepair.ParseObject(result.Text)
	if err != nil {
		// last resort: recover just the column-rule map; salvage already
		// returns it inside a minimal envelope
		salvaged, ok := jsonrepair.SalvageObjectField(result.Text, "columnRules")
		if !ok {
			h.logger.Warn("instruction output unrepairable, using default rules", map[string]interface{}{
				"model": result.Model,
			})
			return defaultInstructions(header, sample), "default"
		}
		doc = salvaged
	}

	if vr, verr := validation.ValidateDocument(validation.CleaningInstructionsSchema, doc); verr != nil || !vr.Valid {
		details := ""
		if vr != nil {
			details = validation.FormatErrors(vr)
		}
		h.logger.Warn("instruction document invalid, using default rules", map[string]interface{}{
			"model":  result.Model,
			"errors": details,
		})
		return defaultInstructions(header, sample), "default"
	}

	instructions, err := decodeInstructions(doc)
	if err != nil {
		return defaultInstructions(header, sample), "default"
	}

	// columns the model did not mention still need a rule
	defaults := defaultInstructions(header, sample)
	for _, col := range header {
		if _, ok := instructions.ColumnRules[col]; !ok {
			instructions.ColumnRules[col] = defaults.ColumnRules[col]
		}
	}
	applyGlobalDefaults(&instructions.GlobalRules)
	instructions.ModelUsed = result.Model

	return instructions, "model"
}

func decodeInstructions(doc map[string]interface{}) (*CleaningInstructions, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var instructions CleaningInstructions
	if err := json.Unmarshal(data, &instructions); err != nil {
		return nil, err
	}
	if instructions.ColumnRules == nil {
		instructions.ColumnRules = map[string]ColumnRule{}
	}
	return &instructions, nil
}

func buildInstructionPrompt(input *Input, header []string, sample []map[string]interface{}) string {
	data, _ := json.Marshal(sample)

	var b strings.Builder
	b.WriteString("You are a data cleaning expert. Derive cleaning rules for the dataset below and answer with exactly one JSON object:\n")
	b.WriteString(`{"columnRules": {"<column>": {"dataType": "numeric"|"text"|"email"|"url"|"date", "cleaningActions": [...], "transformations": [...]}}, "globalRules": {"duplicateHandling": ..., "missingValueStrategy": ..., "outlierHandling": ..., "textNormalization": ...}, "qualityThresholds": {}}` + "\n\n")
	if input.DataContext != "" {
		b.WriteString("Context: " + input.DataContext + "\n")
	}
	if input.CleaningStrategy != "" {
		b.WriteString("Strategy: " + input.CleaningStrategy + "\n")
	}
	b.WriteString("Columns: " + strings.Join(header, ", ") + "\n")
	b.WriteString("Sample rows: " + string(data) + "\n")
	return b.String()
}

// defaultInstructions is the built-in rule document: remove duplicates,
// impute by median/mode, title-case text, flag outliers. Column types are
// inferred from names and sample values.
func defaultInstructions(header []string, sample []map[string]interface{}) *CleaningInstructions {
	rules := make(map[string]ColumnRule, len(header))
	for _, col := range header {
		rules[col] = ColumnRule{
			DataType:        inferDataType(col, sample),
			CleaningActions: []string{"trim_whitespace", "remove_duplicates"},
		}
	}
	return &CleaningInstructions{
		ColumnRules: rules,
		GlobalRules: GlobalRules{
			DuplicateHandling:    "remove",
			MissingValueStrategy: "impute",
			OutlierHandling:      "flag",
			TextNormalization:    "title_case",
		},
	}
}

func applyGlobalDefaults(g *GlobalRules) {
	if g.DuplicateHandling == "" {
		g.DuplicateHandling = "remove"
	}
	if g.MissingValueStrategy == "" {
		g.MissingValueStrategy = "impute"
	}
	if g.OutlierHandling == "" {
		g.OutlierHandling = "flag"
	}
	if g.TextNormalization == "" {
		g.TextNormalization = "title_case"
	}
}

func inferDataType(col string, sample []map[string]interface{}) string {
	lower := strings.ToLower(col)
	switch {
	case strings.Contains(lower, "email"):
		return "email"
	case strings.Contains(lower, "url") || strings.Contains(lower, "link") || strings.Contains(lower, "website"):
		return "url"
	case strings.Contains(lower, "date") || strings.HasSuffix(lower, "_at"):
		return "date"
	}

	for _, row := range sample {
		v := row[col]
		if isMissing(v) {
			continue
		}
		if _, ok := v.(float64); ok {
			return "numeric"
		}
		return "text"
	}
	return "text"
}
