package csvcleaner

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "ai-pipeline/internal/common/errors"
	"ai-pipeline/internal/common/genai"
	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/metrics"
)

const StageName = "csv-cleaner"

// Generator is the slice of the inference caller the cleaner needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (*genai.Result, error)
}

type Handler struct {
	config *Config
	gen    Generator
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, gen Generator, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		gen:    gen,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
		now: time.Now,
	}
}

// Execute runs one cleaning job: parse, fetch the rule document once, then
// clean chunk by chunk. The loop checks for cancellation between chunks so
// a large file never holds the request past its deadline.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	header, rows, err := parseCSV(input.CSVData)
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageName, string(apperrors.ErrCodeValidationFailed)).Inc()
		return nil, apperrors.NewValidationError(err.Error())
	}
	if len(rows) > h.config.MaxRows {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("file has %d rows, maximum is %d", len(rows), h.config.MaxRows))
	}

	// ids are assigned before chunking so the sequence is contiguous no
	// matter where the chunk boundaries fall
	for i, row := range rows {
		row["id"] = i + 1
	}

	chunkSize := input.ChunkSize
	if chunkSize <= 0 {
		chunkSize = h.config.ChunkSize
	}

	instructions, source := h.fetchInstructions(ctx, input, header, rows)
	h.logger.Info("cleaning instructions ready", map[string]interface{}{
		"source":  source,
		"columns": len(instructions.ColumnRules),
		"rows":    len(rows),
	})

	stats := Stats{OriginalRows: len(rows), IssuesFixed: []string{}}
	cleaned := make([]map[string]interface{}, 0, len(rows))
	chunks := 0

	for offset := 0; offset < len(rows); offset += chunkSize {
		// cooperative boundary: an abandoned request stops between chunks
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := offset + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[offset:end]
		chunks++

		out, chunkStats, err := h.cleanChunk(chunk, header, instructions)
		if err != nil {
			// a bad chunk keeps its parsed rows instead of sinking the job
			h.logger.Warn("chunk cleaning failed, keeping raw rows", map[string]interface{}{
				"chunk": chunks,
				"error": err.Error(),
			})
			stats.IssuesFixed = append(stats.IssuesFixed,
				fmt.Sprintf("chunk %d kept unmodified after cleaning error: %v", chunks, err))
			cleaned = append(cleaned, chunk...)
			stats.ProcessedRows += len(chunk)
		} else {
			cleaned = append(cleaned, out...)
			stats.ProcessedRows += len(out)
			stats.RemovedRows += chunkStats.RemovedRows
			stats.CleanedValues += chunkStats.CleanedValues
			stats.IssuesFixed = append(stats.IssuesFixed, chunkStats.IssuesFixed...)
		}
		metrics.CleaningChunksProcessed.Inc()
	}

	h.logger.Info("cleaning completed", map[string]interface{}{
		"chunks":    chunks,
		"original":  stats.OriginalRows,
		"processed": stats.ProcessedRows,
		"removed":   stats.RemovedRows,
	})

	return &Output{
		Rows:            cleaned,
		Stats:           stats,
		Instructions:    instructions,
		ChunksProcessed: chunks,
	}, nil
}

// cleanChunk normalizes values, removes exact duplicates, imputes missing
// values from this chunk's own statistics, and attaches quality metadata.
// Input rows are never mutated; the caller may still need them raw.
func (h *Handler) cleanChunk(chunk []map[string]interface{}, header []string, instructions *CleaningInstructions) ([]map[string]interface{}, Stats, error) {
	var stats Stats

	normalized := make([]map[string]interface{}, 0, len(chunk))
	for _, row := range chunk {
		out := make(map[string]interface{}, len(row))
		out["id"] = row["id"]
		for _, col := range header {
			value, changed := normalizeValue(row[col], instructions.ColumnRules[col].DataType)
			if changed {
				stats.CleanedValues++
			}
			out[col] = value
		}
		normalized = append(normalized, out)
	}

	deduped := normalized
	if instructions.GlobalRules.DuplicateHandling == "remove" {
		var err error
		deduped, err = h.removeDuplicates(normalized)
		if err != nil {
			return nil, Stats{}, err
		}
		if removed := len(normalized) - len(deduped); removed > 0 {
			stats.RemovedRows = removed
			stats.IssuesFixed = append(stats.IssuesFixed,
				fmt.Sprintf("removed %d duplicate rows", removed))
			metrics.CleaningRowsRemoved.Add(float64(removed))
		}
	}

	if instructions.GlobalRules.MissingValueStrategy == "impute" {
		stats.CleanedValues += imputeMissing(deduped, header, instructions)
	}

	timestamp := h.now().UTC().Format(time.RFC3339)
	for _, row := range deduped {
		row["quality_score"] = qualityScore(row, header)
		row["ai_cleaned"] = true
		row["processing_timestamp"] = timestamp
	}

	return deduped, stats, nil
}

// removeDuplicates drops rows whose canonical form was already seen. The
// canonical form excludes the configured generated fields, keyed order-
// independently.
func (h *Handler) removeDuplicates(rows []map[string]interface{}) ([]map[string]interface{}, error) {
	ignore := make(map[string]bool, len(h.config.DuplicateIgnoreFields))
	for _, field := range h.config.DuplicateIgnoreFields {
		ignore[field] = true
	}

	seen := make(map[string]bool, len(rows))
	kept := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		key, err := canonicalKey(row, ignore)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, row)
	}
	return kept, nil
}

func canonicalKey(row map[string]interface{}, ignore map[string]bool) (string, error) {
	keys := make([]string, 0, len(row))
	for k := range row {
		if ignore[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		data, err := json.Marshal(row[k])
		if err != nil {
			return "", err
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(data)
		b.WriteByte(';')
	}
	return b.String(), nil
}

// imputeMissing fills blank cells using statistics computed from this chunk
// only: median for numeric columns, mode for everything else. Cells a
// validator nulled (bad email, unparseable date) stay null; filling them
// from another row's value would fabricate data. Returns the number of
// filled cells.
func imputeMissing(rows []map[string]interface{}, header []string, instructions *CleaningInstructions) int {
	filled := 0
	for _, col := range header {
		var replacement interface{}
		if instructions.ColumnRules[col].DataType == "numeric" {
			replacement = columnMedian(rows, col)
		} else {
			replacement = columnMode(rows, col)
		}
		if replacement == nil {
			continue
		}
		for _, row := range rows {
			if isBlank(row[col]) {
				row[col] = replacement
				filled++
			}
		}
	}
	return filled
}

func columnMedian(rows []map[string]interface{}, col string) interface{} {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		switch v := row[col].(type) {
		case float64:
			values = append(values, v)
		case int:
			values = append(values, float64(v))
		}
	}
	if len(values) == 0 {
		return nil
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return round2((values[mid-1] + values[mid]) / 2)
}

func columnMode(rows []map[string]interface{}, col string) interface{} {
	counts := make(map[string]int)
	var best interface{}
	bestCount := 0
	for _, row := range rows {
		v := row[col]
		if isMissing(v) {
			continue
		}
		key := fmt.Sprintf("%v", v)
		counts[key]++
		if counts[key] > bestCount {
			best, bestCount = v, counts[key]
		}
	}
	return best
}

// qualityScore is the percentage of non-empty cells across the original
// columns.
func qualityScore(row map[string]interface{}, header []string) int {
	if len(header) == 0 {
		return 0
	}
	present := 0
	for _, col := range header {
		if !isMissing(row[col]) {
			present++
		}
	}
	return int(math.Round(float64(present) / float64(len(header)) * 100))
}

// parseCSV reads the header and data rows, coercing each cell to a number
// when it parses as one. Ragged rows are tolerated; extra cells are dropped
// and missing cells stay absent.
func parseCSV(raw string) ([]string, []map[string]interface{}, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(raw)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv parse failed: %v", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("csv needs a header row and at least one data row")
	}

	header := make([]string, 0, len(records[0]))
	for _, col := range records[0] {
		header = append(header, strings.TrimSpace(col))
	}

	rows := make([]map[string]interface{}, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i >= len(record) {
				row[col] = ""
				continue
			}
			row[col] = coerceCell(record[i])
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func coerceCell(cell string) interface{} {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return trimmed
}
