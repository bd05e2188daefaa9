package csvcleaner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ai-pipeline/internal/common/errors"
	"ai-pipeline/internal/common/genai"
	"ai-pipeline/internal/common/logger"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, prompt string) (*genai.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &genai.Result{Text: s.text, Model: "cleaner-model"}, nil
}

const modelInstructions = `{
	"columnRules": {
		"name": {"dataType": "text"},
		"price": {"dataType": "numeric"},
		"email": {"dataType": "email"},
		"website": {"dataType": "url"},
		"signup_date": {"dataType": "date"}
	},
	"globalRules": {
		"duplicateHandling": "remove",
		"missingValueStrategy": "impute",
		"outlierHandling": "flag",
		"textNormalization": "title_case"
	}
}`

const sampleCSV = `name,price,email,website,signup_date
 alice   smith ,"$1,234.50",ALICE@Example.com,example.com,2024-03-01
bob,20,bob@example.com,https://bob.dev,01/02/2006
bob,20,bob@example.com,https://bob.dev,2006-01-02
carol,,not-an-email,www.carol.dev,bogus`

func newTestHandler(t *testing.T, gen Generator) *Handler {
	h := NewHandler(LoadConfig(), gen, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestExecuteCleansNormalizesAndDedupes(t *testing.T) {
	gen := &stubGenerator{text: modelInstructions}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{CSVData: sampleCSV})
	require.NoError(t, err)

	// accounting invariant
	assert.Equal(t, 4, out.Stats.OriginalRows)
	assert.Equal(t, 3, out.Stats.ProcessedRows)
	assert.Equal(t, 1, out.Stats.RemovedRows)
	assert.Equal(t, out.Stats.OriginalRows, out.Stats.ProcessedRows+out.Stats.RemovedRows)
	assert.Greater(t, out.Stats.CleanedValues, 0)

	require.Len(t, out.Rows, 3)
	first := out.Rows[0]
	assert.Equal(t, "Alice Smith", first["name"])
	assert.Equal(t, 1234.5, first["price"])
	assert.Equal(t, "alice@example.com", first["email"])
	assert.Equal(t, "https://example.com", first["website"])
	assert.Equal(t, "2024-03-01", first["signup_date"])
	assert.Equal(t, true, first["ai_cleaned"])
	assert.Equal(t, 100, first["quality_score"])
	assert.Equal(t, "2026-08-30T12:00:00Z", first["processing_timestamp"])

	// the two bob rows normalize to the same canonical form
	second := out.Rows[1]
	assert.Equal(t, "Bob", second["name"])
	assert.Equal(t, "2006-01-02", second["signup_date"])

	// missing price imputed from the chunk's own median, bad email and date nulled
	last := out.Rows[2]
	assert.Equal(t, 627.25, last["price"])
	assert.Nil(t, last["email"])
	assert.Nil(t, last["signup_date"])
	assert.Equal(t, "https://www.carol.dev", last["website"])
	assert.Equal(t, 60, last["quality_score"])
}

func TestExecuteAssignsContiguousIDsAcrossChunks(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,score\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "repo-%d,%d\n", i, i*10)
	}

	gen := &stubGenerator{err: errors.New("down")}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{CSVData: b.String(), ChunkSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ChunksProcessed)

	require.Len(t, out.Rows, 5)
	for i, row := range out.Rows {
		assert.Equal(t, i+1, row["id"])
	}
}

func TestInstructionsFetchedOncePerJob(t *testing.T) {
	gen := &stubGenerator{text: modelInstructions}
	h := newTestHandler(t, gen)

	csvData := sampleCSV
	out, err := h.Execute(context.Background(), &Input{CSVData: csvData, ChunkSize: 1})
	require.NoError(t, err)

	assert.Equal(t, 4, out.ChunksProcessed)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "cleaner-model", out.Instructions.ModelUsed)
}

func TestDefaultInstructionsOnInferenceFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("LLM_RETRIES_EXHAUSTED: status 503")}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{CSVData: sampleCSV})
	require.NoError(t, err)

	require.NotNil(t, out.Instructions)
	assert.Empty(t, out.Instructions.ModelUsed)
	assert.Equal(t, "remove", out.Instructions.GlobalRules.DuplicateHandling)
	assert.Equal(t, "impute", out.Instructions.GlobalRules.MissingValueStrategy)

	// type inference still recognizes the obvious columns
	assert.Equal(t, "email", out.Instructions.ColumnRules["email"].DataType)
	assert.Equal(t, "url", out.Instructions.ColumnRules["website"].DataType)
	assert.Equal(t, "date", out.Instructions.ColumnRules["signup_date"].DataType)

	// cleaning proceeds regardless
	assert.Equal(t, out.Stats.OriginalRows, out.Stats.ProcessedRows+out.Stats.RemovedRows)
}

func TestExecuteStopsBetweenChunksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &stubGenerator{err: errors.New("down")}
	h := newTestHandler(t, gen)

	_, err := h.Execute(ctx, &Input{CSVData: sampleCSV, ChunkSize: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteRejectsOversizedFile(t *testing.T) {
	gen := &stubGenerator{text: modelInstructions}
	h := newTestHandler(t, gen)
	h.config = &Config{ChunkSize: 1000, SampleRows: 10, InstructionTimeout: time.Second, MaxRows: 2,
		DuplicateIgnoreFields: []string{"id"}}

	_, err := h.Execute(context.Background(), &Input{CSVData: sampleCSV})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.FromError(err).Code)
	assert.Equal(t, 0, gen.calls)
}

func TestExecuteRejectsEmptyPayload(t *testing.T) {
	h := newTestHandler(t, &stubGenerator{})

	for _, payload := range []string{"", "name,price"} {
		_, err := h.Execute(context.Background(), &Input{CSVData: payload})
		assert.Error(t, err)
	}
}

func TestSalvagedInstructionsSurviveBrokenEnvelope(t *testing.T) {
	// envelope beyond repair, column rules intact inside it
	gen := &stubGenerator{
		text: `{"summary": oops not json, "columnRules": {"price": {"dataType": "text"}}, "globalRules": broken`,
	}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{CSVData: sampleCSV})
	require.NoError(t, err)

	// the salvaged rule drives cleaning, not a default-inferred one
	assert.Equal(t, "cleaner-model", out.Instructions.ModelUsed)
	assert.Equal(t, "text", out.Instructions.ColumnRules["price"].DataType)
	assert.NotContains(t, out.Instructions.ColumnRules, "columnRules")

	// columns the fragment did not cover still get backfilled rules
	assert.Equal(t, "email", out.Instructions.ColumnRules["email"].DataType)
	assert.Equal(t, "remove", out.Instructions.GlobalRules.DuplicateHandling)
}

func TestCleaningIsIdempotent(t *testing.T) {
	gen := &stubGenerator{text: modelInstructions}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{CSVData: sampleCSV})
	require.NoError(t, err)

	header := []string{"name", "price", "email", "website", "signup_date"}
	again, stats, err := h.cleanChunk(out.Rows, header, out.Instructions)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.CleanedValues)
	assert.Equal(t, 0, stats.RemovedRows)
	assert.Equal(t, out.Rows, again)
}

func TestModelInstructionsBackfillMissingColumns(t *testing.T) {
	// the model only mentions price; the other columns still get rules
	gen := &stubGenerator{text: `{"columnRules": {"price": {"dataType": "numeric"}}}`}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{CSVData: sampleCSV})
	require.NoError(t, err)
	assert.Equal(t, "numeric", out.Instructions.ColumnRules["price"].DataType)
	assert.Equal(t, "email", out.Instructions.ColumnRules["email"].DataType)
	assert.Equal(t, "remove", out.Instructions.GlobalRules.DuplicateHandling)
}

func TestParseCSVCoercesNumbers(t *testing.T) {
	header, rows, err := parseCSV("a,b,c\n1.5,text,\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.5, rows[0]["a"])
	assert.Equal(t, "text", rows[0]["b"])
	assert.Equal(t, "", rows[0]["c"])
}
