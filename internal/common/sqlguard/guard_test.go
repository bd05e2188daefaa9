package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ai-pipeline/internal/common/errors"
)

func TestCheckBlocksMutatingVerbs(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"drop table", "DROP TABLE repositories"},
		{"delete from", "delete from repositories where id = 1"},
		{"update set", "UPDATE repositories SET stars = 0"},
		{"insert into", "Insert Into repositories VALUES (1)"},
		{"alter table", "alter table repositories add column x int"},
		{"truncate table", "TRUNCATE TABLE repositories"},
		{"create table", "create table evil (id int)"},
		{"mutation hidden inside select", "SELECT * FROM repositories; DROP TABLE repositories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.query)
			require.Error(t, err)

			stdErr := apperrors.FromError(err)
			assert.Equal(t, apperrors.ErrCodeUnsafeQuery, stdErr.Code)
		})
	}
}

func TestCheckAllowsReadColumnsNamedLikeVerbs(t *testing.T) {
	// updated_at must not trip the word-bounded "update" check
	got, err := Check("SELECT name, updated_at, created_at FROM repositories LIMIT 10")
	require.NoError(t, err)
	assert.Contains(t, got, "updated_at")
}

func TestCheckRequiresReadVerb(t *testing.T) {
	_, err := Check("EXPLAIN ANALYZE something")
	require.Error(t, err)

	stdErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrCodeNotAQuery, stdErr.Code)
}

func TestCheckInjectsRowLimit(t *testing.T) {
	t.Run("appends LIMIT 50 when absent", func(t *testing.T) {
		got, err := Check("SELECT * FROM repositories ORDER BY stars DESC")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM repositories ORDER BY stars DESC LIMIT 50", got)
	})

	t.Run("keeps an existing limit unmodified", func(t *testing.T) {
		got, err := Check("SELECT * FROM repositories LIMIT 5")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM repositories LIMIT 5", got)
	})
}

func TestSanitize(t *testing.T) {
	raw := "```sql\nSELECT * FROM repositories;\n```"
	assert.Equal(t, "SELECT * FROM repositories", Sanitize(raw))
}

func TestFormat(t *testing.T) {
	got := Format("select name from repositories where language = 'Go' order by stars desc limit 50")
	assert.Contains(t, got, "SELECT")
	assert.Contains(t, got, "\nFROM repositories")
	assert.Contains(t, got, "\nORDER BY stars DESC")
	assert.Contains(t, got, "\nLIMIT 50")
}
