// internal/pipeline/csv-cleaner/models.go
package csvcleaner

// ColumnRule governs how one column is normalized.
type ColumnRule struct {
	DataType        string   `json:"dataType"`
	CleaningActions []string `json:"cleaningActions,omitempty"`
	Transformations []string `json:"transformations,omitempty"`
}

// GlobalRules govern chunk-wide behavior.
type GlobalRules struct {
	DuplicateHandling    string `json:"duplicateHandling"`
	MissingValueStrategy string `json:"missingValueStrategy"`
	OutlierHandling      string `json:"outlierHandling"`
	TextNormalization    string `json:"textNormalization"`
}

// CleaningInstructions is the rule document produced once per cleaning job
// and applied unchanged to every chunk, so output does not depend on where
// the chunk boundaries fall.
type CleaningInstructions struct {
	ColumnRules       map[string]ColumnRule  `json:"columnRules"`
	GlobalRules       GlobalRules            `json:"globalRules"`
	QualityThresholds map[string]interface{} `json:"qualityThresholds,omitempty"`
	ModelUsed         string                 `json:"modelUsed,omitempty"`
}

// Stats accumulates cleaning statistics across chunks. The accounting
// invariant is ProcessedRows + RemovedRows == OriginalRows.
type Stats struct {
	OriginalRows  int      `json:"originalRows"`
	ProcessedRows int      `json:"processedRows"`
	RemovedRows   int      `json:"removedRows"`
	CleanedValues int      `json:"cleanedValues"`
	IssuesFixed   []string `json:"issuesFixed"`
}

type Input struct {
	CSVData          string `json:"csvData"`
	DataContext      string `json:"dataContext"`
	CleaningStrategy string `json:"cleaningStrategy"`
	ChunkSize        int    `json:"chunkSize"`
}

type Output struct {
	Rows            []map[string]interface{} `json:"data"`
	Stats           Stats                    `json:"cleaningStats"`
	Instructions    *CleaningInstructions    `json:"aiInstructions"`
	ChunksProcessed int                      `json:"chunksProcessed"`
}
