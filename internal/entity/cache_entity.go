package entity

import "time"

// Table names one of the two independent cache mappings.
type Table string

const (
	TableTranscripts Table = "transcripts"
	TableSummaries   Table = "summaries"
)

// AllTables lists every cache table in persistence order.
var AllTables = []Table{TableTranscripts, TableSummaries}

// CacheEntry is an immutable cached artifact for one reference.
type CacheEntry struct {
	Content   string
	CreatedAt time.Time
}
