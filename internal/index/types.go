// Package index runs the ingest pipeline: read, extract, split, embed and
// upsert, with one embedding dimension per store.
package index

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/docrag/internal/store"
)

// Ingest defaults.
const (
	DefaultWorkers   = 4
	DefaultBatchSize = 16
)

// Record metadata keys written for every chunk.
const (
	MetaSource      = store.SourceKey
	MetaContentHash = "content_hash"
	MetaOrdinal     = "ordinal"
	MetaExt         = "ext"
)

// Citation returns the document and chunk ordinal recorded for r. Stores
// that round-trip metadata through JSON or BSON hand numbers back as
// float64 or int32/int64; all are accepted. Ordinal is -1 when absent.
func Citation(r store.Record) (source string, ordinal int) {
	source, _ = r.Metadata[MetaSource].(string)
	ordinal = -1
	switch v := r.Metadata[MetaOrdinal].(type) {
	case int:
		ordinal = v
	case int32:
		ordinal = int(v)
	case int64:
		ordinal = int(v)
	case float64:
		ordinal = int(v)
	}
	return source, ordinal
}

// Failure describes one document or chunk that was skipped.
type Failure struct {
	Document string
	Ordinal  int // -1 when the whole document failed
	Err      error
}

func (f Failure) String() string {
	if f.Ordinal < 0 {
		return fmt.Sprintf("%s: %v", f.Document, f.Err)
	}
	return fmt.Sprintf("%s#%d: %v", f.Document, f.Ordinal, f.Err)
}

// Report summarizes an ingest run. On an aborted run it covers the work
// done before the abort.
type Report struct {
	Source          string
	FilesProcessed  int
	FilesSkipped    int // Filtered by extension or failed to read/extract
	FilesFailed     int // Subset of FilesSkipped that failed rather than being filtered
	ChunksProcessed int
	ChunksSkipped   int
	ChunksReplaced  int // Earlier chunks of re-ingested documents that were removed first
	Dimension       int
	Duration        time.Duration
	Failures        []Failure
}
