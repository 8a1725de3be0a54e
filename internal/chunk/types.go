// Package chunk splits document text into bounded passages for embedding.
package chunk

// Chunk size defaults, matching the recursive splitter the pipeline was tuned with.
const (
	DefaultMaxChunkSize = 300 // runes
	DefaultOverlap      = 0   // runes
)

// Chunk is a bounded slice of one document's text.
// It is transient: the indexer turns it into a store record once embedded.
type Chunk struct {
	ID       string // Derived by an IDStrategy
	SourceID string // Document identifier, e.g. a path relative to the ingest root
	Ordinal  int    // 0-based position within the document
	Text     string
}

// Document is the input to a Splitter.
type Document struct {
	SourceID string
	Text     string
}
