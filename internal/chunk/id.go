package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// IDStrategy derives a record id for a chunk.
type IDStrategy interface {
	ChunkID(sourceID string, ordinal int, text string) string
}

// ContentIDs derives ids from the source and the chunk text, so re-ingesting
// an unchanged document replaces its records instead of duplicating them.
// Identical passages within one document share an id.
type ContentIDs struct{}

// ChunkID implements IDStrategy.
func (ContentIDs) ChunkID(sourceID string, _ int, text string) string {
	return ID(sourceID, text)
}

// RandomIDs assigns a fresh UUID to every chunk on every run.
type RandomIDs struct{}

// ChunkID implements IDStrategy.
func (RandomIDs) ChunkID(string, int, string) string {
	return uuid.NewString()
}

// ID returns SHA256(sourceID + ":" + SHA256(text)[:16])[:16].
func ID(sourceID, text string) string {
	contentHash := ContentHash(text)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", sourceID, contentHash[:16])))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StrategyByName maps a configuration value to an IDStrategy.
func StrategyByName(name string) (IDStrategy, error) {
	switch name {
	case "", "content":
		return ContentIDs{}, nil
	case "uuid":
		return RandomIDs{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q (want content or uuid)", name)
	}
}
