// Package store persists embedded passages and answers nearest-neighbour
// queries over them.
//
// Every backend implements VectorStore with the same contract: one vector
// dimension per store fixed by CreateIndex, whole-record upserts, and
// scores normalized so that higher is better and all values fall in [0, 1].
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Sentinel errors. Backends wrap them in coded errors, so both errors.Is
// against the sentinel and errors.GetCode work.
var (
	ErrNotFound        = stderrors.New("record not found")
	ErrIndexNotCreated = stderrors.New("index has not been created")
	ErrClosed          = stderrors.New("store is closed")
)

// SourceKey is the metadata key naming the document a record was cut from.
// DeleteBySource matches on it.
const SourceKey = "source"

// Metric is the distance function an index is built for.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// ParseMetric accepts the metric spellings used in config files.
// The empty string means cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cos", "cosine":
		return MetricCosine, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return "", errors.ConfigError(fmt.Sprintf("unknown metric %q", s), nil).
			WithSuggestion("use cosine or l2")
	}
}

// IndexSpec describes the index a store is provisioned with.
type IndexSpec struct {
	Dimension int
	Metric    Metric
	// Params holds backend-specific tuning, e.g. "m" for HNSW or
	// "numLists" for Cosmos. Keys a backend does not know are rejected.
	Params map[string]any
}

// Record is one stored passage.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// ScoredRecord is a search hit.
type ScoredRecord struct {
	Record
	Score float64
}

// BatchResult reports the outcome of UpsertAll per record.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

func newBatchResult(n int) *BatchResult {
	return &BatchResult{Succeeded: make([]string, 0, n), Failed: map[string]error{}}
}

// VectorStore is implemented by every backend.
type VectorStore interface {
	// CreateIndex provisions the store. It is idempotent for an identical
	// dimension and metric and fails for a different one.
	CreateIndex(ctx context.Context, spec IndexSpec) error

	// Upsert inserts or atomically replaces a record.
	Upsert(ctx context.Context, r Record) error

	// UpsertAll writes each valid record and reports per-record failures.
	// Failures do not undo successes. The error is non-nil only when the
	// store itself is unusable.
	UpsertAll(ctx context.Context, records []Record) (*BatchResult, error)

	// Get returns the record or an error matching ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteBySource removes every record whose SourceKey metadata equals
	// source and returns how many went. An unprovisioned store has nothing
	// to delete.
	DeleteBySource(ctx context.Context, source string) (int, error)

	// Search returns at most k records scoring at least minScore, best
	// first. k <= 0 and an empty store give an empty slice.
	Search(ctx context.Context, vector []float32, k int, minScore float64) ([]ScoredRecord, error)

	// Count returns the number of live records.
	Count(ctx context.Context) (int, error)

	Close() error
}

func errNotFound(id string) error {
	return errors.New(errors.ErrCodeRecordNotFound, fmt.Sprintf("record %q not found", id), ErrNotFound)
}

func errNotCreated() error {
	return errors.New(errors.ErrCodeIndexFailed, "store is not provisioned", ErrIndexNotCreated).
		WithSuggestion("run ingest first so the index is created")
}

func errStoreClosed() error {
	return errors.New(errors.ErrCodeInternal, "store is closed", ErrClosed)
}

// normalizeSpec applies the cosine default and rejects invalid specs and
// parameters outside allowed.
func normalizeSpec(spec IndexSpec, allowed ...string) (IndexSpec, error) {
	if spec.Dimension <= 0 {
		return spec, errors.ConfigError(fmt.Sprintf("index dimension must be positive, got %d", spec.Dimension), nil)
	}
	m, err := ParseMetric(string(spec.Metric))
	if err != nil {
		return spec, err
	}
	spec.Metric = m

	for key := range spec.Params {
		ok := false
		for _, a := range allowed {
			if key == a {
				ok = true
				break
			}
		}
		if !ok {
			return spec, errors.ConfigError(fmt.Sprintf("index parameter %q is not supported by this store", key), nil)
		}
	}
	return spec, nil
}

// checkCompatible reports whether an existing index can serve requested.
func checkCompatible(existing, requested IndexSpec) error {
	if existing.Dimension != requested.Dimension {
		return errors.DimensionMismatch(existing.Dimension, requested.Dimension)
	}
	if existing.Metric != requested.Metric {
		return errors.New(errors.ErrCodeMetricMismatch,
			fmt.Sprintf("index uses metric %s, requested %s", existing.Metric, requested.Metric), nil).
			WithSuggestion("delete the store or keep the original metric")
	}
	return nil
}

// validateRecord checks a record against the index dimension.
func validateRecord(r Record, dim int) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.ValidationError("record id is empty", nil)
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.ValidationError(fmt.Sprintf("record %q has empty text", r.ID), nil)
	}
	if len(r.Vector) != dim {
		return errors.DimensionMismatch(dim, len(r.Vector)).WithDetail("id", r.ID)
	}
	return nil
}

func checkQuery(vector []float32, dim int) error {
	if len(vector) != dim {
		return errors.DimensionMismatch(dim, len(vector))
	}
	return nil
}

// cloneRecord deep-copies the vector and metadata map.
func cloneRecord(r Record) Record {
	out := Record{ID: r.ID, Text: r.Text}
	if r.Vector != nil {
		out.Vector = append([]float32(nil), r.Vector...)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func recordSource(r *Record) string {
	s, _ := r.Metadata[SourceKey].(string)
	return s
}

func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, errors.ConfigError(fmt.Sprintf("index parameter %q must be an integer, got %v", key, v), nil)
}
