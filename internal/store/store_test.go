package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// backends opens a fresh instance of every local backend.
func backends(t *testing.T) map[string]func(t *testing.T) VectorStore {
	t.Helper()
	return map[string]func(t *testing.T) VectorStore{
		"memory": func(t *testing.T) VectorStore {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) VectorStore {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "records.zst"))
			require.NoError(t, err)
			return s
		},
		"hnsw": func(t *testing.T) VectorStore {
			s, err := OpenHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) VectorStore {
			s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "records.db"))
			require.NoError(t, err)
			return s
		},
	}
}

// forEachBackend runs fn against a provisioned store of every backend.
func forEachBackend(t *testing.T, spec IndexSpec, fn func(t *testing.T, s VectorStore)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			if spec.Dimension > 0 {
				require.NoError(t, s.CreateIndex(context.Background(), spec))
			}
			fn(t, s)
		})
	}
}

func rec(id string, vec ...float32) Record {
	return Record{ID: id, Text: "text of " + id, Vector: vec, Metadata: map[string]any{"source": id + ".txt"}}
}

func ids(hits []ScoredRecord) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

var cosine2 = IndexSpec{Dimension: 2, Metric: MetricCosine}

func TestStore_UpsertThenGet(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: a stored record
		require.NoError(t, s.Upsert(ctx, rec("a", 1, 0)))

		// When
		got, err := s.Get(ctx, "a")

		// Then: the same record comes back
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
		assert.Equal(t, "text of a", got.Text)
		assert.Equal(t, []float32{1, 0}, got.Vector)
		assert.Equal(t, "a.txt", got.Metadata["source"])
	})
}

func TestStore_VectorsAreCopied(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()
		r := rec("a", 1, 0)
		require.NoError(t, s.Upsert(ctx, r))
		r.Vector[0] = 42

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		got.Vector[1] = 42

		again, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, again.Vector)
	})
}

func TestStore_UpsertReplaces(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: a upserted with [1,0] then [0,1]
		require.NoError(t, s.Upsert(ctx, rec("a", 1, 0)))
		require.NoError(t, s.Upsert(ctx, rec("a", 0, 1)))

		// Then: get returns the second vector and there is one record
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, got.Vector)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		hits, err := s.Search(ctx, []float32{0, 1}, 5, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(hits))
	})
}

func TestStore_RejectsWrongDimension(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		err := s.Upsert(ctx, rec("a", 1, 0, 0))

		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
		assert.True(t, errors.IsFatal(err))

		require.NoError(t, s.Upsert(ctx, rec("b", 1, 0)))
		_, err = s.Search(ctx, []float32{1}, 3, 0)
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
	})
}

func TestStore_RejectsEmptyTextAndID(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		err := s.Upsert(ctx, Record{ID: "a", Text: "  ", Vector: []float32{1, 0}})
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

		err = s.Upsert(ctx, Record{ID: "", Text: "x", Vector: []float32{1, 0}})
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	})
}

func TestStore_CreateIndexIdempotence(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, rec("a", 1, 0)))

		assert.NoError(t, s.CreateIndex(ctx, IndexSpec{Dimension: 2}))

		err := s.CreateIndex(ctx, IndexSpec{Dimension: 3})
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))

		err = s.CreateIndex(ctx, IndexSpec{Dimension: 2, Metric: MetricL2})
		assert.Equal(t, errors.ErrCodeMetricMismatch, errors.GetCode(err))
	})
}

func TestStore_CreateIndexReprovisionsWhileEmpty(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: a 2-dimensional index that never received a record
		// When: a 3-dimensional l2 index is requested
		err := s.CreateIndex(ctx, IndexSpec{Dimension: 3, Metric: MetricL2})

		// Then: the store switches over and takes 3-dimensional records
		require.NoError(t, err)
		require.NoError(t, s.Upsert(ctx, rec("a", 1, 0, 0)))
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(s.Upsert(ctx, rec("b", 1, 0))))

		// And once populated the shape is fixed again
		err = s.CreateIndex(ctx, IndexSpec{Dimension: 2})
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
	})
}

func TestStore_DeleteBySource(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: two chunks of guide.md and one of faq.md
		chunk := func(id, source string, vec ...float32) Record {
			r := rec(id, vec...)
			r.Metadata = map[string]any{SourceKey: source, "ordinal": 0}
			return r
		}
		_, err := s.UpsertAll(ctx, []Record{
			chunk("g1", "guide.md", 1, 0),
			chunk("g2", "guide.md", 0.9, 0.1),
			chunk("f1", "faq.md", 0, 1),
		})
		require.NoError(t, err)

		// When
		n, err := s.DeleteBySource(ctx, "guide.md")

		// Then: only faq.md is left and search no longer sees guide.md
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		hits, err := s.Search(ctx, []float32{1, 0}, 5, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"f1"}, ids(hits))

		// And an unknown source removes nothing
		n, err = s.DeleteBySource(ctx, "missing.md")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_DeleteBySourceBeforeCreateIndex(t *testing.T) {
	forEachBackend(t, IndexSpec{}, func(t *testing.T, s VectorStore) {
		n, err := s.DeleteBySource(context.Background(), "guide.md")

		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_IntegerMetadataSurvives(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: a record with integer and fractional metadata
		r := rec("a", 1, 0)
		r.Metadata = map[string]any{SourceKey: "a.md", "ordinal": 7, "weight": 0.5}
		require.NoError(t, s.Upsert(ctx, r))

		// When
		got, err := s.Get(ctx, "a")

		// Then: the ordinal is still an int on every backend
		require.NoError(t, err)
		assert.Equal(t, 7, got.Metadata["ordinal"])
		assert.Equal(t, 0.5, got.Metadata["weight"])
		assert.Equal(t, "a.md", got.Metadata[SourceKey])
	})
}

func TestStore_CreateIndexValidation(t *testing.T) {
	forEachBackend(t, IndexSpec{}, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		assert.Error(t, s.CreateIndex(ctx, IndexSpec{Dimension: 0}))
		assert.Error(t, s.CreateIndex(ctx, IndexSpec{Dimension: 2, Metric: "dot"}))
		assert.Error(t, s.CreateIndex(ctx, IndexSpec{Dimension: 2, Params: map[string]any{"bogus": 1}}))
	})
}

func TestStore_BeforeCreateIndex(t *testing.T) {
	forEachBackend(t, IndexSpec{}, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		assert.ErrorIs(t, s.Upsert(ctx, rec("a", 1, 0)), ErrIndexNotCreated)
		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrIndexNotCreated)

		hits, err := s.Search(ctx, []float32{1, 0}, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_SearchOrderingAndCutoff(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: three records at decreasing similarity to [1,0]
		for _, r := range []Record{rec("far", -1, 0), rec("near", 1, 0), rec("mid", 0.8, 0.6)} {
			require.NoError(t, s.Upsert(ctx, r))
		}

		// When: asking for everything
		all, err := s.Search(ctx, []float32{1, 0}, 10, 0)
		require.NoError(t, err)

		// Then: best first with normalized scores
		assert.Equal(t, []string{"near", "mid", "far"}, ids(all))
		assert.InDelta(t, 1.0, all[0].Score, 1e-6)
		assert.InDelta(t, 0.8, all[1].Score, 1e-6)
		assert.InDelta(t, 0.0, all[2].Score, 1e-6)

		// And: k and minScore both bound the result
		top, err := s.Search(ctx, []float32{1, 0}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"near"}, ids(top))

		cut, err := s.Search(ctx, []float32{1, 0}, 10, 0.5)
		require.NoError(t, err)
		assert.Equal(t, []string{"near", "mid"}, ids(cut))
		for _, h := range cut {
			assert.GreaterOrEqual(t, h.Score, 0.5)
		}
	})
}

func TestStore_SearchEdgeCases(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		empty, err := s.Search(ctx, []float32{1, 0}, 5, 0)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		require.NoError(t, s.Upsert(ctx, rec("a", 1, 0)))

		none, err := s.Search(ctx, []float32{1, 0}, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, none)

		none, err = s.Search(ctx, []float32{1, 0}, -3, 0)
		require.NoError(t, err)
		assert.Empty(t, none)

		none, err = s.Search(ctx, []float32{1, 0}, 5, 1.01)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestStore_TiesBreakByID(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Upsert(ctx, rec(id, 0, 1)))
		}

		hits, err := s.Search(ctx, []float32{0, 1}, 3, 0)

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(hits))
	})
}

func TestStore_L2Scores(t *testing.T) {
	forEachBackend(t, IndexSpec{Dimension: 2, Metric: MetricL2}, func(t *testing.T, s VectorStore) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, rec("origin", 0, 0)))
		require.NoError(t, s.Upsert(ctx, rec("five", 3, 4)))

		hits, err := s.Search(ctx, []float32{0, 0}, 5, 0)

		require.NoError(t, err)
		require.Equal(t, []string{"origin", "five"}, ids(hits))
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.InDelta(t, 1.0/6.0, hits[1].Score, 1e-6)
	})
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, rec("a", 1, 0)))

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "never-existed"))

		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, errors.ErrCodeRecordNotFound, errors.GetCode(err))

		hits, err := s.Search(ctx, []float32{1, 0}, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestStore_UpsertAllPartialFailure(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		ctx := context.Background()

		// Given: two valid records, one of the wrong dimension and one blank
		batch := []Record{
			rec("a", 1, 0),
			rec("bad-dim", 1, 0, 0),
			rec("b", 0, 1),
			{ID: "blank", Text: "", Vector: []float32{1, 1}},
		}

		// When
		res, err := s.UpsertAll(ctx, batch)

		// Then: valid ones are stored, the rest reported
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, res.Succeeded)
		require.Len(t, res.Failed, 2)
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(res.Failed["bad-dim"]))
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(res.Failed["blank"]))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestStore_Closed(t *testing.T) {
	forEachBackend(t, cosine2, func(t *testing.T, s VectorStore) {
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Upsert(context.Background(), rec("a", 1, 0)), ErrClosed)
		_, err := s.Search(context.Background(), []float32{1, 0}, 1, 0)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestParseMetric(t *testing.T) {
	for in, want := range map[string]Metric{"": MetricCosine, "cos": MetricCosine, "Cosine": MetricCosine, "l2": MetricL2, "euclidean": MetricL2} {
		got, err := ParseMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMetric("dot")
	assert.Error(t, err)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{BackendMemory, BackendFile, BackendHNSW, BackendSQLite} {
		s, err := Open(ctx, Config{Backend: backend, Dir: filepath.Join(dir, backend)})
		require.NoError(t, err, backend)
		require.NoError(t, s.Close(), backend)
	}

	_, err := Open(ctx, Config{Backend: "redis"})
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))

	_, err = Open(ctx, Config{Backend: BackendMongo})
	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.GetCode(err))
}
