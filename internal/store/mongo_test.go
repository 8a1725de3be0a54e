package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Aman-CERP/docrag/internal/errors"
)

func TestIndexCommand_IVFDefaults(t *testing.T) {
	cmd, err := indexCommand("records", DefaultMongoIndexName, IndexSpec{Dimension: 1536, Metric: MetricCosine})
	require.NoError(t, err)

	m := cmd.Map()
	assert.Equal(t, "records", m["createIndexes"])

	idx := m["indexes"].(bson.A)[0].(bson.D).Map()
	assert.Equal(t, "vectorSearchIndex", idx["name"])
	assert.Equal(t, bson.D{{Key: "embedding", Value: "cosmosSearch"}}, idx["key"])

	opts := idx["cosmosSearchOptions"].(bson.D).Map()
	assert.Equal(t, "vector-ivf", opts["kind"])
	assert.Equal(t, 1, opts["numLists"])
	assert.Equal(t, "COS", opts["similarity"])
	assert.Equal(t, 1536, opts["dimensions"])
}

func TestIndexCommand_HNSWAndL2(t *testing.T) {
	cmd, err := indexCommand("c", "i", IndexSpec{
		Dimension: 4,
		Metric:    MetricL2,
		Params:    map[string]any{ParamKind: "vector-hnsw", ParamM: 32, ParamEfConstruction: float64(100)},
	})
	require.NoError(t, err)

	opts := cmd.Map()["indexes"].(bson.A)[0].(bson.D).Map()["cosmosSearchOptions"].(bson.D).Map()
	assert.Equal(t, "vector-hnsw", opts["kind"])
	assert.Equal(t, 32, opts["m"])
	assert.Equal(t, 100, opts["efConstruction"])
	assert.Equal(t, "L2", opts["similarity"])

	_, err = indexCommand("c", "i", IndexSpec{Dimension: 4, Params: map[string]any{ParamKind: "diskann"}})
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestSearchPipeline(t *testing.T) {
	p := searchPipeline([]float32{0.1, 0.2}, 5, 0)

	require.Len(t, p, 2)
	search := p[0].Map()["$search"].(bson.D).Map()
	assert.Equal(t, true, search["returnStoredSource"])
	cs := search["cosmosSearch"].(bson.D).Map()
	assert.Equal(t, []float32{0.1, 0.2}, cs["vector"])
	assert.Equal(t, "embedding", cs["path"])
	assert.Equal(t, 5, cs["k"])
	assert.NotContains(t, cs, "efSearch")

	project := p[1].Map()["$project"].(bson.D).Map()
	assert.Equal(t, bson.D{{Key: "$meta", Value: "searchScore"}}, project["similarityScore"])
}

func TestSpecFromIndex(t *testing.T) {
	spec, err := specFromIndex(bson.M{
		"name":                "vectorSearchIndex",
		"cosmosSearchOptions": bson.M{"kind": "vector-ivf", "similarity": "L2", "dimensions": int32(8)},
	})
	require.NoError(t, err)
	assert.Equal(t, &IndexSpec{Dimension: 8, Metric: MetricL2, Params: map[string]any{ParamKind: "vector-ivf"}}, spec)

	_, err = specFromIndex(bson.M{"name": "_id_"})
	assert.Error(t, err)
}

func TestSpecFromIndex_RecoversTuning(t *testing.T) {
	// Given: an hnsw index listed with its build and search options
	idx := bson.M{
		"name": "vectorSearchIndex",
		"cosmosSearchOptions": bson.D{
			{Key: "kind", Value: "vector-hnsw"},
			{Key: "m", Value: int32(24)},
			{Key: "efConstruction", Value: int64(80)},
			{Key: "efSearch", Value: float64(48)},
			{Key: "similarity", Value: "COS"},
			{Key: "dimensions", Value: int32(4)},
		},
	}

	// When
	spec, err := specFromIndex(idx)

	// Then: every option comes back and search uses efSearch
	require.NoError(t, err)
	assert.Equal(t, map[string]any{ParamKind: "vector-hnsw", ParamM: 24, ParamEfConstruction: 80, ParamEfSearchCosmos: 48}, spec.Params)

	s := &MongoStore{spec: spec}
	ef, err := s.efSearch()
	require.NoError(t, err)
	assert.Equal(t, 48, ef)
}

func TestMongoStore_EfSearchSurvivesReopen(t *testing.T) {
	// Given: a reopened store whose index definition carries no efSearch
	s := &MongoStore{
		cfg:  MongoConfig{EfSearch: 40},
		spec: &IndexSpec{Dimension: 4, Metric: MetricCosine, Params: map[string]any{ParamKind: "vector-hnsw"}},
	}

	// Then: the configured value is used
	ef, err := s.efSearch()
	require.NoError(t, err)
	assert.Equal(t, 40, ef)
	cs := searchPipeline([]float32{1, 0, 0, 0}, 3, ef)[0].Map()["$search"].(bson.D).Map()["cosmosSearch"].(bson.D).Map()
	assert.Equal(t, 40, cs["efSearch"])

	// When: a compatible CreateIndex names its own efSearch
	s.adoptSearchParams(IndexSpec{Dimension: 4, Params: map[string]any{ParamEfSearchCosmos: 64}})

	// Then: it wins and the build options are kept
	ef, err = s.efSearch()
	require.NoError(t, err)
	assert.Equal(t, 64, ef)
	assert.Equal(t, "vector-hnsw", s.spec.Params[ParamKind])
}

func TestNormalizeSearchScore(t *testing.T) {
	assert.InDelta(t, 1.0, normalizeSearchScore(MetricCosine, 1), 1e-9)
	assert.InDelta(t, 0.3, normalizeSearchScore(MetricCosine, 0.3), 1e-9)
	assert.InDelta(t, 0.0, normalizeSearchScore(MetricCosine, -0.5), 1e-9)
	assert.InDelta(t, 0.2, normalizeSearchScore(MetricL2, 4), 1e-9)
}

func TestOpenMongoStore_RequiresURI(t *testing.T) {
	_, err := OpenMongoStore(context.Background(), MongoConfig{})

	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.GetCode(err))
}
