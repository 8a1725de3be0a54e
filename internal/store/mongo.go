package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Cosmos DB for MongoDB vCore vector index settings.
const (
	DefaultMongoIndexName = "vectorSearchIndex"
	mongoVectorPath       = "embedding"

	ParamKind           = "kind"
	ParamNumLists       = "numLists"
	ParamEfConstruction = "efConstruction"
	ParamEfSearchCosmos = "efSearch"

	kindIVF  = "vector-ivf"
	kindHNSW = "vector-hnsw"
)

// MongoConfig locates the collection holding records.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	IndexName  string
	// EfSearch is the query-time candidate list size for vector-hnsw
	// indexes. Cosmos does not keep it in the index definition, so it is
	// configured here and survives reopening. Zero leaves the server
	// default.
	EfSearch int
	Timeout  time.Duration
}

// MongoStore keeps records in an Azure Cosmos DB for MongoDB vCore
// collection and searches through its cosmosSearch vector index.
type MongoStore struct {
	mu     sync.RWMutex
	client *mongo.Client
	coll   *mongo.Collection
	cfg    MongoConfig
	spec   *IndexSpec
	closed bool
}

var _ VectorStore = (*MongoStore)(nil)

type mongoDoc struct {
	ID        string         `bson:"_id"`
	Text      string         `bson:"text"`
	Embedding []float32      `bson:"embedding"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
}

type mongoHit struct {
	SimilarityScore float64  `bson:"similarityScore"`
	Document        mongoDoc `bson:"document"`
}

// OpenMongoStore connects, verifies the server answers and picks up an
// existing vector index.
func OpenMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrCodeCredentialsMissing, "mongo connection string is not set", nil).
			WithSuggestion("set DOCRAG_MONGO_URI")
	}
	if cfg.Database == "" {
		cfg.Database = "docrag"
	}
	if cfg.Collection == "" {
		cfg.Collection = "records"
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultMongoIndexName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, unreachable(err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unreachable(err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:    cfg,
	}
	spec, err := s.existingSpec(connectCtx)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.spec = spec
	return s, nil
}

func unreachable(err error) error {
	return errors.New(errors.ErrCodeStoreUnreachable, "cannot reach the mongo store", err).
		WithSuggestion("check DOCRAG_MONGO_URI and network access to the cluster")
}

func (s *MongoStore) existingSpec(ctx context.Context) (*IndexSpec, error) {
	cur, err := s.coll.Indexes().List(ctx)
	if err != nil {
		// A missing collection has no indexes yet.
		var cmdErr mongo.CommandError
		if stderrors.As(err, &cmdErr) && cmdErr.Code == 26 {
			return nil, nil
		}
		return nil, unreachable(err)
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		if name, _ := idx["name"].(string); name != s.cfg.IndexName {
			continue
		}
		spec, err := specFromIndex(idx)
		if err != nil {
			return nil, err
		}
		return spec, nil
	}
	return nil, cur.Err()
}

// specFromIndex reads dimension, metric and the tuning options from a
// listIndexes entry.
func specFromIndex(idx bson.M) (*IndexSpec, error) {
	opts, ok := asMap(idx["cosmosSearchOptions"])
	if !ok {
		return nil, errors.ConfigError(fmt.Sprintf("index %v is not a cosmosSearch index", idx["name"]), nil)
	}
	dim, err := intParam(map[string]any(opts), "dimensions", 0)
	if err != nil || dim <= 0 {
		return nil, errors.ConfigError(fmt.Sprintf("index %v has no usable dimensions", idx["name"]), err)
	}
	sim, _ := opts["similarity"].(string)
	metric := MetricCosine
	if strings.EqualFold(sim, "L2") {
		metric = MetricL2
	}

	spec := &IndexSpec{Dimension: dim, Metric: metric}
	if kind, ok := opts["kind"].(string); ok && kind != "" {
		spec.Params = map[string]any{ParamKind: kind}
	}
	for _, key := range []string{ParamNumLists, ParamM, ParamEfConstruction, ParamEfSearchCosmos} {
		if _, ok := opts[key]; !ok {
			continue
		}
		n, err := intParam(map[string]any(opts), key, 0)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("index %v has a bad %s", idx["name"], key), err)
		}
		if spec.Params == nil {
			spec.Params = map[string]any{}
		}
		spec.Params[key] = n
	}
	return spec, nil
}

func asMap(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case bson.D:
		return m.Map(), true
	default:
		return nil, false
	}
}

func similarityName(m Metric) string {
	if m == MetricL2 {
		return "L2"
	}
	return "COS"
}

// indexCommand builds the createIndexes command for spec.
func indexCommand(collection, indexName string, spec IndexSpec) (bson.D, error) {
	kind := kindIVF
	if v, ok := spec.Params[ParamKind]; ok {
		kind, _ = v.(string)
	}

	opts := bson.D{{Key: "kind", Value: kind}}
	switch kind {
	case kindIVF:
		numLists, err := intParam(spec.Params, ParamNumLists, 1)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bson.E{Key: "numLists", Value: numLists})
	case kindHNSW:
		m, err := intParam(spec.Params, ParamM, defaultHNSWM)
		if err != nil {
			return nil, err
		}
		efc, err := intParam(spec.Params, ParamEfConstruction, 64)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bson.E{Key: "m", Value: m}, bson.E{Key: "efConstruction", Value: efc})
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported cosmosSearch kind %v", spec.Params[ParamKind]), nil).
			WithSuggestion("use vector-ivf or vector-hnsw")
	}
	opts = append(opts,
		bson.E{Key: "similarity", Value: similarityName(spec.Metric)},
		bson.E{Key: "dimensions", Value: spec.Dimension},
	)

	return bson.D{
		{Key: "createIndexes", Value: collection},
		{Key: "indexes", Value: bson.A{
			bson.D{
				{Key: "name", Value: indexName},
				{Key: "key", Value: bson.D{{Key: mongoVectorPath, Value: "cosmosSearch"}}},
				{Key: "cosmosSearchOptions", Value: opts},
			},
		}},
	}, nil
}

// searchPipeline builds the cosmosSearch aggregation returning k hits with
// their raw searchScore.
func searchPipeline(vector []float32, k int, efSearch int) mongo.Pipeline {
	search := bson.D{
		{Key: "vector", Value: vector},
		{Key: "path", Value: mongoVectorPath},
		{Key: "k", Value: k},
	}
	if efSearch > 0 {
		search = append(search, bson.E{Key: "efSearch", Value: efSearch})
	}
	return mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "cosmosSearch", Value: search},
			{Key: "returnStoredSource", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "similarityScore", Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
			{Key: "document", Value: "$$ROOT"},
		}}},
	}
}

// normalizeSearchScore maps Cosmos searchScore onto the store-wide scale:
// COS reports cosine similarity, L2 reports the distance.
func normalizeSearchScore(m Metric, raw float64) float64 {
	if m == MetricL2 {
		return l2Score(raw)
	}
	return cosineScore(raw)
}

// CreateIndex implements VectorStore.
func (s *MongoStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	spec, err := normalizeSpec(spec, ParamKind, ParamNumLists, ParamM, ParamEfConstruction, ParamEfSearchCosmos)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}
	if s.spec != nil {
		n, err := s.coll.CountDocuments(ctx, bson.D{})
		if err != nil {
			return errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		if n > 0 || sameShape(*s.spec, spec) {
			if err := checkCompatible(*s.spec, spec); err != nil {
				return err
			}
			s.adoptSearchParams(spec)
			return nil
		}
		// Empty collection: drop the old vector index and provision afresh.
		if _, err := s.coll.Indexes().DropOne(ctx, s.cfg.IndexName); err != nil {
			return errors.New(errors.ErrCodeIndexFailed, "drop cosmosSearch index", err)
		}
		s.spec = nil
	}

	cmd, err := indexCommand(s.cfg.Collection, s.cfg.IndexName, spec)
	if err != nil {
		return err
	}
	if err := s.coll.Database().RunCommand(ctx, cmd).Err(); err != nil {
		return errors.New(errors.ErrCodeIndexFailed, "create cosmosSearch index", err)
	}
	s.spec = &spec
	return nil
}

func sameShape(a, b IndexSpec) bool {
	return a.Dimension == b.Dimension && a.Metric == b.Metric
}

// adoptSearchParams takes query-time settings from a compatible request.
// Must be called with the lock held.
func (s *MongoStore) adoptSearchParams(spec IndexSpec) {
	v, ok := spec.Params[ParamEfSearchCosmos]
	if !ok {
		return
	}
	params := make(map[string]any, len(s.spec.Params)+1)
	for k, p := range s.spec.Params {
		params[k] = p
	}
	params[ParamEfSearchCosmos] = v
	updated := *s.spec
	updated.Params = params
	s.spec = &updated
}

// efSearch prefers the index spec and falls back to MongoConfig.EfSearch.
func (s *MongoStore) efSearch() (int, error) {
	return intParam(s.spec.Params, ParamEfSearchCosmos, s.cfg.EfSearch)
}

func (s *MongoStore) writable() error {
	if s.closed {
		return errStoreClosed()
	}
	if s.spec == nil {
		return errNotCreated()
	}
	return nil
}

func toDoc(r Record) mongoDoc {
	return mongoDoc{ID: r.ID, Text: r.Text, Embedding: r.Vector, Metadata: r.Metadata}
}

func (d mongoDoc) record() Record {
	return Record{ID: d.ID, Text: d.Text, Vector: d.Embedding, Metadata: d.Metadata}
}

// Upsert implements VectorStore with a single-document replace.
func (s *MongoStore) Upsert(ctx context.Context, r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.writable(); err != nil {
		return err
	}
	if err := validateRecord(r, s.spec.Dimension); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": r.ID}, toDoc(r), options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// UpsertAll implements VectorStore with one unordered bulk write.
func (s *MongoStore) UpsertAll(ctx context.Context, records []Record) (*BatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.writable(); err != nil {
		return nil, err
	}

	res := newBatchResult(len(records))
	var (
		models []mongo.WriteModel
		ids    []string
	)
	for _, r := range records {
		if err := validateRecord(r, s.spec.Dimension); err != nil {
			res.Failed[r.ID] = err
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(toDoc(r)).
			SetUpsert(true))
		ids = append(ids, r.ID)
	}
	if len(models) == 0 {
		return res, nil
	}

	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	failed := map[int]error{}
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if !stderrors.As(err, &bulkErr) || len(bulkErr.WriteErrors) == 0 {
			return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		for _, we := range bulkErr.WriteErrors {
			failed[we.Index] = errors.New(errors.ErrCodeIndexFailed, we.Message, nil)
		}
	}
	for i, id := range ids {
		if ferr, ok := failed[i]; ok {
			res.Failed[id] = ferr
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

// Get implements VectorStore.
func (s *MongoStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.writable(); err != nil {
		return nil, err
	}
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	r := doc.record()
	return &r, nil
}

// Delete implements VectorStore.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// DeleteBySource implements VectorStore.
func (s *MongoStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	if s.spec == nil {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"metadata." + SourceKey: source})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return int(res.DeletedCount), nil
}

// Search implements VectorStore. The cutoff is applied after the server
// returns its k nearest.
func (s *MongoStore) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed()
	}
	if s.spec == nil || k <= 0 {
		return []ScoredRecord{}, nil
	}
	if err := checkQuery(vector, s.spec.Dimension); err != nil {
		return nil, err
	}

	efSearch, err := s.efSearch()
	if err != nil {
		return nil, err
	}
	cur, err := s.coll.Aggregate(ctx, searchPipeline(vector, k, efSearch))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var hits []ScoredRecord
	for cur.Next(ctx) {
		var h mongoHit
		if err := cur.Decode(&h); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}
		hits = append(hits, ScoredRecord{
			Record: h.Document.record(),
			Score:  normalizeSearchScore(s.spec.Metric, h.SimilarityScore),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	if hits == nil {
		return []ScoredRecord{}, nil
	}
	return rank(hits, k, minScore), nil
}

// Count implements VectorStore.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	return int(n), nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
