package store

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"modernc.org/sqlite"

	"github.com/Aman-CERP/docrag/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	id       TEXT PRIMARY KEY,
	text     TEXT NOT NULL,
	vector   BLOB NOT NULL,
	metadata TEXT
);`

const sqliteUpsert = `
INSERT INTO records (id, text, vector, metadata) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text = excluded.text, vector = excluded.vector, metadata = excluded.metadata`

var registerVectorFuncs sync.Once

// registerVectorFunctions makes vec_cosine and vec_l2 available on every
// connection opened afterwards.
func registerVectorFunctions() {
	registerVectorFuncs.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("vec_cosine", 2, vecCosine)
		_ = sqlite.RegisterDeterministicScalarFunction("vec_l2", 2, vecL2)
	})
}

func vecArgs(name string, args []driver.Value) ([]float32, []float32, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
	}
	a, err := blobArg(args[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := blobArg(args[1])
	if err != nil {
		return nil, nil, err
	}
	if len(a) != len(b) {
		return nil, nil, fmt.Errorf("%s: dimension mismatch %d vs %d", name, len(a), len(b))
	}
	return a, b, nil
}

func blobArg(v driver.Value) ([]float32, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("vector argument must be a BLOB, got %T", v)
	}
	return decodeVector(b)
}

func vecCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := vecArgs("vec_cosine", args)
	if err != nil {
		return nil, err
	}
	return cosine(a, b), nil
}

func vecL2(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := vecArgs("vec_l2", args)
	if err != nil {
		return nil, err
	}
	return l2(a, b), nil
}

// encodeVector stores float32s little-endian, four bytes each.
func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// SQLiteStore keeps records in a single SQLite database using the pure Go
// modernc.org/sqlite driver. Search is an exact scan through the vec_*
// scalar functions.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	spec   *IndexSpec
	closed bool
}

var _ VectorStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the database at path. An empty path
// opens a private in-memory database.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	registerVectorFunctions()

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.IOError("create store directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.IOError("open sqlite store", err)
	}
	// One connection: a single writer and a stable in-memory database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA busy_timeout = 5000", "PRAGMA synchronous = NORMAL"}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, errors.IOError("configure sqlite store", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, corrupt(path, err)
	}

	s := &SQLiteStore{db: db, path: path}
	spec, err := s.readSpec(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.spec = spec
	return s, nil
}

func (s *SQLiteStore) readSpec(ctx context.Context) (*IndexSpec, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, corrupt(s.path, err)
	}
	defer func() { _ = rows.Close() }()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, corrupt(s.path, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt(s.path, err)
	}
	if len(meta) == 0 {
		return nil, nil
	}

	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return nil, corrupt(s.path, fmt.Errorf("bad dimension %q", meta["dimension"]))
	}
	return &IndexSpec{Dimension: dim, Metric: Metric(meta["metric"])}, nil
}

// CreateIndex implements VectorStore.
func (s *SQLiteStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	spec, err := normalizeSpec(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}
	if s.spec != nil {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
			return errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		if n > 0 {
			return checkCompatible(*s.spec, spec)
		}
	}

	// An empty store takes the requested index spec, replacing any earlier one.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range map[string]string{"dimension": strconv.Itoa(spec.Dimension), "metric": string(spec.Metric)} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	s.spec = &spec
	return nil
}

func (s *SQLiteStore) writable() error {
	if s.closed {
		return errStoreClosed()
	}
	if s.spec == nil {
		return errNotCreated()
	}
	return nil
}

func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, errors.ValidationError("record metadata is not serializable", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) write(ctx context.Context, db execer, r Record) error {
	if err := validateRecord(r, s.spec.Dimension); err != nil {
		return err
	}
	meta, err := encodeMetadata(r.Metadata)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteUpsert, r.ID, r.Text, encodeVector(r.Vector), meta); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// Upsert implements VectorStore.
func (s *SQLiteStore) Upsert(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	return s.write(ctx, s.db, r)
}

// UpsertAll implements VectorStore. Valid records are written in one
// transaction.
func (s *SQLiteStore) UpsertAll(ctx context.Context, records []Record) (*BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	res := newBatchResult(len(records))
	for _, r := range records {
		if err := s.write(ctx, tx, r); err != nil {
			res.Failed[r.ID] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, r.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, extra ...any) (Record, error) {
	var (
		r    Record
		blob []byte
		meta sql.NullString
	)
	dest := append([]any{&r.ID, &r.Text, &blob, &meta}, extra...)
	if err := row.Scan(dest...); err != nil {
		return r, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return r, err
	}
	r.Vector = vec
	if meta.Valid {
		md, err := decodeMetadata(meta.String)
		if err != nil {
			return r, err
		}
		r.Metadata = md
	}
	return r, nil
}

// decodeMetadata keeps integers as int so metadata reads back the way it
// was written. Other numbers become float64.
func decodeMetadata(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for k, v := range m {
		m[k] = fromJSONNumbers(v)
	}
	return m, nil
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			if i >= math.MinInt && i <= math.MaxInt {
				return int(i)
			}
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSONNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSONNumbers(e)
		}
		return t
	}
	return v
}

// Get implements VectorStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.writable(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, text, vector, metadata FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	return &r, nil
}

// Delete implements VectorStore.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// DeleteBySource implements VectorStore.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	if s.spec == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE json_extract(metadata, '$.`+SourceKey+`') = ?`, source)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return int(n), nil
}

// Search implements VectorStore. Scoring, the cutoff and ordering all run
// inside SQLite.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]ScoredRecord, error) {
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

	scoreExpr := "MAX(0.0, vec_cosine(vector, ?1))"
	if s.spec.Metric == MetricL2 {
		scoreExpr = "1.0 / (1.0 + vec_l2(vector, ?1))"
	}
	query := `SELECT id, text, vector, metadata, score FROM (
		SELECT id, text, vector, metadata, ` + scoreExpr + ` AS score FROM records
	) WHERE score >= ?2 ORDER BY score DESC, id ASC LIMIT ?3`

	rows, err := s.db.QueryContext(ctx, query, encodeVector(vector), minScore, k)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	defer func() { _ = rows.Close() }()

	out := []ScoredRecord{}
	for rows.Next() {
		var sc float64
		r, err := scanRecord(rows, &sc)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}
		out = append(out, ScoredRecord{Record: r, Score: clamp01(sc)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	return out, nil
}

// Count implements VectorStore.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	return n, nil
}

// Close implements VectorStore.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		slog.Warn("sqlite_store_close_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return err
	}
	return nil
}
