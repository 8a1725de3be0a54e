package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendHNSW   = "hnsw"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config selects and locates a backend.
type Config struct {
	Backend string
	// Dir holds the data file of local backends.
	Dir   string
	Mongo MongoConfig
}

// Open builds the backend named in cfg.
func Open(ctx context.Context, cfg Config) (VectorStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return wrapOpen(OpenFileStore(filepath.Join(cfg.Dir, "records.zst")))
	case BackendHNSW:
		return wrapOpen(OpenHNSWStore(filepath.Join(cfg.Dir, "vectors.hnsw")))
	case BackendSQLite:
		return wrapOpen(OpenSQLiteStore(ctx, filepath.Join(cfg.Dir, "records.db")))
	case BackendMongo:
		return wrapOpen(OpenMongoStore(ctx, cfg.Mongo))
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown store backend %q", cfg.Backend), nil).
			WithSuggestion("use one of memory, file, hnsw, sqlite, mongo")
	}
}

// wrapOpen keeps a failed constructor from returning a typed nil interface.
func wrapOpen[S VectorStore](s S, err error) (VectorStore, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
