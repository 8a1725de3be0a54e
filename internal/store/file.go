package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// snapshotVersion is bumped when the on-disk layout changes.
const snapshotVersion = 1

// fileSnapshot is the gob payload written inside the zstd stream.
type fileSnapshot struct {
	Version int
	Spec    *IndexSpec
	Records []Record
}

// FileStore is a MemoryStore persisted to a single zstd-compressed gob
// file. An exclusive lock file is held while the store is open so two
// processes never write the same snapshot.
type FileStore struct {
	*MemoryStore

	path  string
	lock  *flock.Flock
	dirty atomic.Bool

	flushMu sync.Mutex
}

var _ VectorStore = (*FileStore)(nil)

// OpenFileStore opens or creates the store at path.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.IOError("create store directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.IOError("lock store", err)
	}
	if !locked {
		return nil, errors.New(errors.ErrCodeStoreLocked, fmt.Sprintf("store %s is in use by another process", path), nil).
			WithSuggestion("stop the other docrag process (watch or serve) and retry")
	}

	s := &FileStore{MemoryStore: NewMemoryStore(), path: path, lock: lock}
	if err := s.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.IOError("open store snapshot", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return corrupt(s.path, err)
	}
	defer dec.Close()

	var snap fileSnapshot
	if err := gob.NewDecoder(dec).Decode(&snap); err != nil {
		return corrupt(s.path, err)
	}
	if snap.Version != snapshotVersion {
		return corrupt(s.path, fmt.Errorf("unsupported snapshot version %d", snap.Version))
	}

	s.restore(snap.Spec, snap.Records)
	slog.Debug("file_store_loaded",
		slog.String("path", s.path),
		slog.Int("records", len(snap.Records)))
	return nil
}

func corrupt(path string, err error) error {
	return errors.New(errors.ErrCodeCorruptIndex, "store snapshot "+path+" is unreadable", err).
		WithSuggestion("delete the file and ingest again")
}

// CreateIndex implements VectorStore.
func (s *FileStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	before := s.MemoryStore.Spec()
	if err := s.MemoryStore.CreateIndex(ctx, spec); err != nil {
		return err
	}
	after := s.MemoryStore.Spec()
	if before == nil || before.Dimension != after.Dimension || before.Metric != after.Metric {
		s.dirty.Store(true)
	}
	return nil
}

// Upsert implements VectorStore.
func (s *FileStore) Upsert(ctx context.Context, r Record) error {
	if err := s.MemoryStore.Upsert(ctx, r); err != nil {
		return err
	}
	s.dirty.Store(true)
	return nil
}

// UpsertAll implements VectorStore.
func (s *FileStore) UpsertAll(ctx context.Context, records []Record) (*BatchResult, error) {
	res, err := s.MemoryStore.UpsertAll(ctx, records)
	if err != nil {
		return nil, err
	}
	if len(res.Succeeded) > 0 {
		s.dirty.Store(true)
	}
	return res, nil
}

// Delete implements VectorStore.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := s.MemoryStore.Delete(ctx, id); err != nil {
		return err
	}
	s.dirty.Store(true)
	return nil
}

// DeleteBySource implements VectorStore.
func (s *FileStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	n, err := s.MemoryStore.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.dirty.Store(true)
	}
	return n, nil
}

// Flush writes the snapshot if anything changed since the last flush.
// The file is replaced atomically via a temp file and rename.
func (s *FileStore) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if !s.dirty.Swap(false) {
		return nil
	}
	spec, records := s.MemoryStore.snapshot()

	if err := writeAtomic(s.path, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		if err := gob.NewEncoder(enc).Encode(fileSnapshot{Version: snapshotVersion, Spec: spec, Records: records}); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	}); err != nil {
		s.dirty.Store(true)
		return errors.IOError("write store snapshot", err)
	}
	return nil
}

// Close flushes and releases the lock.
func (s *FileStore) Close() error {
	flushErr := s.Flush()
	_ = s.MemoryStore.Close()
	if err := s.lock.Unlock(); err != nil && flushErr == nil {
		return errors.IOError("unlock store", err)
	}
	return flushErr
}

// writeAtomic writes path through a temp file in the same directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
