// Package source enumerates the documents an ingest run reads: a local
// folder tree or a prefix in an S3-compatible bucket.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// URI schemes accepted by Open.
const (
	SchemeMinIO = "minio"
	SchemeS3    = "s3"
)

// DefaultExtensions are ingested when the caller does not restrict them.
var DefaultExtensions = []string{".txt", ".md", ".pdf"}

// Document is one raw document yielded by a Source.
type Document struct {
	ID      string // Slash path relative to the source root, or the object key below the prefix
	Ext     string // Lower-case extension including the dot
	Size    int64
	ModTime time.Time

	open func(ctx context.Context) (io.ReadCloser, error)
}

// Open returns the document's bytes. The caller closes the reader.
func (d Document) Open(ctx context.Context) (io.ReadCloser, error) {
	if d.open == nil {
		return nil, errors.New(errors.ErrCodeFileUnreadable, "document "+d.ID+" has no content", nil)
	}
	return d.open(ctx)
}

// NewDocument builds a Document whose bytes come from open. It exists for
// callers that feed the indexer from something other than a Source.
func NewDocument(id string, size int64, open func(ctx context.Context) (io.ReadCloser, error)) Document {
	return Document{ID: id, Ext: Ext(id), Size: size, open: open}
}

// WalkFunc is called once per document. Returning an error stops the walk
// and Walk returns that error.
type WalkFunc func(doc Document) error

// Source enumerates documents.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string
	// Walk calls fn for every document, in a stable order.
	Walk(ctx context.Context, fn WalkFunc) error
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// ExtensionSet matches file names against an allow-list of extensions.
// Entries may be written with or without the leading dot and in any case.
type ExtensionSet map[string]struct{}

// NewExtensionSet builds a set from exts. An empty list selects
// DefaultExtensions.
func NewExtensionSet(exts ...string) ExtensionSet {
	set := make(ExtensionSet)
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	if len(set) == 0 {
		for _, e := range DefaultExtensions {
			set[e] = struct{}{}
		}
	}
	return set
}

// Match reports whether name carries an allowed extension.
func (s ExtensionSet) Match(name string) bool {
	_, ok := s[Ext(name)]
	return ok
}

// List returns the extensions in sorted order.
func (s ExtensionSet) List() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Config carries what Open needs to reach remote sources.
type Config struct {
	MinIO            MinIOConfig
	S3               S3Config
	RespectGitignore bool
}

// Open resolves uri to a Source. Plain paths become a FolderSource;
// minio://bucket/prefix and s3://bucket/prefix address bucket prefixes.
func Open(ctx context.Context, uri string, cfg Config) (Source, error) {
	scheme, bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "":
		return asSource(NewFolderSource(uri, FolderOptions{RespectGitignore: cfg.RespectGitignore}))
	case SchemeMinIO:
		return asSource(NewMinIOSource(bucket, prefix, cfg.MinIO))
	case SchemeS3:
		return asSource(NewS3Source(ctx, bucket, prefix, cfg.S3))
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported source scheme %q", scheme), nil)
	}
}

// asSource keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func asSource[T Source](s T, err error) (Source, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseURI splits a source URI. A local path yields an empty scheme.
func ParseURI(uri string) (scheme, bucket, prefix string, err error) {
	if !strings.Contains(uri, "://") {
		return "", "", "", nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", errors.ValidationError("invalid source uri "+uri, err)
	}
	scheme = strings.ToLower(u.Scheme)
	if scheme != SchemeMinIO && scheme != SchemeS3 {
		return "", "", "", errors.ValidationError(fmt.Sprintf("unsupported source scheme %q", u.Scheme), nil).
			WithSuggestion("use a local path, minio://bucket/prefix or s3://bucket/prefix")
	}
	if u.Host == "" {
		return "", "", "", errors.ValidationError("source uri "+uri+" has no bucket", nil)
	}
	return scheme, u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// relativeKey strips prefix from an object key.
func relativeKey(key, prefix string) string {
	if prefix == "" {
		return key
	}
	rel := strings.TrimPrefix(key, prefix)
	return strings.TrimPrefix(rel, "/")
}
