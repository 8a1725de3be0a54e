package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func collect(t *testing.T, src Source) []string {
	t.Helper()
	var ids []string
	require.NoError(t, src.Walk(context.Background(), func(doc Document) error {
		ids = append(ids, doc.ID)
		return nil
	}))
	return ids
}

func TestFolderSource_WalksRecursivelyInOrder(t *testing.T) {
	// Given a nested tree
	root := writeTree(t, map[string]string{
		"b.md":          "b",
		"a.txt":         "a",
		"sub/c.pdf":     "c",
		"sub/deep/d.MD": "d",
	})

	// When walking it
	src, err := NewFolderSource(root, FolderOptions{})
	require.NoError(t, err)
	ids := collect(t, src)

	// Then every file is yielded with a slash path, lexically ordered
	assert.Equal(t, []string{"a.txt", "b.md", "sub/c.pdf", "sub/deep/d.MD"}, ids)
}

func TestFolderSource_DocumentMetadataAndContent(t *testing.T) {
	root := writeTree(t, map[string]string{"Notes.MD": "hello"})
	src, err := NewFolderSource(root, FolderOptions{})
	require.NoError(t, err)

	var got Document
	require.NoError(t, src.Walk(context.Background(), func(doc Document) error {
		got = doc
		return nil
	}))

	assert.Equal(t, ".md", got.Ext)
	assert.Equal(t, int64(5), got.Size)
	rc, err := got.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFolderSource_SkipsHiddenByDefault(t *testing.T) {
	root := writeTree(t, map[string]string{
		"visible.md":       "v",
		".hidden.md":       "h",
		".git/config.txt":  "g",
		".cache/notes.txt": "c",
	})

	src, err := NewFolderSource(root, FolderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"visible.md"}, collect(t, src))

	src, err = NewFolderSource(root, FolderOptions{IncludeHidden: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".cache/notes.txt", ".hidden.md", "visible.md"}, collect(t, src))
}

func TestFolderSource_RespectsIgnoreFiles(t *testing.T) {
	// Given root and nested ignore files
	root := writeTree(t, map[string]string{
		".gitignore":         "drafts/\n*.log\n",
		"keep.md":            "k",
		"debug.log":          "l",
		"drafts/wip.md":      "w",
		"docs/.docragignore": "private.md\n",
		"docs/private.md":    "p",
		"docs/public.md":     "p",
		"other/private.md":   "o",
	})

	// When walking with ignore files honoured
	src, err := NewFolderSource(root, FolderOptions{RespectGitignore: true})
	require.NoError(t, err)

	// Then patterns apply to their own subtree only
	assert.Equal(t, []string{"docs/public.md", "keep.md", "other/private.md"}, collect(t, src))

	// And without the option nothing is ignored except hidden files
	src, err = NewFolderSource(root, FolderOptions{})
	require.NoError(t, err)
	assert.Len(t, collect(t, src), 6)
}

func TestFolderSource_ExcludePatterns(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.md":         "a",
		"vendor/b.md":  "b",
		"docs/c.md":    "c",
		"docs/c.draft": "d",
	})
	src, err := NewFolderSource(root, FolderOptions{Exclude: []string{"vendor/", "*.draft"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "docs/c.md"}, collect(t, src))
}

func TestFolderSource_SingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{"one.txt": "1"})
	src, err := NewFolderSource(filepath.Join(root, "one.txt"), FolderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one.txt"}, collect(t, src))
}

func TestFolderSource_MissingRoot(t *testing.T) {
	_, err := NewFolderSource(filepath.Join(t.TempDir(), "nope"), FolderOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestFolderSource_StopsOnCallbackError(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "a", "b.md": "b"})
	src, err := NewFolderSource(root, FolderOptions{})
	require.NoError(t, err)

	stop := errors.InternalError("stop", nil)
	calls := 0
	err = src.Walk(context.Background(), func(Document) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestFolderSource_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "a"})
	src, err := NewFolderSource(root, FolderOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = src.Walk(ctx, func(Document) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileDocument_RelativeToRoot(t *testing.T) {
	root := writeTree(t, map[string]string{"sub/x.md": "x"})

	doc, err := FileDocument(root, filepath.Join(root, "sub", "x.md"))
	require.NoError(t, err)
	assert.Equal(t, "sub/x.md", doc.ID)
	assert.Equal(t, ".md", doc.Ext)

	_, err = FileDocument(root, filepath.Join(root, "gone.md"))
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestExtensionSet(t *testing.T) {
	tests := []struct {
		name  string
		exts  []string
		file  string
		match bool
	}{
		{"with dot", []string{".md"}, "a.md", true},
		{"without dot", []string{"md"}, "a.md", true},
		{"upper-case entry", []string{"MD"}, "a.md", true},
		{"upper-case file", []string{"md"}, "A.MD", true},
		{"no match", []string{"md"}, "a.txt", false},
		{"no extension", []string{"md"}, "README", false},
		{"defaults txt", nil, "a.txt", true},
		{"defaults pdf", nil, "a.pdf", true},
		{"defaults exclude go", nil, "a.go", false},
		{"blank entries fall back to defaults", []string{" ", ""}, "a.md", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, NewExtensionSet(tt.exts...).Match(tt.file))
		})
	}
	assert.Equal(t, []string{".md", ".pdf", ".txt"}, NewExtensionSet().List())
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri                    string
		scheme, bucket, prefix string
		wantErr                bool
	}{
		{uri: "./docs"},
		{uri: "/abs/path"},
		{uri: "minio://corpus/docs/2024", scheme: "minio", bucket: "corpus", prefix: "docs/2024"},
		{uri: "s3://bucket", scheme: "s3", bucket: "bucket"},
		{uri: "S3://bucket/p/", scheme: "s3", bucket: "bucket", prefix: "p/"},
		{uri: "gs://bucket/p", wantErr: true},
		{uri: "s3:///p", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			scheme, bucket, prefix, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestOpen_LocalPath(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "a"})
	src, err := Open(context.Background(), root, Config{})
	require.NoError(t, err)
	assert.IsType(t, &FolderSource{}, src)
}

func TestOpen_MinIORequiresEndpoint(t *testing.T) {
	src, err := Open(context.Background(), "minio://bucket/docs", Config{})
	require.Error(t, err)
	assert.Nil(t, src)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))

	_, err = Open(context.Background(), "minio://bucket/docs", Config{MinIO: MinIOConfig{Endpoint: "localhost:9000"}})
	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.GetCode(err))
}
