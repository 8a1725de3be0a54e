package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Aman-CERP/docrag/internal/source"
)

// alwaysSkipped are directory names never watched.
var alwaysSkipped = []string{".git", ".docrag"}

// filter decides which paths below root produce events. It mirrors the
// rules of source.FolderSource so that watching and ingesting agree.
type filter struct {
	root string
	opts Options
	exts source.ExtensionSet

	mu     sync.RWMutex
	ignore *source.Ignorer
}

func newFilter(root string, opts Options) *filter {
	f := &filter{root: root, opts: opts, exts: source.NewExtensionSet(opts.Extensions...)}
	f.reload()
	return f
}

// reload rebuilds the ignore rules from the files currently in the tree.
func (f *filter) reload() {
	ig := source.NewIgnorer(f.opts.Exclude...)
	if f.opts.RespectGitignore {
		_ = filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("ignore_scan_error", slog.String("path", p), slog.String("error", err.Error()))
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			rel := f.rel(p)
			if rel != "" && (f.skipName(d.Name()) || ig.Ignored(rel, true)) {
				return filepath.SkipDir
			}
			for _, name := range source.IgnoreFiles {
				file := filepath.Join(p, name)
				if _, err := os.Stat(file); err != nil {
					continue
				}
				if err := ig.AddFile(file, rel); err != nil {
					slog.Warn("ignore_file_unreadable", slog.String("path", file), slog.String("error", err.Error()))
				}
			}
			return nil
		})
	}

	f.mu.Lock()
	f.ignore = ig
	f.mu.Unlock()
}

// rel returns the slash path of abs relative to root, "" for root itself.
func (f *filter) rel(abs string) string {
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

func (f *filter) skipName(name string) bool {
	if slices.Contains(alwaysSkipped, name) {
		return true
	}
	return !f.opts.IncludeHidden && strings.HasPrefix(name, ".")
}

// isIgnoreFile reports whether rel names a pattern file.
func isIgnoreFile(rel string) bool {
	return slices.Contains(source.IgnoreFiles, filepath.Base(rel))
}

// skipDir reports whether a directory is outside the watched set.
func (f *filter) skipDir(rel string) bool {
	if rel == "" {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if f.skipName(part) || f.ignore.Ignored(strings.Join(parts[:i+1], "/"), true) {
			return true
		}
	}
	return false
}

// skipFile reports whether a file change is irrelevant to the index.
func (f *filter) skipFile(rel string) bool {
	if rel == "" {
		return true
	}
	if dir := filepath.ToSlash(filepath.Dir(rel)); dir != "." && f.skipDir(dir) {
		return true
	}
	if f.skipName(filepath.Base(rel)) || !f.exts.Match(rel) {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ignore.Ignored(rel, false)
}
