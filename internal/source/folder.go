package source

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// FolderOptions configures a FolderSource.
type FolderOptions struct {
	// RespectGitignore honours .gitignore and .docragignore files found in
	// the tree.
	RespectGitignore bool

	// IncludeHidden walks dot-files and dot-directories.
	IncludeHidden bool

	// FollowSymlinks walks into symlinked files. Symlinked directories are
	// never followed.
	FollowSymlinks bool

	// Exclude holds extra gitignore-style patterns applied at the root.
	Exclude []string
}

// FolderSource walks a local directory recursively.
type FolderSource struct {
	root string
	opts FolderOptions
}

// NewFolderSource validates root and returns a source over it. root may
// also name a single file.
func NewFolderSource(root string, opts FolderOptions) (*FolderSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.ValidationError("invalid folder "+root, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "folder "+root+" does not exist", err)
		}
		return nil, errors.IOError("stat "+root, err)
	}
	return &FolderSource{root: abs, opts: opts}, nil
}

// Name implements Source.
func (s *FolderSource) Name() string {
	return s.root
}

// Root returns the absolute root path.
func (s *FolderSource) Root() string {
	return s.root
}

// Walk implements Source. Documents are yielded in lexical order.
func (s *FolderSource) Walk(ctx context.Context, fn WalkFunc) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return errors.IOError("stat "+s.root, err)
	}
	if !info.IsDir() {
		return fn(fileDocument(s.root, filepath.Base(s.root), info))
	}

	ignore := NewIgnorer(s.opts.Exclude...)

	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			// An unreadable subtree is skipped, not fatal.
			slog.Warn("walk_error", slog.String("path", rel), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel == "." {
				s.loadIgnoreFiles(ignore, p, "")
				return nil
			}
			if s.skipName(d.Name()) || ignore.Ignored(rel, true) {
				return filepath.SkipDir
			}
			s.loadIgnoreFiles(ignore, p, rel)
			return nil
		}

		if s.skipName(d.Name()) || ignore.Ignored(rel, false) {
			return nil
		}

		fi, err := s.stat(p, d)
		if err != nil || fi == nil {
			return nil
		}
		return fn(fileDocument(p, rel, fi))
	})
}

func (s *FolderSource) skipName(name string) bool {
	if s.opts.IncludeHidden {
		return name == ".git"
	}
	return strings.HasPrefix(name, ".")
}

func (s *FolderSource) loadIgnoreFiles(ig *Ignorer, dir, rel string) {
	if !s.opts.RespectGitignore {
		return
	}
	for _, name := range IgnoreFiles {
		file := filepath.Join(dir, name)
		if _, err := os.Stat(file); err != nil {
			continue
		}
		base := rel
		if base == "." {
			base = ""
		}
		if err := ig.AddFile(file, base); err != nil {
			slog.Warn("ignore_file_unreadable", slog.String("path", file), slog.String("error", err.Error()))
		}
	}
}

// stat returns nil for entries that are not regular files.
func (s *FolderSource) stat(p string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		if !s.opts.FollowSymlinks {
			return nil, nil
		}
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			return nil, err
		}
		return fi, nil
	}
	if !d.Type().IsRegular() {
		return nil, nil
	}
	return d.Info()
}

func fileDocument(abs, rel string, fi fs.FileInfo) Document {
	return Document{
		ID:      rel,
		Ext:     Ext(rel),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		open: func(context.Context) (io.ReadCloser, error) {
			f, err := os.Open(abs)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, errors.New(errors.ErrCodeFileNotFound, "file "+rel+" disappeared", err)
				}
				return nil, errors.IOError("open "+rel, err)
			}
			return f, nil
		},
	}
}

// FileDocument returns the Document a FolderSource rooted at root would
// yield for path. Watch mode uses it to re-ingest single files.
func FileDocument(root, path string) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, errors.ValidationError("invalid path "+path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, errors.New(errors.ErrCodeFileNotFound, "file "+path+" does not exist", err)
		}
		return Document{}, errors.IOError("stat "+path, err)
	}
	rel := filepath.Base(abs)
	if root != "" {
		if r, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return fileDocument(abs, filepath.ToSlash(rel), fi), nil
}
