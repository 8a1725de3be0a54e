package source

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// IgnoreFiles are the per-directory pattern files a FolderSource honours.
var IgnoreFiles = []string{".gitignore", ".docragignore"}

// ignoreRule is one compiled gitignore line.
type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool   // matched against the path below base, not any component
	base     string // slash path of the directory holding the pattern file
}

// Ignorer evaluates gitignore-style patterns against slash-separated paths
// relative to the walk root. The last matching rule wins, so a later
// "!keep.md" re-includes what an earlier "*.md" excluded.
type Ignorer struct {
	rules []ignoreRule
}

// NewIgnorer returns an Ignorer seeded with patterns that apply at the root.
func NewIgnorer(patterns ...string) *Ignorer {
	ig := &Ignorer{}
	for _, p := range patterns {
		ig.Add(p, "")
	}
	return ig
}

// Add compiles one pattern line. base is the directory (relative to the
// root, slash-separated) of the file the line came from.
func (ig *Ignorer) Add(line, base string) {
	keepTrailingSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	if keepTrailingSpace {
		line = strings.TrimSuffix(line, `\`) + " "
	}

	r := ignoreRule{base: strings.Trim(base, "/")}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		r.anchored = true
	}
	if line == "" {
		return
	}

	re, err := regexp.Compile("^" + globToRegexp(line) + "$")
	if err != nil {
		return
	}
	r.re = re
	ig.rules = append(ig.rules, r)
}

// AddFile loads every line of a pattern file found in directory base.
func (ig *Ignorer) AddFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ig.Add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ignore file %s: %w", file, err)
	}
	return nil
}

// Ignored reports whether rel should be skipped.
func (ig *Ignorer) Ignored(rel string, isDir bool) bool {
	if ig == nil {
		return false
	}
	rel = strings.Trim(path.Clean("/"+rel), "/")
	ignored := false
	for _, r := range ig.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, r.base+"/")
	}
	parts := strings.Split(rel, "/")

	if r.anchored {
		if r.re.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		// A matched ancestor directory excludes everything below it.
		for i := 1; i < len(parts); i++ {
			if r.re.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		last := i == len(parts)-1
		if last && r.dirOnly {
			return isDir
		}
		return true
	}
	return !r.dirOnly && r.re.MatchString(rel)
}

// globToRegexp translates gitignore glob syntax: "*" and "?" stay within one
// path segment, "**/" spans any number of directories and a trailing "**"
// matches everything below.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if strings.HasPrefix(glob[i:], "**") && (i == 0 || glob[i-1] == '/') {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
