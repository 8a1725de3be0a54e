package watcher

import (
	"time"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	// OpCreate indicates a new file or directory.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file or directory was removed.
	OpDelete
	// OpRename indicates a path was renamed away. The new name arrives as
	// OpCreate.
	OpRename
	// OpIgnoreChange indicates a .gitignore or .docragignore file changed.
	// The filter has already been reloaded when it is emitted.
	OpIgnoreChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change below the watched root.
type FileEvent struct {
	// Path is slash-separated and relative to the root, the same form as
	// a folder document id.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval of the polling fallback.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 100
	EventBufferSize int

	// Extensions is the allow-list for files. Empty means the ingest defaults.
	Extensions []string

	// Exclude holds extra gitignore-style patterns.
	Exclude []string

	RespectGitignore bool
	IncludeHidden    bool

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:   500 * time.Millisecond,
		PollInterval:     5 * time.Second,
		EventBufferSize:  100,
		RespectGitignore: true,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
