// Package readguard tracks which paths have been read and when, so the
// orchestration layer can refuse to overwrite a file that changed since it
// was last read. Each guard owns a private record map; nothing is shared
// between instances.
package readguard

import (
	"sync"
	"time"

	"github.com/workyardhq/workyard/internal/vfs"
)

// Record is the read bookkeeping for one normalized path.
type Record struct {
	Path           string
	ReadAt         time.Time
	ModifiedAtRead time.Time
}

// Decision is the answer to a needs-re-read query. Reason is set only
// when NeedsReRead is true.
type Decision struct {
	NeedsReRead bool
	Reason      string
}

const (
	ReasonNeverRead     = "file has never been read"
	ReasonModifiedSince = "file was modified since it was last read"
)

// Guard is safe for concurrent use.
type Guard struct {
	mu      sync.Mutex
	records map[string]Record
}

func New() *Guard {
	return &Guard{records: make(map[string]Record)}
}

// RecordRead notes that the path was read while carrying the given
// modification time. A later read of the same path overwrites the record.
// Paths are normalized the same way the filesystem router normalizes them,
// so equivalent spellings share one record.
func (g *Guard) RecordRead(path string, modifiedAtRead time.Time) {
	np := vfs.NormalizePath(path)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[np] = Record{
		Path:           np,
		ReadAt:         time.Now(),
		ModifiedAtRead: modifiedAtRead,
	}
}

// NeedsReRead reports whether the path must be re-read before a write may
// proceed: true when the path was never read, or when currentModifiedAt is
// strictly later than the modification time captured at read. Equal
// timestamps count as unmodified.
func (g *Guard) NeedsReRead(path string, currentModifiedAt time.Time) Decision {
	np := vfs.NormalizePath(path)
	g.mu.Lock()
	rec, ok := g.records[np]
	g.mu.Unlock()

	if !ok {
		return Decision{NeedsReRead: true, Reason: ReasonNeverRead}
	}
	if currentModifiedAt.After(rec.ModifiedAtRead) {
		return Decision{NeedsReRead: true, Reason: ReasonModifiedSince}
	}
	return Decision{}
}

// ClearReadRecord drops the record for one path, typically after a
// successful write.
func (g *Guard) ClearReadRecord(path string) {
	np := vfs.NormalizePath(path)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, np)
}

// Clear drops every record.
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]Record)
}
