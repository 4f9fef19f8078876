package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicateHandle = errors.New("handle already registered")
	ErrInvalidHandle   = errors.New("handle is empty after normalization")
)

// DirEntry is one (handle, endpoint) pair as seen by a snapshot.
type DirEntry struct {
	Handle   string // exact bytes the owner registered
	Endpoint *Endpoint
}

type dirEntry struct {
	key      string // normalized form used for comparison and ordering
	handle   string
	endpoint *Endpoint
}

// Directory maps registered handles to their endpoints. Handles compare
// case-insensitively on their normalized form; enumeration follows
// normalized byte order. Mutations are serialized by a mutex because every
// connection runs in its own goroutine.
type Directory struct {
	mu      sync.RWMutex
	entries []dirEntry
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// NormalizeHandle trims leading and trailing ASCII whitespace and lowercases
// ASCII letters. No Unicode folding.
func NormalizeHandle(handle string) string {
	trimmed := strings.Trim(handle, " \t\n\r\v\f")
	var b strings.Builder
	b.Grow(len(trimmed))
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// search returns the insertion index for key. Normalized keys compare
// bytewise, which already sorts a shorter key before any longer key it
// prefixes.
func (d *Directory) search(key string) int {
	return sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].key >= key
	})
}

// Add registers a handle for an endpoint. It fails with ErrDuplicateHandle
// if another endpoint owns the same normalized handle, and with
// ErrInvalidHandle if the handle is whitespace only.
func (d *Directory) Add(handle string, ep *Endpoint) error {
	key := NormalizeHandle(handle)
	if key == "" {
		return ErrInvalidHandle
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.search(key)
	if i < len(d.entries) && d.entries[i].key == key {
		return ErrDuplicateHandle
	}

	d.entries = append(d.entries, dirEntry{})
	copy(d.entries[i+1:], d.entries[i:])
	d.entries[i] = dirEntry{key: key, handle: handle, endpoint: ep}
	return nil
}

// Lookup finds the endpoint owning a handle, comparing on the normalized
// form.
func (d *Directory) Lookup(handle string) (*Endpoint, bool) {
	key := NormalizeHandle(handle)

	d.mu.RLock()
	defer d.mu.RUnlock()

	i := d.search(key)
	if i < len(d.entries) && d.entries[i].key == key {
		return d.entries[i].endpoint, true
	}
	return nil, false
}

// RemoveHandle removes a handle from the directory. It reports whether an
// entry was removed.
func (d *Directory) RemoveHandle(handle string) bool {
	key := NormalizeHandle(handle)

	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.search(key)
	if i >= len(d.entries) || d.entries[i].key != key {
		return false
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	return true
}

// RemoveEndpoint removes whatever handle the endpoint owns. The scan is
// linear, which is fine: it only happens on teardown.
func (d *Directory) RemoveEndpoint(id uint64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.entries {
		if e.endpoint.ID() == id {
			handle := e.handle
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return handle, true
		}
	}
	return "", false
}

// Len returns the number of registered handles.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Snapshot returns a copy of the directory in enumeration order. A list
// response or a broadcast fan-out iterates the snapshot, so concurrent
// registrations and exits cannot perturb it.
func (d *Directory) Snapshot() []DirEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DirEntry, len(d.entries))
	for i, e := range d.entries {
		out[i] = DirEntry{Handle: e.handle, Endpoint: e.endpoint}
	}
	return out
}
