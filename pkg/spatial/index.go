// Package spatial provides an in-memory R-tree over flight operation
// footprints. The index is rebuilt per query from the current KV snapshot
// and cleared afterwards, so it never goes stale.
package spatial

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"

	"github.com/openutm/flightdeck/pkg/geo"
)

// minSpan pads degenerate boxes so the tree always stores a valid rect.
const minSpan = 1e-9

// Metadata is carried alongside each indexed footprint and returned with
// query hits.
type Metadata struct {
	StartTime time.Time
	EndTime   time.Time
	OwnerID   string
	Priority  int
}

// Entry is an indexed operation footprint.
type Entry struct {
	ID       string
	HashedID uint32
	Box      geo.Bounds
	Metadata Metadata

	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *Entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is a thread-safe 2D R-tree keyed by declaration id.
type Index struct {
	mu      sync.Mutex
	tree    *rtreego.Rtree
	entries map[string]*Entry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		tree:    rtreego.NewTree(2, 25, 50),
		entries: make(map[string]*Entry),
	}
}

func rectFor(b geo.Bounds) (rtreego.Rect, error) {
	width := b.MaxLng - b.MinLng
	height := b.MaxLat - b.MinLat
	if width < minSpan {
		width = minSpan
	}
	if height < minSpan {
		height = minSpan
	}
	return rtreego.NewRect(rtreego.Point{b.MinLng, b.MinLat}, []float64{width, height})
}

// hashID folds a declaration id to a stable 32-bit value.
func hashID(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()
}

// Insert adds a footprint under the declaration id, replacing any previous
// entry for the same id.
func (idx *Index) Insert(id string, bounds geo.Bounds, md Metadata) error {
	rect, err := rectFor(bounds)
	if err != nil {
		return err
	}
	entry := &Entry{
		ID:       id,
		HashedID: hashID(id),
		Box:      bounds,
		Metadata: md,
		rect:     rect,
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if prev, ok := idx.entries[id]; ok {
		idx.tree.Delete(prev)
	}
	idx.tree.Insert(entry)
	idx.entries[id] = entry
	return nil
}

// Delete removes the footprint for the declaration id. Missing ids are
// ignored.
func (idx *Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if entry, ok := idx.entries[id]; ok {
		idx.tree.Delete(entry)
		delete(idx.entries, id)
	}
}

// Query returns all entries whose boxes intersect the given bounds.
func (idx *Index) Query(bounds geo.Bounds) ([]Entry, error) {
	rect, err := rectFor(bounds)
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	hits := idx.tree.SearchIntersect(rect)
	results := make([]Entry, 0, len(hits))
	for _, hit := range hits {
		if entry, ok := hit.(*Entry); ok {
			results = append(results, *entry)
		}
	}
	return results, nil
}

// Clear drops every entry from the index.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree = rtreego.NewTree(2, 25, 50)
	idx.entries = make(map[string]*Entry)
}

// Size returns the number of indexed entries.
func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}
