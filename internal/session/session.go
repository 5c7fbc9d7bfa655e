// Package session is the only piece of cross-thread shared state the
// pipeline and a UI coordinate through: a registry of per-download
// progress snapshots, one entry per content id, fed with the
// pipeline's Progress events through Update; nothing ever calls back
// out of it into the pipeline or participates in cancellation.
package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AuthurNero/pkgj/internal/pkgpipe"
)

// Snapshot is the progress state a UI reads for one in-flight or
// recently finished download.
type Snapshot struct {
	ContentID      string
	Phase          pkgpipe.Phase
	ItemName       string
	DownloadOffset int64
	DownloadSize   int64
	TotalSize      int64
	StartedAt      time.Time
	Err            error
}

// finishedTTL is how long a completed or failed download's snapshot
// stays readable before the registry evicts it.
const finishedTTL = 10 * time.Second

// Registry is a key-value store of Snapshots keyed by content id.
// Entries for active downloads never expire; Finish gives a completed
// one a short TTL so a UI polling right after completion still sees
// the final status.
type Registry struct {
	cache *gocache.Cache
}

// NewRegistry returns an empty registry. Entries have no default
// expiration; Finish is what puts a TTL on a given entry.
func NewRegistry() *Registry {
	return &Registry{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Put records or replaces the snapshot for contentID, with no
// expiration.
func (r *Registry) Put(contentID string, s Snapshot) {
	r.cache.Set(contentID, s, gocache.NoExpiration)
}

// Update applies a Progress event from the pipeline to contentID's
// snapshot, creating it if it doesn't yet exist.
func (r *Registry) Update(contentID string, p pkgpipe.Progress) {
	r.Put(contentID, Snapshot{
		ContentID:      contentID,
		Phase:          p.Phase,
		ItemName:       p.ItemName,
		DownloadOffset: p.DownloadOffset,
		DownloadSize:   p.DownloadSize,
		TotalSize:      p.TotalSize,
		StartedAt:      p.StartedAt,
	})
}

// Finish records the terminal state of a download (err is nil on
// success) and starts its finishedTTL countdown.
func (r *Registry) Finish(contentID string, err error) {
	snap := Snapshot{ContentID: contentID, Phase: pkgpipe.PhaseDone, Err: err}
	if existing, ok := r.Get(contentID); ok {
		snap = existing
		snap.Phase = pkgpipe.PhaseDone
		snap.Err = err
	}
	r.cache.Set(contentID, snap, finishedTTL)
}

// Get returns contentID's snapshot, if present.
func (r *Registry) Get(contentID string) (Snapshot, bool) {
	v, ok := r.cache.Get(contentID)
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// Remove deletes contentID's snapshot immediately.
func (r *Registry) Remove(contentID string) {
	r.cache.Delete(contentID)
}

// All returns every snapshot currently in the registry, for a UI
// rendering a download queue.
func (r *Registry) All() map[string]Snapshot {
	items := r.cache.Items()
	out := make(map[string]Snapshot, len(items))
	for k, item := range items {
		out[k] = item.Object.(Snapshot)
	}
	return out
}
