package seq

import "github.com/tactus-audio/tactus"

// RefreshStatus tracks the stale range of one segment's cached mapping.
// It holds a single coalesced dirty range [from, to) plus a flag for
// "everything is stale". Multiple pushes coalesce to the union of the
// pushed ranges, so one rebuild always covers every pending edit.
type RefreshStatus struct {
	from, to tactus.Time
	all      bool
	dirty    bool
}

// NewRefreshStatus returns a status that needs a full rebuild, which is
// the state of a segment that has just become known to a mapper.
func NewRefreshStatus() RefreshStatus {
	return RefreshStatus{all: true, dirty: true}
}

// Push adds [from, to) to the dirty range. Pushing equal bounds means
// "refresh everything" — a legacy convention kept for compatibility;
// PushAll is the explicit spelling.
func (r *RefreshStatus) Push(from, to tactus.Time) {
	if from == to {
		r.PushAll()
		return
	}
	if to < from {
		from, to = to, from
	}
	if !r.dirty {
		r.from, r.to = from, to
		r.dirty = true
		return
	}
	if r.all {
		return
	}
	if from < r.from {
		r.from = from
	}
	if to > r.to {
		r.to = to
	}
}

// PushAll marks the whole segment stale.
func (r *RefreshStatus) PushAll() {
	r.all = true
	r.dirty = true
	r.from, r.to = 0, 0
}

// NeedsRefresh reports whether anything is stale.
func (r *RefreshStatus) NeedsRefresh() bool { return r.dirty }

// NeedsFullRefresh reports whether the whole segment is stale.
func (r *RefreshStatus) NeedsFullRefresh() bool { return r.dirty && r.all }

// Range returns the coalesced dirty range. Only meaningful when
// NeedsRefresh is true and NeedsFullRefresh is false.
func (r *RefreshStatus) Range() (from, to tactus.Time) { return r.from, r.to }

// Clear marks the status clean: the cached mapping is a faithful image
// of the segment's current content.
func (r *RefreshStatus) Clear() {
	*r = RefreshStatus{}
}
