package otp

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long an id→code association may outlive its
// notification if the platform never reports it closed.
const DefaultTTL = 12 * time.Hour

type record struct {
	code    string
	expires time.Time
}

// Records maps platform notification ids to the passcodes they carry.
// Entries are removed when the notification closes and evicted after a TTL
// so the map cannot grow without bound.
type Records struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]record
	now     func() time.Time
}

// NewRecords creates an empty record map. A non-positive ttl selects
// DefaultTTL.
func NewRecords(ttl time.Duration) *Records {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Records{
		ttl:     ttl,
		entries: make(map[string]record),
		now:     time.Now,
	}
}

// Put associates a code with a notification id.
func (r *Records) Put(id, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.entries[id] = record{code: code, expires: r.now().Add(r.ttl)}
}

// Get returns the code for a notification id, if one is recorded and
// unexpired.
func (r *Records) Get(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	rec, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return rec.code, true
}

// Delete removes the record for a notification id. Deleting an unknown id
// is a no-op.
func (r *Records) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of live records.
func (r *Records) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	return len(r.entries)
}

func (r *Records) prune() {
	now := r.now()
	for id, rec := range r.entries {
		if now.After(rec.expires) {
			delete(r.entries, id)
		}
	}
}
