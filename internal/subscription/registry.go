package subscription

import (
	"sync"

	"github.com/robertarktes/concert-booking/internal/observability"
)

// Registry holds pending subscriptions. Entries leave it exactly once: through Take
// when a dispatch pass claims them, or through Remove when their caller gives up.
type Registry struct {
	mu      sync.Mutex
	entries []*Subscription
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	r.entries = append(r.entries, sub)
	n := len(r.entries)
	r.mu.Unlock()
	observability.PendingSubscriptions.Set(float64(n))
}

// Remove drops sub if it is still registered and reports whether it was.
func (r *Registry) Remove(sub *Subscription) bool {
	r.mu.Lock()
	removed := false
	for i, e := range r.entries {
		if e == sub {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			removed = true
			break
		}
	}
	n := len(r.entries)
	r.mu.Unlock()
	observability.PendingSubscriptions.Set(float64(n))
	return removed
}

// Take removes and returns every entry for which match is true. Entries whose handle
// has already completed are dropped without being returned.
func (r *Registry) Take(match func(*Subscription) bool) []*Subscription {
	r.mu.Lock()
	var taken []*Subscription
	kept := r.entries[:0]
	for _, e := range r.entries {
		switch {
		case e.isDone():
		case match(e):
			taken = append(taken, e)
		default:
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	n := len(r.entries)
	r.mu.Unlock()
	observability.PendingSubscriptions.Set(float64(n))
	return taken
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
