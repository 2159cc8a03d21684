package tiercache

import "time"

// Freshness bounds how old, or how recently written, an entry must be
// to count as a hit. A zero Freshness always passes.
type Freshness struct {
	// MaxAge rejects entries older than this, relative to now. A
	// pointer-to-zero MaxAge always rejects.
	MaxAge *time.Duration
	// NewerThan rejects entries cached before this instant.
	NewerThan *time.Time
}

// passes reports whether an entry cached at cachedAt counts as a hit
// at time now:
//
//	if NewerThan is set and cachedAt is before it => false
//	if MaxAge is set and abs(now - cachedAt) exceeds it => false
//	else true
func (f Freshness) passes(cachedAt, now time.Time) bool {
	if f.NewerThan != nil && cachedAt.Before(*f.NewerThan) {
		return false
	}
	if f.MaxAge != nil {
		if *f.MaxAge == 0 {
			return false
		}
		age := now.Sub(cachedAt)
		if age < 0 {
			age = -age
		}
		if age > *f.MaxAge {
			return false
		}
	}
	return true
}

// Always is the always-passing freshness predicate (the zero value
// also passes always; Always exists for readability at call sites).
var Always = Freshness{}

// MaxAge returns a Freshness that rejects entries older than d.
func MaxAge(d time.Duration) Freshness {
	return Freshness{MaxAge: &d}
}

// NewerThan returns a Freshness that rejects entries cached before t.
func NewerThan(t time.Time) Freshness {
	return Freshness{NewerThan: &t}
}
