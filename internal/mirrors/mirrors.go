// Package mirrors tracks the health of the station directory's mirror
// hosts and picks which one to try next.
package mirrors

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is how many consecutive failures put a
	// mirror in quarantine.
	DefaultFailureThreshold = 3

	// DefaultQuarantineAfter is how long a quarantined mirror waits
	// before it is eligible again without a successful probe.
	DefaultQuarantineAfter = 5 * time.Minute
)

// Mirror is a snapshot of one host's bookkeeping. Mutation happens only
// inside Directory.
type Mirror struct {
	Host                string
	LastSuccess         time.Time
	ConsecutiveFailures int
	Quarantined         bool
	QuarantinedAt       time.Time
}

// Directory holds the known mirror hosts and serializes all liveness
// bookkeeping. It is safe for concurrent use; the internal mutex is the
// single serialization point shared by in-flight discovery requests.
type Directory struct {
	mu               sync.Mutex
	mirrors          []*Mirror
	failureThreshold int
	quarantineAfter  time.Duration
	now              func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithFailureThreshold overrides the consecutive-failure count that
// triggers quarantine.
func WithFailureThreshold(n int) Option {
	return func(d *Directory) {
		if n > 0 {
			d.failureThreshold = n
		}
	}
}

// WithQuarantineAfter overrides the quarantine timeout.
func WithQuarantineAfter(dur time.Duration) Option {
	return func(d *Directory) {
		if dur > 0 {
			d.quarantineAfter = dur
		}
	}
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// New creates a Directory seeded with the given hosts. Duplicate and
// empty hosts are dropped.
func New(seeds []string, opts ...Option) *Directory {
	d := &Directory{
		failureThreshold: DefaultFailureThreshold,
		quarantineAfter:  DefaultQuarantineAfter,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.SetSeeds(seeds)
	return d
}

// SetSeeds replaces the mirror set. Bookkeeping survives for hosts
// present in both the old and new sets, so a bootstrap refresh does not
// forget which mirrors were failing.
func (d *Directory) SetSeeds(hosts []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := make(map[string]*Mirror, len(d.mirrors))
	for _, m := range d.mirrors {
		old[m.Host] = m
	}

	seen := make(map[string]bool, len(hosts))
	next := make([]*Mirror, 0, len(hosts))
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if m, ok := old[h]; ok {
			next = append(next, m)
		} else {
			next = append(next, &Mirror{Host: h})
		}
	}
	d.mirrors = next
}

// Next returns the best mirror host to try. Non-quarantined mirrors
// win, ranked by fewest consecutive failures so a mirror that just
// failed yields to untainted ones, then by most recent success. If
// every mirror is quarantined the
// least recently quarantined one is returned as a forced retry; a
// mirror whose quarantine timeout has elapsed is released first. The
// second return is false only when the directory is empty.
func (d *Directory) Next() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.mirrors) == 0 {
		return "", false
	}

	now := d.now()
	var best *Mirror
	for _, m := range d.mirrors {
		if m.Quarantined && now.Sub(m.QuarantinedAt) >= d.quarantineAfter {
			// Timeout elapsed: release for a fresh probe.
			m.Quarantined = false
			m.ConsecutiveFailures = 0
		}
		if m.Quarantined {
			continue
		}
		if best == nil ||
			m.ConsecutiveFailures < best.ConsecutiveFailures ||
			(m.ConsecutiveFailures == best.ConsecutiveFailures && m.LastSuccess.After(best.LastSuccess)) {
			best = m
		}
	}
	if best != nil {
		return best.Host, true
	}

	// Everything is quarantined: force a retry on the mirror that has
	// been benched the longest rather than failing outright.
	best = d.mirrors[0]
	for _, m := range d.mirrors[1:] {
		if m.QuarantinedAt.Before(best.QuarantinedAt) {
			best = m
		}
	}
	return best.Host, true
}

// ReportSuccess records a successful request against host, clearing any
// quarantine. Unknown hosts are ignored.
func (d *Directory) ReportSuccess(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m := d.find(host); m != nil {
		m.ConsecutiveFailures = 0
		m.Quarantined = false
		m.QuarantinedAt = time.Time{}
		m.LastSuccess = d.now()
	}
}

// ReportFailure records a failed request against host, quarantining it
// once the failure threshold is reached. Mirrors are never removed.
func (d *Directory) ReportFailure(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m := d.find(host); m != nil {
		m.ConsecutiveFailures++
		if !m.Quarantined && m.ConsecutiveFailures >= d.failureThreshold {
			m.Quarantined = true
			m.QuarantinedAt = d.now()
		}
	}
}

// Snapshot returns a copy of the current bookkeeping, for display and
// persistence.
func (d *Directory) Snapshot() []Mirror {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Mirror, len(d.mirrors))
	for i, m := range d.mirrors {
		out[i] = *m
	}
	return out
}

// Len returns the number of known mirrors.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mirrors)
}

func (d *Directory) find(host string) *Mirror {
	for _, m := range d.mirrors {
		if m.Host == host {
			return m
		}
	}
	return nil
}
