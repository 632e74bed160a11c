package mirrors

import (
	"testing"
	"time"
)

// fakeClock returns an Option and a function to advance time.
func fakeClock(start time.Time) (Option, func(time.Duration)) {
	now := start
	return withClock(func() time.Time { return now }), func(d time.Duration) { now = now.Add(d) }
}

func TestNext_PrefersMostRecentSuccess(t *testing.T) {
	clock, advance := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example", "b.example", "c.example"}, clock)

	d.ReportSuccess("b.example")
	advance(time.Second)
	d.ReportSuccess("c.example")

	if host, ok := d.Next(); !ok || host != "c.example" {
		t.Errorf("Next() = %q, %v; want c.example", host, ok)
	}
}

func TestQuarantine_AfterThreshold(t *testing.T) {
	clock, _ := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example", "b.example"}, clock, WithFailureThreshold(3))

	for range 2 {
		d.ReportFailure("a.example")
	}
	if snap := d.Snapshot(); snap[0].Quarantined {
		t.Fatal("quarantined before reaching threshold")
	}

	d.ReportFailure("a.example")
	snap := d.Snapshot()
	if !snap[0].Quarantined {
		t.Fatal("not quarantined after threshold failures")
	}

	// Excluded from rotation while a healthy mirror exists.
	for range 10 {
		if host, _ := d.Next(); host == "a.example" {
			t.Fatal("Next() returned quarantined mirror while b.example is healthy")
		}
	}
}

func TestReportSuccess_ClearsQuarantine(t *testing.T) {
	clock, _ := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example"}, clock, WithFailureThreshold(1))

	d.ReportFailure("a.example")
	if snap := d.Snapshot(); !snap[0].Quarantined {
		t.Fatal("setup: mirror should be quarantined")
	}

	d.ReportSuccess("a.example")
	snap := d.Snapshot()
	if snap[0].Quarantined {
		t.Error("quarantine not cleared by success")
	}
	if snap[0].ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", snap[0].ConsecutiveFailures)
	}
}

func TestNext_AllQuarantined_ForcedRetry(t *testing.T) {
	clock, advance := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example", "b.example"}, clock, WithFailureThreshold(1))

	d.ReportFailure("a.example")
	advance(time.Second)
	d.ReportFailure("b.example")

	// a was quarantined first, so it is the least recently quarantined.
	host, ok := d.Next()
	if !ok {
		t.Fatal("Next() failed with all mirrors quarantined; want forced retry")
	}
	if host != "a.example" {
		t.Errorf("Next() = %q, want a.example (least recently quarantined)", host)
	}
}

func TestNext_QuarantineTimeoutReleases(t *testing.T) {
	clock, advance := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example", "b.example"}, clock,
		WithFailureThreshold(1), WithQuarantineAfter(time.Minute))

	d.ReportFailure("a.example")
	d.ReportSuccess("b.example")

	advance(2 * time.Minute)

	// a's timeout elapsed, so it is back in the healthy pool, but b has
	// a more recent success and still wins.
	if host, _ := d.Next(); host != "b.example" {
		t.Errorf("Next() = %q, want b.example", host)
	}
	for _, m := range d.Snapshot() {
		if m.Quarantined {
			t.Errorf("mirror %s still quarantined after timeout", m.Host)
		}
	}
}

func TestSetSeeds_KeepsBookkeeping(t *testing.T) {
	clock, _ := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example"}, clock, WithFailureThreshold(1))
	d.ReportFailure("a.example")

	d.SetSeeds([]string{"a.example", "b.example", "b.example", ""})

	snap := d.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2 (dupes and empties dropped)", len(snap))
	}
	if !snap[0].Quarantined {
		t.Error("a.example bookkeeping lost across SetSeeds")
	}
}

func TestNext_RotatesAwayFromFreshFailure(t *testing.T) {
	clock, _ := fakeClock(time.Unix(1000, 0))
	d := New([]string{"a.example", "b.example", "c.example"}, clock)

	// One failure is below the quarantine threshold, but the mirror
	// still yields to untainted ones on the next pick.
	d.ReportFailure("a.example")
	if host, _ := d.Next(); host == "a.example" {
		t.Error("Next() returned the mirror that just failed")
	}

	d.ReportFailure("b.example")
	if host, _ := d.Next(); host != "c.example" {
		t.Errorf("Next() = %q, want c.example", host)
	}
}

func TestNext_EmptyDirectory(t *testing.T) {
	d := New(nil)
	if _, ok := d.Next(); ok {
		t.Error("Next() on empty directory reported ok")
	}
}
