package radiobrowser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xinia/radiowidget/internal/backoff"
	"github.com/xinia/radiowidget/internal/mirrors"
)

const searchBody = `[
	{"stationuuid":"u1","name":"Jazz24","url_resolved":"https://stream.example/jazz24","codec":"MP3","bitrate":128,"country":"The United States Of America","tags":"jazz,smooth jazz","votes":12345,"lastcheckok":1},
	{"stationuuid":"u2","name":"Broken FM","codec":"AAC","bitrate":64,"votes":3},
	{"stationuuid":"","name":"No ID","url_resolved":"https://stream.example/noid"},
	{"stationuuid":"u3","name":"File FM","url_resolved":"file:///etc/passwd"},
	{"stationuuid":"u4","name":"Chill","url":"http://stream.example/chill","codec":"OGG","bitrate":96,"votes":7,"lastcheckok":0}
]`

// fastCfg keeps retry sleeps negligible in real time.
func fastCfg() Config {
	return Config{
		Backoff:        backoff.Policy{Base: time.Millisecond, Max: time.Millisecond},
		AttemptTimeout: 2 * time.Second,
	}
}

func newMirror(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_FailsOverToHealthyMirror(t *testing.T) {
	var bad1, bad2, good atomic.Int32

	down1 := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		bad1.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	down2 := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		bad2.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	up := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		good.Add(1)
		assert.Equal(t, "/json/stations/search", r.URL.Path)
		assert.Equal(t, "jazz", r.URL.Query().Get("name"))
		assert.Equal(t, "true", r.URL.Query().Get("hidebroken"))
		w.Write([]byte(searchBody))
	})

	dir := mirrors.New([]string{down1.URL, down2.URL, up.URL})
	c := New(dir, fastCfg())

	stations, err := c.Search(context.Background(), "jazz")
	require.NoError(t, err)

	// u2 (no url), the id-less record, and the file:// record are
	// dropped; u1 and u4 survive in directory order.
	require.Len(t, stations, 2)
	assert.Equal(t, "u1", stations[0].ID)
	assert.Equal(t, "https://stream.example/jazz24", stations[0].StreamURL)
	assert.Equal(t, []string{"jazz", "smooth jazz"}, stations[0].Tags)
	assert.True(t, stations[0].LastCheckOK)
	assert.Equal(t, "u4", stations[1].ID)
	assert.Equal(t, "http://stream.example/chill", stations[1].StreamURL)
	assert.False(t, stations[1].LastCheckOK)

	assert.Equal(t, int32(1), bad1.Load(), "first mirror should fail exactly once")
	assert.Equal(t, int32(1), bad2.Load(), "second mirror should fail exactly once")
	assert.Equal(t, int32(1), good.Load())
	assert.Equal(t, 3, c.DroppedRecords())
}

func TestSearch_ExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	down := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cfg := fastCfg()
	cfg.MaxAttempts = 5
	dir := mirrors.New([]string{down.URL})
	c := New(dir, cfg)

	done := make(chan struct{})
	var err error
	go func() {
		_, err = c.Search(context.Background(), "jazz")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("search did not terminate")
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscoveryUnavailable)
	assert.Contains(t, err.Error(), "after 5 attempts")
	assert.Equal(t, int32(5), hits.Load())
}

func TestSearch_MalformedTopLevelPayloadIsAttemptFailure(t *testing.T) {
	garbage := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not":"an array"`))
	})
	up := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(searchBody))
	})

	dir := mirrors.New([]string{garbage.URL, up.URL})
	c := New(dir, fastCfg())

	stations, err := c.Search(context.Background(), "jazz")
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	snap := dir.Snapshot()
	assert.Equal(t, 1, snap[0].ConsecutiveFailures, "garbage mirror should be marked failed")
	assert.Equal(t, 0, snap[1].ConsecutiveFailures)
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := New(mirrors.New(nil), fastCfg())
	stations, err := c.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, stations)
}

func TestResolve_CachesByUUID(t *testing.T) {
	var hits atomic.Int32
	up := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/json/stations/byuuid/u1", r.URL.Path)
		w.Write([]byte(`[{"stationuuid":"u1","name":"Jazz24","url_resolved":"https://stream.example/jazz24","votes":42}]`))
	})

	dir := mirrors.New([]string{up.URL})
	c := New(dir, fastCfg())

	st, err := c.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Jazz24", st.Name)

	again, err := c.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)
	assert.Equal(t, int32(1), hits.Load(), "second resolve should come from cache")
}

func TestResolve_NotFound(t *testing.T) {
	up := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})

	cfg := fastCfg()
	cfg.MaxAttempts = 2
	c := New(mirrors.New([]string{up.URL}), cfg)

	_, err := c.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDiscoveryUnavailable)
}

func TestPlayableURL_ClickEndpoint(t *testing.T) {
	up := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json/url/u1", r.URL.Path)
		w.Write([]byte(`{"ok":true,"url":"https://stream.example/jazz24"}`))
	})

	c := New(mirrors.New([]string{up.URL}), fastCfg())
	got, err := c.PlayableURL(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://stream.example/jazz24", got)
}

func TestPlayableURL_FallsBackToResolvedRecord(t *testing.T) {
	up := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/url/u1":
			w.WriteHeader(http.StatusNotFound)
		case "/json/stations/byuuid/u1":
			w.Write([]byte(`[{"stationuuid":"u1","name":"Jazz24","url_resolved":"https://stream.example/jazz24"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	cfg := fastCfg()
	cfg.MaxAttempts = 2
	c := New(mirrors.New([]string{up.URL}), cfg)

	got, err := c.PlayableURL(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://stream.example/jazz24", got)
}

func TestBootstrap_SeedsDirectory(t *testing.T) {
	boot := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json/servers", r.URL.Path)
		w.Write([]byte(`[{"name":"de1.api.example"},{"name":"fr1.api.example"},{"name":"de1.api.example"}]`))
	})

	cfg := fastCfg()
	cfg.BootstrapURL = boot.URL
	dir := mirrors.New(nil)
	c := New(dir, cfg)

	require.NoError(t, c.Bootstrap(context.Background()))
	assert.Equal(t, 2, dir.Len())
}

func TestBootstrap_EmptyServerSet(t *testing.T) {
	boot := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})

	cfg := fastCfg()
	cfg.BootstrapURL = boot.URL
	c := New(mirrors.New(nil), cfg)

	err := c.Bootstrap(context.Background())
	require.Error(t, err)
}

func TestSearch_CancelledDuringBackoff(t *testing.T) {
	down := newMirror(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	cfg := Config{
		Backoff:        backoff.Policy{Base: time.Hour, Max: time.Hour},
		AttemptTimeout: 2 * time.Second,
	}
	c := New(mirrors.New([]string{down.URL}), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Search(ctx, "jazz")
		errCh <- err
	}()

	// Give the first attempt time to fail and record bookkeeping, then
	// abandon the call mid-backoff.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrDiscoveryUnavailable))
	case <-time.After(5 * time.Second):
		t.Fatal("search did not observe cancellation")
	}

	// The completed attempt's failure is still recorded.
	assert.Equal(t, 1, dirFailures(c))
}

func TestSearch_CancelledMidRequestNotHeldAgainstMirror(t *testing.T) {
	started := make(chan struct{})
	stalled := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	c := New(mirrors.New([]string{stalled.URL}), fastCfg())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Search(ctx, "jazz")
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("search did not observe cancellation")
	}

	// The aborted attempt says nothing about the mirror's health.
	assert.Equal(t, 0, dirFailures(c))
}

func dirFailures(c *Client) int {
	total := 0
	for _, m := range c.dir.Snapshot() {
		total += m.ConsecutiveFailures
	}
	return total
}
