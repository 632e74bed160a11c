// Package radiobrowser searches and resolves stations against the
// radio-browser.info mirror network. Individual mirrors may be slow,
// stale, or down; every request rotates through the mirror directory
// with backoff until it succeeds or the attempt budget runs out.
package radiobrowser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xinia/radiowidget/internal/backoff"
	"github.com/xinia/radiowidget/internal/mirrors"
)

// ErrDiscoveryUnavailable is returned when every mirror attempt failed.
// It always wraps the last underlying error.
var ErrDiscoveryUnavailable = errors.New("station directory unavailable")

// ErrMalformedResponse marks a single undecodable or invalid station
// record. It is never fatal to a whole batch.
var ErrMalformedResponse = errors.New("malformed directory record")

const (
	// BootstrapHost answers /json/servers with the current mirror set.
	BootstrapHost = "all.api.radio-browser.info"

	defaultUserAgent   = "radiowidget/0.1 (+https://github.com/xinia/radiowidget)"
	defaultMaxAttempts = 5
	defaultTimeout     = 5 * time.Second
	defaultSearchLimit = 25

	maxBodyBytes = 1 << 20 // bounded reads: a directory response never legitimately exceeds 1MB
)

// Config tunes the discovery client. The zero value gets sensible
// defaults from New.
type Config struct {
	UserAgent      string
	BootstrapURL   string        // base URL answering /json/servers
	MaxAttempts    int           // mirror attempts per logical request
	AttemptTimeout time.Duration // per-mirror request deadline
	SearchLimit    int           // max stations per search
	Backoff        backoff.Policy
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.BootstrapURL == "" {
		c.BootstrapURL = "https://" + BootstrapHost
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultTimeout
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = defaultSearchLimit
	}
	if c.Backoff == (backoff.Policy{}) {
		c.Backoff = backoff.Discovery()
	}
	return c
}

// Client is the station discovery client. Safe for concurrent use; the
// mirror directory is the only shared mutable state between in-flight
// requests.
type Client struct {
	cfg  Config
	http *http.Client
	dir  *mirrors.Directory

	mu         sync.Mutex
	lastMirror string
	resolved   map[string]Station // by-UUID cache of resolved stations
	dropped    int                // malformed records skipped so far
}

// New creates a Client over the given mirror directory.
func New(dir *mirrors.Directory, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		http: &http.Client{
			// Per-attempt deadlines come from the request context; the
			// client timeout is a hard upper bound.
			Timeout: 2 * cfg.AttemptTimeout,
		},
		dir:      dir,
		resolved: make(map[string]Station),
	}
}

// LastMirror returns the most recently successful mirror host, for
// persistence across runs.
func (c *Client) LastMirror() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMirror
}

// DroppedRecords returns how many malformed station records have been
// skipped since the client was created.
func (c *Client) DroppedRecords() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Bootstrap refreshes the mirror directory from the bootstrap host's
// /json/servers endpoint. Existing bookkeeping is preserved for hosts
// that remain in the set.
func (c *Client) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	body, err := c.get(ctx, c.cfg.BootstrapURL+"/json/servers")
	if err != nil {
		return fmt.Errorf("bootstrap mirror list: %w", err)
	}

	var servers []serverRecord
	if err := json.Unmarshal(body, &servers); err != nil {
		return fmt.Errorf("bootstrap mirror list: decode: %w", err)
	}

	hosts := make([]string, 0, len(servers))
	for _, s := range servers {
		if s.Name != "" {
			hosts = append(hosts, s.Name)
		}
	}
	if len(hosts) == 0 {
		return fmt.Errorf("bootstrap mirror list: empty server set")
	}
	c.dir.SetSeeds(hosts)
	return nil
}

// Search queries stations by free-text name. Results keep the
// directory's own vote ordering; malformed records are dropped
// per-record. An empty query returns no results without a request.
func (c *Client) Search(ctx context.Context, query string) ([]Station, error) {
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("name", query)
	params.Set("hidebroken", "true")
	params.Set("limit", strconv.Itoa(c.cfg.SearchLimit))
	params.Set("order", "votes")
	params.Set("reverse", "true")

	var stations []Station
	err := c.withMirrorRetry(ctx, "search", func(ctx context.Context, base string) error {
		body, err := c.get(ctx, base+"/json/stations/search?"+params.Encode())
		if err != nil {
			return err
		}
		var records []stationRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		stations = c.collect(records)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stations, nil
}

// Resolve looks up a single station by UUID. Resolved stations are
// cached for the lifetime of the client.
func (c *Client) Resolve(ctx context.Context, uuid string) (*Station, error) {
	if uuid == "" {
		return nil, fmt.Errorf("%w: empty station id", ErrMalformedResponse)
	}

	c.mu.Lock()
	if st, ok := c.resolved[uuid]; ok {
		c.mu.Unlock()
		return &st, nil
	}
	c.mu.Unlock()

	var station *Station
	err := c.withMirrorRetry(ctx, "resolve", func(ctx context.Context, base string) error {
		body, err := c.get(ctx, base+"/json/stations/byuuid/"+url.PathEscape(uuid))
		if err != nil {
			return err
		}
		var records []stationRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return fmt.Errorf("decode resolve response: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("station %s not found", uuid)
		}
		st, err := records[0].toStation()
		if err != nil {
			return err
		}
		station = &st
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.resolved[uuid] = *station
	c.mu.Unlock()
	return station, nil
}

// PlayableURL resolves the station's stream URL via the directory's
// click endpoint, which also counts the play for station rankings.
// Falls back to the cached or freshly resolved record's stream URL if
// the click payload has none.
func (c *Client) PlayableURL(ctx context.Context, uuid string) (string, error) {
	var playURL string
	err := c.withMirrorRetry(ctx, "click", func(ctx context.Context, base string) error {
		body, err := c.get(ctx, base+"/json/url/"+url.PathEscape(uuid))
		if err != nil {
			return err
		}
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("decode click response: %w", err)
		}
		if err := validateStreamURL(payload.URL); err != nil {
			return err
		}
		playURL = payload.URL
		return nil
	})
	if err == nil {
		return playURL, nil
	}

	// The click endpoint is best-effort; the resolved record still
	// carries a playable URL.
	st, rerr := c.Resolve(ctx, uuid)
	if rerr != nil {
		return "", err
	}
	return st.StreamURL, nil
}

// collect validates a batch of raw records, dropping malformed ones
// individually and preserving the directory's ordering.
func (c *Client) collect(records []stationRecord) []Station {
	stations := make([]Station, 0, len(records))
	skipped := 0
	for _, r := range records {
		st, err := r.toStation()
		if err != nil {
			skipped++
			continue
		}
		stations = append(stations, st)
	}
	if skipped > 0 {
		c.mu.Lock()
		c.dropped += skipped
		c.mu.Unlock()
	}
	return stations
}

// withMirrorRetry runs fn against successive mirror picks with backoff
// until it succeeds or the attempt budget is exhausted. Mirror
// bookkeeping is recorded only for completed attempts: a failure caused
// by the caller cancelling mid-request says nothing about the mirror's
// health and is not held against it.
func (c *Client) withMirrorRetry(ctx context.Context, op string, fn func(ctx context.Context, base string) error) error {
	var lastErr error
	for attempt := range c.cfg.MaxAttempts {
		host, ok := c.dir.Next()
		if !ok {
			host = BootstrapHost
		}
		base := host
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		err := fn(attemptCtx, base)
		cancel()

		if err == nil {
			c.dir.ReportSuccess(host)
			c.mu.Lock()
			c.lastMirror = host
			c.mu.Unlock()
			return nil
		}

		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%s: %w", op, cerr)
		}
		c.dir.ReportFailure(host)
		lastErr = fmt.Errorf("%s via %s: %w", op, host, err)

		if attempt+1 < c.cfg.MaxAttempts {
			if serr := c.cfg.Backoff.Sleep(ctx, attempt); serr != nil {
				return fmt.Errorf("%s: %w: %w", op, ErrDiscoveryUnavailable, serr)
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, c.cfg.MaxAttempts, ErrDiscoveryUnavailable, lastErr)
}

// get issues a GET with the client's headers and returns a bounded read
// of the body. Non-2xx statuses are errors.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeded %d bytes", maxBodyBytes)
	}
	return body, nil
}
