package radiobrowser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
)

// Station is one station record from the directory. Immutable once
// constructed; records that fail validation are dropped individually
// and never reach callers.
type Station struct {
	ID          string
	Name        string
	StreamURL   string
	Codec       string
	Bitrate     int
	Country     string
	Tags        []string
	Votes       int
	LastCheckOK bool
}

// Summary returns a one-line description for list display, e.g.
// "Jazz24 — MP3 128 kbps, US, 12,345 votes".
func (s Station) Summary() string {
	var b strings.Builder
	b.WriteString(s.Name)

	var parts []string
	if s.Codec != "" {
		codec := s.Codec
		if s.Bitrate > 0 {
			codec = fmt.Sprintf("%s %d kbps", codec, s.Bitrate)
		}
		parts = append(parts, codec)
	}
	if s.Country != "" {
		parts = append(parts, s.Country)
	}
	if s.Votes > 0 {
		parts = append(parts, humanize.Comma(int64(s.Votes))+" votes")
	}
	if len(parts) > 0 {
		b.WriteString(" — ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}

// stationRecord is the raw directory JSON shape. Every field is
// optional at the decode layer; validation decides what survives.
type stationRecord struct {
	StationUUID string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
	Country     string `json:"country"`
	Tags        string `json:"tags"`
	Votes       int    `json:"votes"`
	LastCheckOK int    `json:"lastcheckok"`
}

// toStation validates a raw record. Records without a UUID or a
// playable http(s) stream URL are rejected.
func (r stationRecord) toStation() (Station, error) {
	if r.StationUUID == "" {
		return Station{}, fmt.Errorf("%w: missing stationuuid", ErrMalformedResponse)
	}
	streamURL := r.URLResolved
	if streamURL == "" {
		streamURL = r.URL
	}
	if err := validateStreamURL(streamURL); err != nil {
		return Station{}, err
	}

	var tags []string
	for _, t := range strings.Split(r.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return Station{
		ID:          r.StationUUID,
		Name:        strings.TrimSpace(r.Name),
		StreamURL:   streamURL,
		Codec:       r.Codec,
		Bitrate:     r.Bitrate,
		Country:     r.Country,
		Tags:        tags,
		Votes:       r.Votes,
		LastCheckOK: r.LastCheckOK == 1,
	}, nil
}

func validateStreamURL(s string) error {
	if s == "" {
		return fmt.Errorf("%w: missing stream url", ErrMalformedResponse)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: invalid stream url: %v", ErrMalformedResponse, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported stream url scheme %q", ErrMalformedResponse, u.Scheme)
	}
	return nil
}

// serverRecord is one entry of the /json/servers bootstrap response.
type serverRecord struct {
	Name string `json:"name"`
}
