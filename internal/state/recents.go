package state

import (
	"time"
)

// maxRecentStations caps the recently-played history.
const maxRecentStations = 50

// RecentStation is one row of the recently-played history.
type RecentStation struct {
	UUID      string
	Name      string
	StreamURL string
	Codec     string
	Bitrate   int
	Country   string
	PlayedAt  time.Time
}

// SaveRecent records a played station, refreshing its timestamp if it
// is already in the history, and prunes the history to its cap.
func (m *Manager) SaveRecent(st RecentStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	playedAt := st.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}

	_, err := m.db.Exec(`
		INSERT INTO recent_stations (uuid, name, stream_url, codec, bitrate, country, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name = excluded.name,
			stream_url = excluded.stream_url,
			codec = excluded.codec,
			bitrate = excluded.bitrate,
			country = excluded.country,
			played_at = excluded.played_at
	`, st.UUID, st.Name, st.StreamURL, st.Codec, st.Bitrate, st.Country, playedAt.Unix())
	if err != nil {
		return err
	}

	_, err = m.db.Exec(`
		DELETE FROM recent_stations WHERE uuid NOT IN (
			SELECT uuid FROM recent_stations ORDER BY played_at DESC LIMIT ?
		)
	`, maxRecentStations)
	return err
}

// RecentStations returns the history, most recently played first.
func (m *Manager) RecentStations(limit int) ([]RecentStation, error) {
	if limit <= 0 || limit > maxRecentStations {
		limit = maxRecentStations
	}

	rows, err := m.db.Query(`
		SELECT uuid, name, stream_url, codec, bitrate, country, played_at
		FROM recent_stations
		ORDER BY played_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecentStation
	for rows.Next() {
		var st RecentStation
		var playedAt int64
		if err := rows.Scan(&st.UUID, &st.Name, &st.StreamURL, &st.Codec, &st.Bitrate, &st.Country, &playedAt); err != nil {
			return nil, err
		}
		st.PlayedAt = time.Unix(playedAt, 0)
		out = append(out, st)
	}
	return out, rows.Err()
}
