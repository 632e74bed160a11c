package state

import (
	"time"
)

// FavoriteStation is one row of the user-curated favorites list.
type FavoriteStation struct {
	UUID      string
	Name      string
	StreamURL string
	Codec     string
	Bitrate   int
	Country   string
	AddedAt   time.Time
}

// ToggleFavorite adds the station to the favorites, or removes it if it
// is already there. The return value reports whether the station is a
// favorite afterwards.
func (m *Manager) ToggleFavorite(st FavoriteStation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.Exec(`DELETE FROM favorite_stations WHERE uuid = ?`, st.UUID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return false, nil
	}

	addedAt := st.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}
	_, err = m.db.Exec(`
		INSERT INTO favorite_stations (uuid, name, stream_url, codec, bitrate, country, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, st.UUID, st.Name, st.StreamURL, st.Codec, st.Bitrate, st.Country, addedAt.Unix())
	if err != nil {
		return false, err
	}
	return true, nil
}

// FavoriteStations returns the favorites in the order they were added.
func (m *Manager) FavoriteStations() ([]FavoriteStation, error) {
	rows, err := m.db.Query(`
		SELECT uuid, name, stream_url, codec, bitrate, country, added_at
		FROM favorite_stations
		ORDER BY added_at ASC, uuid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FavoriteStation
	for rows.Next() {
		var st FavoriteStation
		var addedAt int64
		if err := rows.Scan(&st.UUID, &st.Name, &st.StreamURL, &st.Codec, &st.Bitrate, &st.Country, &addedAt); err != nil {
			return nil, err
		}
		st.AddedAt = time.Unix(addedAt, 0)
		out = append(out, st)
	}
	return out, rows.Err()
}

// IsFavorite reports whether the station is in the favorites.
func (m *Manager) IsFavorite(uuid string) (bool, error) {
	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM favorite_stations WHERE uuid = ?`, uuid).Scan(&n)
	return n > 0, err
}
