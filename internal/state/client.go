package state

import "database/sql"

// LastMirror returns the last directory mirror that served a request,
// or empty if none was recorded yet.
func (m *Manager) LastMirror() (string, error) {
	var host sql.NullString
	err := m.db.QueryRow(`SELECT last_mirror FROM client_state WHERE id = 1`).Scan(&host)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return host.String, nil
}

// SaveLastMirror records the mirror that last served a request.
func (m *Manager) SaveLastMirror(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.Exec(`
		INSERT INTO client_state (id, last_mirror) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_mirror = excluded.last_mirror
	`, host)
	return err
}

// Volume returns the saved player volume, or nil if none was saved.
func (m *Manager) Volume() (*int, error) {
	var vol sql.NullInt64
	err := m.db.QueryRow(`SELECT volume FROM client_state WHERE id = 1`).Scan(&vol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !vol.Valid {
		return nil, nil
	}
	v := int(vol.Int64)
	return &v, nil
}

// SaveVolume records the player volume for the next session.
func (m *Manager) SaveVolume(v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.Exec(`
		INSERT INTO client_state (id, volume) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET volume = excluded.volume
	`, v)
	return err
}
