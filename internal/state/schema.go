package state

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS recent_stations (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			stream_url TEXT NOT NULL,
			codec TEXT,
			bitrate INTEGER,
			country TEXT,
			played_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recent_stations_played_at ON recent_stations(played_at DESC);

		CREATE TABLE IF NOT EXISTS favorite_stations (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			stream_url TEXT NOT NULL,
			codec TEXT,
			bitrate INTEGER,
			country TEXT,
			added_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS client_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_mirror TEXT,
			volume INTEGER
		);
	`)
	if err != nil {
		return err
	}

	// Set initial version if not exists
	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
