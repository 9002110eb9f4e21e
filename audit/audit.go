// Package audit persists admission, disconnect and host-migration
// events to a sqlite database, grounded on the teacher's auth.go
// storage/auth.sqlite pattern (database/sql + mattn/go-sqlite3) but
// repurposed from password/privilege storage to a session's audit
// trail.
package audit

import (
	"database/sql"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EventKind names the audit event categories this trail records.
type EventKind string

const (
	EventAdmitted   EventKind = "admitted"
	EventRejected   EventKind = "rejected"
	EventDisconnect EventKind = "disconnected"
	EventMigration  EventKind = "host_migration"
	EventBan        EventKind = "banned"
)

// Trail wraps the sqlite audit database. All methods are safe for
// concurrent use, delegating to *sql.DB's own connection pool.
type Trail struct {
	db *sql.DB
}

// Open creates storage/<name>.sqlite (mkdir-ing storage/ as needed)
// and ensures the events table exists.
func Open(name string) (*Trail, error) {
	if err := os.MkdirAll("storage", 0775); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", "storage/"+name+".sqlite")
	if err != nil {
		return nil, err
	}

	const schema = `CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at DATETIME NOT NULL,
		kind VARCHAR(32) NOT NULL,
		client_id INTEGER NOT NULL,
		remote_addr VARCHAR(64) NOT NULL,
		detail VARCHAR(256)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Trail{db: db}, nil
}

// Close closes the underlying database handle.
func (t *Trail) Close() error { return t.db.Close() }

// Record inserts one audit event.
func (t *Trail) Record(kind EventKind, clientId uint32, remoteAddr, detail string) error {
	const insert = `INSERT INTO events (occurred_at, kind, client_id, remote_addr, detail) VALUES (?, ?, ?, ?, ?);`
	_, err := t.db.Exec(insert, time.Now(), string(kind), clientId, remoteAddr, detail)
	return err
}

// Event is one row read back from the trail.
type Event struct {
	OccurredAt time.Time
	Kind       EventKind
	ClientId   uint32
	RemoteAddr string
	Detail     string
}

// RecentForClient returns the most recent limit events recorded for
// clientId, newest first.
func (t *Trail) RecentForClient(clientId uint32, limit int) ([]Event, error) {
	const query = `SELECT occurred_at, kind, client_id, remote_addr, detail
		FROM events WHERE client_id = ? ORDER BY occurred_at DESC LIMIT ?;`

	rows, err := t.db.Query(query, clientId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.OccurredAt, &kind, &e.ClientId, &e.RemoteAddr, &e.Detail); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
