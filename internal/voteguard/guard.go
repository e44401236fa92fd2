package voteguard

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Guard is the client-side fallback dedup state for anonymous voters: a
// durable random device token reused across polls, and one advisory
// has-voted flag per poll. It is advisory only; the vote store's
// per-voter-identity upsert is authoritative. Clearing the backing file (or
// using another device) yields a fresh token and a fresh vote.
type Guard struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS device_identity (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS voted_polls (
	poll_id TEXT PRIMARY KEY,
	voted_at TIMESTAMP NOT NULL
);
`

// Open creates or opens the guard state file.
func Open(path string) (*Guard, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open guard state: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init guard state: %w", err)
	}
	return &Guard{db: db}, nil
}

func (g *Guard) Close() error {
	return g.db.Close()
}

// DeviceToken returns the persisted anonymous identity token, generating and
// storing one on first use.
func (g *Guard) DeviceToken() (string, error) {
	var token string
	err := g.db.QueryRow(`SELECT token FROM device_identity WHERE id = 1`).Scan(&token)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	token = uuid.New().String()
	// Another writer may have raced us; keep whichever token landed first.
	_, err = g.db.Exec(
		`INSERT INTO device_identity (id, token, created_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		token, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	if err := g.db.QueryRow(`SELECT token FROM device_identity WHERE id = 1`).Scan(&token); err != nil {
		return "", err
	}
	return token, nil
}

// MarkVoted records the advisory has-voted flag for a poll.
func (g *Guard) MarkVoted(pollID string) error {
	_, err := g.db.Exec(
		`INSERT INTO voted_polls (poll_id, voted_at) VALUES (?, ?)
		 ON CONFLICT (poll_id) DO NOTHING`,
		pollID, time.Now().UTC(),
	)
	return err
}

// HasVoted reports whether this device already voted on the poll.
func (g *Guard) HasVoted(pollID string) (bool, error) {
	var one int
	err := g.db.QueryRow(`SELECT 1 FROM voted_polls WHERE poll_id = ?`, pollID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
