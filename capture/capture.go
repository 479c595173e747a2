// ════════════════════════════════════════════════════════════════════════════════════════════════
// Datagram Capture Store
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Persistent Record / Replay Of Received Datagrams
//
// Description:
//   Received datagrams are appended to a sqlite table together with their partition, local
//   receive timestamp and a Keccak-256 digest of the payload. Loading verifies every digest so
//   a damaged capture is rejected rather than replayed.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package capture

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/sha3"

	"tradecore/debug"
	"tradecore/link"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture: closed")
	// ErrCorrupt is returned when a stored digest does not match its payload.
	ErrCorrupt = errors.New("capture: digest mismatch")
)

const schema = `
CREATE TABLE IF NOT EXISTS datagrams (
	seq       INTEGER PRIMARY KEY,
	partition INTEGER NOT NULL,
	ts_local  INTEGER NOT NULL,
	payload   BLOB    NOT NULL,
	digest    BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS datagrams_partition ON datagrams (partition, seq);
`

// Store is a capture file. Not safe for concurrent use.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	count  int64
}

// Record is one stored datagram.
type Record struct {
	Seq       int64
	Partition int
	link.Datagram
}

// Open opens or creates the capture at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	// One connection: in-memory databases are per connection.
	db.SetMaxOpenConns(1)
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("capture: schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT INTO datagrams (partition, ts_local, payload, digest) VALUES (?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("capture: prepare insert: %w", err)
	}
	s := &Store{db: db, insert: insert}
	if err := db.QueryRow(`SELECT COUNT(*) FROM datagrams`).Scan(&s.count); err != nil {
		s.Close()
		return nil, fmt.Errorf("capture: count: %w", err)
	}
	return s, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("capture: %s: %w", p, err)
		}
	}
	return nil
}

// Digest is the Keccak-256 of payload.
func Digest(payload []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return h.Sum(nil)
}

// Record appends one datagram and returns its sequence number.
func (s *Store) Record(partition int, tsLocal int64, payload []byte) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if payload == nil {
		payload = []byte{}
	}
	res, err := s.insert.Exec(partition, tsLocal, payload, Digest(payload))
	if err != nil {
		return 0, fmt.Errorf("capture: record: %w", err)
	}
	s.count++
	return res.LastInsertId()
}

// Load returns up to limit datagrams of partition with seq > after, in
// sequence order. A non-positive limit means no limit.
func (s *Store) Load(partition int, after int64, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT seq, ts_local, payload, digest FROM datagrams
		WHERE partition = ? AND seq > ? ORDER BY seq LIMIT ?`, partition, after, limit)
	if err != nil {
		return nil, fmt.Errorf("capture: load: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := Record{Partition: partition}
		var digest []byte
		if err := rows.Scan(&r.Seq, &r.TsLocal, &r.Payload, &digest); err != nil {
			return nil, fmt.Errorf("capture: scan: %w", err)
		}
		if !bytes.Equal(digest, Digest(r.Payload)) {
			debug.DropMessage("capture", fmt.Sprintf("seq %d partition %d failed digest check", r.Seq, partition))
			return nil, fmt.Errorf("%w: seq %d", ErrCorrupt, r.Seq)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Scan returns up to limit datagrams of every partition with seq > after,
// in sequence order.
func (s *Store) Scan(after int64, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT seq, partition, ts_local, payload, digest FROM datagrams
		WHERE seq > ? ORDER BY seq LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("capture: scan: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var digest []byte
		if err := rows.Scan(&r.Seq, &r.Partition, &r.TsLocal, &r.Payload, &digest); err != nil {
			return nil, fmt.Errorf("capture: scan: %w", err)
		}
		if !bytes.Equal(digest, Digest(r.Payload)) {
			return nil, fmt.Errorf("%w: seq %d", ErrCorrupt, r.Seq)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Datagrams loads a whole partition in the form replay links take.
func (s *Store) Datagrams(partition int) ([]link.Datagram, error) {
	recs, err := s.Load(partition, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]link.Datagram, len(recs))
	for i := range recs {
		out[i] = recs[i].Datagram
	}
	return out, nil
}

// Partitions lists the partitions present in the capture.
func (s *Store) Partitions() ([]int, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.Query(`SELECT DISTINCT partition FROM datagrams ORDER BY partition`)
	if err != nil {
		return nil, fmt.Errorf("capture: partitions: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count is the number of stored datagrams.
func (s *Store) Count() int64 { return s.count }

// Close releases the store.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	s.insert.Close()
	err := s.db.Close()
	s.db = nil
	return err
}
