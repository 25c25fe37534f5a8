// Package auditdb stores an append-only audit trail of control-plane
// mutations against the allocator: every LaddrAdd/LaddrDel/LaddrFlush/reload
// call, whatever its outcome, gets one row. It is write-mostly from the
// allocator's perspective and is never read back to reconstruct pool state
// at startup (SPEC_FULL.md §6).
package auditdb

import (
	"context"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
)

// DB stores the control-plane audit log in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens a DB from the provided sqlite3 path.
func Open(name string) (*DB, error) {
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, err
	}
	if _, err := x.Exec(`PRAGMA page_size = 8192`); err != nil {
		panic(err)
	}
	return &DB{x}, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

// Entry is one row of the audit log.
type Entry struct {
	ID     int64     `db:"id"`
	Time   time.Time `db:"time"`
	Op     string    `db:"op"` // "add", "del", "flush", "reload"
	Proto  uint8     `db:"proto"`
	VAddr  string    `db:"vaddr"`
	VPort  uint16    `db:"vport"`
	Addr   string    `db:"addr"` // empty for flush/reload
	Status string    `db:"status"`
}

// Record appends one audit entry, stamping it with the current time. It
// takes a context so the control-plane handler can bound how long it's
// willing to wait on the write.
func (db *DB) Record(ctx context.Context, e Entry) error {
	e.Time = time.Now().UTC()
	_, err := db.x.NamedExecContext(ctx, `
		INSERT INTO audit_log
		( time,  op,  proto,  vaddr,  vport,  addr,  status)
		VALUES
		(:time, :op, :proto, :vaddr, :vport, :addr, :status)
	`, e)
	return err
}

// Recent returns the most recent n audit entries, newest first.
func (db *DB) Recent(ctx context.Context, n int) ([]Entry, error) {
	// time is a STRICT TEXT column, which the driver hands back as a string,
	// so it is scanned as text and parsed in the layout sqlite3 wrote it in.
	rows, err := db.x.QueryContext(ctx, `SELECT id, time, op, proto, vaddr, vport, addr, status FROM audit_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Op, &e.Proto, &e.VAddr, &e.VPort, &e.Addr, &e.Status); err != nil {
			return nil, err
		}
		if e.Time, err = time.Parse("2006-01-02 15:04:05.999999999-07:00", ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByOp returns the number of audit rows recorded for the given
// (vaddr, vport, op) triple. Used by tests to assert the audit trail matches
// the control operations actually issued.
func (db *DB) CountByOp(ctx context.Context, vaddr string, vport uint16, op string) (int, error) {
	var n int
	err := db.x.GetContext(ctx, &n, `SELECT COUNT(*) FROM audit_log WHERE vaddr = ? AND vport = ? AND op = ?`, vaddr, vport, op)
	return n, err
}
