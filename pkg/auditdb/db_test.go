package auditdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cur, tgt, err := db.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if cur != 0 {
		t.Fatalf("current version not 0")
	}
	if err := db.MigrateUp(context.Background(), tgt); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return db
}

func TestRecordAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Record(ctx, Entry{
		Time:   time.Now(),
		Op:     "add",
		Proto:  6,
		VAddr:  "203.0.113.1",
		VPort:  80,
		Addr:   "10.0.0.1",
		Status: "Ok",
	}); err != nil {
		t.Fatalf("record add: %v", err)
	}
	if err := db.Record(ctx, Entry{
		Time:   time.Now(),
		Op:     "flush",
		Proto:  6,
		VAddr:  "203.0.113.1",
		VPort:  80,
		Status: "Ok",
	}); err != nil {
		t.Fatalf("record flush: %v", err)
	}

	entries, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Op != "flush" || entries[1].Op != "add" {
		t.Fatalf("entries not in newest-first order: %+v", entries)
	}

	n, err := db.CountByOp(ctx, "203.0.113.1", 80, "add")
	if err != nil {
		t.Fatalf("countByOp: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountByOp(add) = %d, want 1", n)
	}
}
