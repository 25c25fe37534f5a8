package auditdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE audit_log (
			id     INTEGER PRIMARY KEY NOT NULL,
			time   TEXT NOT NULL,
			op     TEXT NOT NULL,
			proto  INTEGER NOT NULL,
			vaddr  TEXT NOT NULL,
			vport  INTEGER NOT NULL,
			addr   TEXT NOT NULL,
			status TEXT NOT NULL
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return fmt.Errorf("create audit_log table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX audit_log_service_idx ON audit_log(vaddr, vport, op)`); err != nil {
		return fmt.Errorf("create audit_log index: %w", err)
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX audit_log_service_idx`); err != nil {
		return fmt.Errorf("drop audit_log index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE audit_log`); err != nil {
		return fmt.Errorf("drop audit_log table: %w", err)
	}
	return nil
}
