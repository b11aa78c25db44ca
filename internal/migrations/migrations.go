package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"hmsinventory/m/internal/database"
)

// Migration is one step of the linear schema history. Steps must be safe to
// re-run: every statement is guarded with IF NOT EXISTS or an explicit
// existence check.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sqlx.Tx, dialect string) error
}

// Status represents whether a migration has been applied.
type Status struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// All is the ordered schema history. Append only; never edit a released step.
var All = []Migration{
	{Version: 1, Name: "create_items", Up: statements(
		`CREATE TABLE IF NOT EXISTS items (
            id TEXT PRIMARY KEY,
            code TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            category TEXT NOT NULL,
            unit TEXT NOT NULL DEFAULT '',
            reorder_level BIGINT NOT NULL DEFAULT 0,
            reorder_quantity BIGINT NOT NULL DEFAULT 0,
            unit_cost TEXT NOT NULL DEFAULT '0',
            current_stock BIGINT NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
            version BIGINT NOT NULL DEFAULT 0,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
	)},
	{Version: 2, Name: "create_batches", Up: statements(
		`CREATE TABLE IF NOT EXISTS batches (
            id TEXT PRIMARY KEY,
            item_id TEXT NOT NULL REFERENCES items(id),
            batch_number TEXT NOT NULL,
            original_quantity BIGINT NOT NULL CHECK (original_quantity > 0),
            remaining_quantity BIGINT NOT NULL CHECK (remaining_quantity >= 0 AND remaining_quantity <= original_quantity),
            expiry_date TEXT NOT NULL,
            received_at TEXT NOT NULL
        )`,
	)},
	{Version: 3, Name: "create_movements", Up: statements(
		`CREATE TABLE IF NOT EXISTS movements (
            id TEXT PRIMARY KEY,
            item_id TEXT NOT NULL REFERENCES items(id),
            batch_id TEXT REFERENCES batches(id),
            seq BIGINT NOT NULL,
            movement_type TEXT NOT NULL CHECK (movement_type IN ('IN', 'OUT', 'ADJUSTMENT', 'RETURN', 'EXPIRED')),
            quantity BIGINT NOT NULL,
            previous_stock BIGINT NOT NULL,
            resulting_stock BIGINT NOT NULL CHECK (resulting_stock >= 0),
            reference_type TEXT,
            reference_id TEXT,
            actor_id TEXT NOT NULL,
            notes TEXT,
            created_at TEXT NOT NULL,
            UNIQUE (item_id, seq)
        )`,
	)},
	{Version: 4, Name: "stock_indexes", Up: statements(
		`CREATE INDEX IF NOT EXISTS idx_batches_item_expiry ON batches (item_id, expiry_date, received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_expiry ON batches (expiry_date)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_reference ON movements (reference_type, reference_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_category ON items (category, active)`,
	)},
	{Version: 5, Name: "batches_supplier", Up: addColumn("batches", "supplier_id", "TEXT")},
	{Version: 6, Name: "movements_append_only", Up: appendOnlyMovements},
}

// Run applies all pending migrations in version order, each in its own
// transaction. It returns how many were applied.
func Run(ctx context.Context, db *sqlx.DB) (int, error) {
	if err := ensureTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	dialect := database.Dialect(db)
	count := 0
	for _, mig := range All {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := apply(ctx, db, dialect, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// StatusOf lists every known migration and whether it has been applied.
func StatusOf(ctx context.Context, db *sqlx.DB) ([]Status, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(All))
	for _, mig := range All {
		s := Status{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			s.Applied = true
			s.AppliedAt = at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func ensureTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            applied_at TEXT NOT NULL
        )`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sqlx.DB) (map[int]*time.Time, error) {
	var rows []struct {
		Version   int    `db:"version"`
		AppliedAt string `db:"applied_at"`
	}
	if err := db.SelectContext(ctx, &rows, `SELECT version, applied_at FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	applied := make(map[int]*time.Time, len(rows))
	for _, r := range rows {
		var at *time.Time
		if t, err := time.Parse(time.RFC3339Nano, r.AppliedAt); err == nil {
			at = &t
		}
		applied[r.Version] = at
	}
	return applied, nil
}

func apply(ctx context.Context, db *sqlx.DB, dialect string, mig Migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := mig.Up(ctx, tx, dialect); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		mig.Version, mig.Name, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func statements(stmts ...string) func(context.Context, *sqlx.Tx, string) error {
	return func(ctx context.Context, tx *sqlx.Tx, _ string) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute SQL: %w", err)
			}
		}
		return nil
	}
}

// addColumn adds a column only when the table does not already have it, so
// databases created by hand or by an older build converge on one schema.
func addColumn(table, column, ddlType string) func(context.Context, *sqlx.Tx, string) error {
	return func(ctx context.Context, tx *sqlx.Tx, dialect string) error {
		exists, err := columnExists(ctx, tx, dialect, table, column)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, ddlType)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, column, err)
		}
		return nil
	}
}

func columnExists(ctx context.Context, tx *sqlx.Tx, dialect, table, column string) (bool, error) {
	var (
		n     int
		query string
	)
	switch dialect {
	case "postgres":
		query = `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`
	default:
		query = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	}
	if err := tx.GetContext(ctx, &n, tx.Rebind(query), table, column); err != nil {
		return false, fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// appendOnlyMovements rejects UPDATE and DELETE on the ledger at the storage
// layer.
func appendOnlyMovements(ctx context.Context, tx *sqlx.Tx, dialect string) error {
	var stmts []string
	switch dialect {
	case "postgres":
		stmts = []string{
			`CREATE OR REPLACE FUNCTION movements_append_only() RETURNS trigger AS $$
            BEGIN
                RAISE EXCEPTION 'movements are append-only';
            END;
            $$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS movements_append_only ON movements`,
			`CREATE TRIGGER movements_append_only BEFORE UPDATE OR DELETE ON movements
            FOR EACH ROW EXECUTE FUNCTION movements_append_only()`,
		}
	default:
		stmts = []string{
			`CREATE TRIGGER IF NOT EXISTS movements_no_update BEFORE UPDATE ON movements
            BEGIN SELECT RAISE(ABORT, 'movements are append-only'); END`,
			`CREATE TRIGGER IF NOT EXISTS movements_no_delete BEFORE DELETE ON movements
            BEGIN SELECT RAISE(ABORT, 'movements are append-only'); END`,
		}
	}
	return statements(stmts...)(ctx, tx, dialect)
}
