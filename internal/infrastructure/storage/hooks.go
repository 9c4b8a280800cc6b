package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/settings"
)

// WireHooks installs this package's bun-backed implementations into
// internal/settings's package-level hook vars, mirroring the dependency-injection-via-hook pattern used
// dependency injection in factory.go. Call once during process startup
// (cmd/flowfile-core's main, or any embedder's init path) before building
// a Settings Catalog that will use database_reader/database_writer nodes.
func WireHooks() {
	settings.DatabaseQueryHook = queryRows
	settings.DatabaseWriteHook = writeRows
}

// queryRows runs query against dsn and scans every column of every row into
// a cle.Row, used by the database_reader closure.
func queryRows(dsn, query string) ([]cle.Row, error) {
	db, err := dbFor(dsn)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("storage: columns: %w", err)
	}

	var out []cle.Row
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanValues := make([]any, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &scanValues[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		row := make(cle.Row, len(cols))
		for i, col := range cols {
			row[col] = scanValues[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// writeRows bulk-inserts rows into table, used by the database_writer
// closure. Every row is assumed to share the column set of the first
// (the closure's caller always hands it one Table's Rows).
func writeRows(dsn, table string, rows []cle.Row) error {
	if len(rows) == 0 {
		return nil
	}
	db, err := dbFor(dsn)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	colIdents := make([]bun.Ident, len(cols))
	for i, c := range cols {
		colIdents[i] = bun.Ident(c)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString("?")
	sb.WriteString(" (")
	for i := range colIdents {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, 1+len(colIdents)+len(rows)*len(cols))
	args = append(args, bun.Ident(table))
	for _, ident := range colIdents {
		args = append(args, ident)
	}

	for ri, row := range rows {
		if ri > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for ci, c := range cols {
			if ci > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, row[c])
		}
		sb.WriteString(")")
	}

	if _, err := db.ExecContext(context.Background(), sb.String(), args...); err != nil {
		return fmt.Errorf("storage: insert into %s: %w", table, err)
	}
	return nil
}
