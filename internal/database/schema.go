package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequiredColumns lists the columns the store reads or writes, per relation.
var RequiredColumns = map[string][]string{
	"instrument": {
		"id", "ticker", "name", "vendor", "stype", "dataset",
		"first_available", "last_available", "active",
	},
	"mbp": {
		"id", "instrument_id", "ts_event", "ts_recv", "ts_in_delta", "price", "size",
		"action", "side", "flags", "sequence", "discriminator", "order_book_hash",
	},
	"bid_ask": {
		"id", "mbp_id", "depth", "bid_px", "bid_sz", "bid_ct", "ask_px", "ask_sz", "ask_ct",
	},
}

// VerifySchema checks that every required column exists in the current schema.
func VerifySchema(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ANY($1)
	`, requiredTables())
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	present := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("scan schema: %w", err)
		}
		if present[table] == nil {
			present[table] = make(map[string]bool)
		}
		present[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	if missing := missingColumns(present); len(missing) > 0 {
		return fmt.Errorf("schema incomplete, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func requiredTables() []string {
	tables := make([]string, 0, len(RequiredColumns))
	for table := range RequiredColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// missingColumns returns "table.column" for each required column not present,
// sorted for stable messages.
func missingColumns(present map[string]map[string]bool) []string {
	var missing []string
	for table, columns := range RequiredColumns {
		for _, column := range columns {
			if !present[table][column] {
				missing = append(missing, table+"."+column)
			}
		}
	}
	sort.Strings(missing)
	return missing
}
