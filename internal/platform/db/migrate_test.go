package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestSchemaCoversLedgerTables(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/0001_ledger.up.sql")
	require.NoError(t, err)
	schema := string(data)
	for _, table := range []string{
		"accounts", "journal_entries", "journal_lines", "sequences", "credit_notes", "credit_note_lines",
		"invoices", "invoice_lines", "payments", "stock_balances", "stock_movements", "idempotency_keys", "audit_logs",
	} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	require.Contains(t, schema, "uq_journal_entries_idempotency")
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	err := Migrate("postgres://unused", Direction("sideways"), nil)
	require.Error(t, err)
}
