// Package testutil provides test utilities for the contaflow project.
// It offers in-memory database setup with proper test isolation.
package testutil

import (
	"context"
	"testing"

	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/storage"
)

// TestDB represents a test database with associated helpers.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. It automatically
// handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// SeedCompanies inserts registry companies, failing the test on error.
func (db *TestDB) SeedCompanies(companies ...model.Company) {
	db.t.Helper()
	ctx := context.Background()
	for i := range companies {
		if err := db.Storage.SaveCompany(ctx, &companies[i]); err != nil {
			db.t.Fatalf("failed to seed company %s: %v", companies[i].ID, err)
		}
	}
}

// SeedTransactions inserts bank transactions, failing the test on error.
func (db *TestDB) SeedTransactions(transactions ...model.BankTransaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), transactions); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// SeedOutstanding inserts open receivables, failing the test on error.
func (db *TestDB) SeedOutstanding(outstanding ...model.Outstanding) {
	db.t.Helper()
	ctx := context.Background()
	for i := range outstanding {
		if err := db.Storage.SaveOutstanding(ctx, &outstanding[i]); err != nil {
			db.t.Fatalf("failed to seed outstanding receivable: %v", err)
		}
	}
}
