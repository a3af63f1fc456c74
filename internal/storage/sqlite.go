package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// dbtx is the query surface shared by *sql.DB and *sql.Tx, so every data
// access method can run standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Validate input
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite doesn't benefit from multiple connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) SaveTransactions(ctx context.Context, transactions []model.BankTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}
	return t.storage.saveTransactions(ctx, t.tx, transactions)
}

func (t *sqliteTransaction) GetTransactionByID(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getTransactionByID(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getTransactions(ctx, t.tx, filter)
}

func (t *sqliteTransaction) GetPendingTransactions(ctx context.Context, year, month int) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return t.storage.getPendingTransactions(ctx, t.tx, year, month)
}

func (t *sqliteTransaction) MarkTransactionReconciled(ctx context.Context, id, entryID string, confidence float64, reasoning string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return t.storage.markTransactionReconciled(ctx, t.tx, id, entryID, confidence, reasoning)
}

func (t *sqliteTransaction) SaveEscalation(ctx context.Context, id string, decision *model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if decision == nil {
		return fmt.Errorf("%w: decision", ErrNilParameter)
	}
	return t.storage.saveEscalation(ctx, t.tx, id, decision)
}

func (t *sqliteTransaction) GetEscalation(ctx context.Context, id string) (*model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getEscalation(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetEscalatedTransactions(ctx context.Context, year, month int) ([]service.Escalation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return t.storage.getEscalatedTransactions(ctx, t.tx, year, month)
}

func (t *sqliteTransaction) SaveCompany(ctx context.Context, company *model.Company) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCompany(company); err != nil {
		return err
	}
	return t.storage.saveCompany(ctx, t.tx, company)
}

func (t *sqliteTransaction) GetCompanyByID(ctx context.Context, id string) (*model.Company, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getCompanyByID(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetActiveCompanies(ctx context.Context) ([]model.Company, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getActiveCompanies(ctx, t.tx)
}

func (t *sqliteTransaction) GetOutstandingByCompanies(ctx context.Context, companyIDs []string) ([]model.Outstanding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getOutstandingByCompanies(ctx, t.tx, companyIDs)
}

func (t *sqliteTransaction) GetLegacyBalance(ctx context.Context, companyID string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return 0, err
	}
	return t.storage.getLegacyBalance(ctx, t.tx, companyID)
}

func (t *sqliteTransaction) GetLegacyBalances(ctx context.Context) (map[string]float64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getLegacyBalances(ctx, t.tx)
}

func (t *sqliteTransaction) ReduceOutstanding(ctx context.Context, companyID string, dueDate time.Time, amount float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return err
	}
	return t.storage.reduceOutstanding(ctx, t.tx, companyID, dueDate, amount)
}

func (t *sqliteTransaction) CreateRule(ctx context.Context, rule *model.ClassificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return t.storage.createRule(ctx, t.tx, rule)
}

func (t *sqliteTransaction) GetActiveRules(ctx context.Context) ([]model.ClassificationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getActiveRules(ctx, t.tx)
}

func (t *sqliteTransaction) UpdateRule(ctx context.Context, rule *model.ClassificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return t.storage.updateRule(ctx, t.tx, rule)
}

func (t *sqliteTransaction) DeleteRule(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteRule(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetLearnedPatterns(ctx context.Context) ([]model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getLearnedPatterns(ctx, t.tx)
}

func (t *sqliteTransaction) UpsertLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}
	return t.storage.upsertLearnedPattern(ctx, t.tx, pattern)
}

func (t *sqliteTransaction) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	return t.storage.createLedgerEntry(ctx, t.tx, entry)
}

func (t *sqliteTransaction) GetLedgerEntryByID(ctx context.Context, id string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getLedgerEntryByID(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetLedgerEntryBySource(ctx context.Context, sourceType, sourceID string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sourceType, "sourceType"); err != nil {
		return nil, err
	}
	if err := validateString(sourceID, "sourceID"); err != nil {
		return nil, err
	}
	return t.storage.getLedgerEntryBySource(ctx, t.tx, sourceType, sourceID)
}

func (t *sqliteTransaction) GetSuspenseBalances(ctx context.Context, year, month int, accounts []string) ([]model.SuspenseBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return t.storage.getSuspenseBalances(ctx, t.tx, year, month, accounts)
}

func (t *sqliteTransaction) GetUnbalancedEntries(ctx context.Context, year, month int) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return t.storage.getUnbalancedEntries(ctx, t.tx, year, month)
}

func (t *sqliteTransaction) GetMonthClosing(ctx context.Context, year, month int) (*model.MonthClosing, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return t.storage.getMonthClosing(ctx, t.tx, year, month)
}

func (t *sqliteTransaction) SaveMonthClosing(ctx context.Context, closing *model.MonthClosing) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if closing == nil {
		return fmt.Errorf("%w: closing", ErrNilParameter)
	}
	if err := validatePeriod(closing.Year, closing.Month); err != nil {
		return err
	}
	return t.storage.saveMonthClosing(ctx, t.tx, closing)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
