package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

// SaveCompany upserts a registry company and replaces its partner list.
func (s *SQLiteStorage) SaveCompany(ctx context.Context, company *model.Company) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCompany(company); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.saveCompany(ctx, tx, company); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit company: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) saveCompany(ctx context.Context, exec dbtx, company *model.Company) error {
	const upsert = `
		INSERT INTO companies (id, legal_name, trade_name, tax_id, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			legal_name = excluded.legal_name,
			trade_name = excluded.trade_name,
			tax_id = excluded.tax_id,
			is_active = excluded.is_active`

	if _, err := exec.ExecContext(ctx, upsert,
		company.ID, company.LegalName, company.TradeName, company.TaxID, company.IsActive); err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM partners WHERE company_id = ?`, company.ID); err != nil {
		return fmt.Errorf("failed to clear partners: %w", err)
	}
	for _, partner := range company.Partners {
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO partners (company_id, name, role) VALUES (?, ?, ?)`,
			company.ID, partner.Name, partner.Role); err != nil {
			return fmt.Errorf("failed to save partner %s: %w", partner.Name, err)
		}
	}
	return nil
}

// GetCompanyByID fetches one company with its partners.
func (s *SQLiteStorage) GetCompanyByID(ctx context.Context, id string) (*model.Company, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getCompanyByID(ctx, s.db, id)
}

func (s *SQLiteStorage) getCompanyByID(ctx context.Context, exec dbtx, id string) (*model.Company, error) {
	const query = `
		SELECT id, legal_name, trade_name, tax_id, is_active, created_at
		FROM companies
		WHERE id = ?`

	var company model.Company
	var tradeName, taxID sql.NullString
	err := exec.QueryRowContext(ctx, query, id).Scan(
		&company.ID, &company.LegalName, &tradeName, &taxID, &company.IsActive, &company.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: company %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	company.TradeName = tradeName.String
	company.TaxID = taxID.String

	partners, err := s.loadPartners(ctx, exec, []string{company.ID})
	if err != nil {
		return nil, err
	}
	company.Partners = partners[company.ID]
	return &company, nil
}

// GetActiveCompanies fetches the active registry with partners attached.
func (s *SQLiteStorage) GetActiveCompanies(ctx context.Context) ([]model.Company, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getActiveCompanies(ctx, s.db)
}

func (s *SQLiteStorage) getActiveCompanies(ctx context.Context, exec dbtx) ([]model.Company, error) {
	const query = `
		SELECT id, legal_name, trade_name, tax_id, is_active, created_at
		FROM companies
		WHERE is_active = 1
		ORDER BY legal_name`

	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	companies := []model.Company{}
	ids := []string{}
	for rows.Next() {
		var company model.Company
		var tradeName, taxID sql.NullString
		if err := rows.Scan(&company.ID, &company.LegalName, &tradeName, &taxID,
			&company.IsActive, &company.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		company.TradeName = tradeName.String
		company.TaxID = taxID.String
		companies = append(companies, company)
		ids = append(ids, company.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}

	partners, err := s.loadPartners(ctx, exec, ids)
	if err != nil {
		return nil, err
	}
	for i := range companies {
		companies[i].Partners = partners[companies[i].ID]
	}
	return companies, nil
}

func (s *SQLiteStorage) loadPartners(ctx context.Context, exec dbtx, companyIDs []string) (map[string][]model.Partner, error) {
	partners := make(map[string][]model.Partner, len(companyIDs))
	if len(companyIDs) == 0 {
		return partners, nil
	}

	query := `SELECT company_id, name, role FROM partners WHERE company_id IN (` +
		placeholders(len(companyIDs)) + `) ORDER BY company_id, id`
	rows, err := exec.QueryContext(ctx, query, stringArgs(companyIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var companyID string
		var partner model.Partner
		var role sql.NullString
		if err := rows.Scan(&companyID, &partner.Name, &role); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		partner.Role = role.String
		partners[companyID] = append(partners[companyID], partner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate partners: %w", err)
	}
	return partners, nil
}

// GetOutstandingByCompanies fetches the open receivables of the given
// companies, oldest due date first, ready for waterfall allocation.
func (s *SQLiteStorage) GetOutstandingByCompanies(ctx context.Context, companyIDs []string) ([]model.Outstanding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getOutstandingByCompanies(ctx, s.db, companyIDs)
}

func (s *SQLiteStorage) getOutstandingByCompanies(ctx context.Context, exec dbtx, companyIDs []string) ([]model.Outstanding, error) {
	outstanding := []model.Outstanding{}
	if len(companyIDs) == 0 {
		return outstanding, nil
	}

	query := `
		SELECT o.company_id, c.legal_name, o.due_date, o.amount, o.remaining
		FROM outstanding_receivables o
		JOIN companies c ON c.id = o.company_id
		WHERE o.remaining > 0 AND o.company_id IN (` + placeholders(len(companyIDs)) + `)
		ORDER BY o.due_date, o.id`

	rows, err := exec.QueryContext(ctx, query, stringArgs(companyIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding receivables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var o model.Outstanding
		if err := rows.Scan(&o.CompanyID, &o.CompanyName, &o.DueDate, &o.Amount, &o.Remaining); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding receivable: %w", err)
		}
		outstanding = append(outstanding, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outstanding receivables: %w", err)
	}
	return outstanding, nil
}

// GetLegacyBalance returns a company's balance carried over from the previous
// bookkeeping system. No row means zero.
func (s *SQLiteStorage) GetLegacyBalance(ctx context.Context, companyID string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return 0, err
	}
	return s.getLegacyBalance(ctx, s.db, companyID)
}

func (s *SQLiteStorage) getLegacyBalance(ctx context.Context, exec dbtx, companyID string) (float64, error) {
	var amount float64
	err := exec.QueryRowContext(ctx,
		`SELECT amount FROM legacy_balances WHERE company_id = ?`, companyID).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get legacy balance: %w", err)
	}
	return amount, nil
}

// GetLegacyBalances returns every positive pre-system balance keyed by
// company ID.
func (s *SQLiteStorage) GetLegacyBalances(ctx context.Context) (map[string]float64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getLegacyBalances(ctx, s.db)
}

func (s *SQLiteStorage) getLegacyBalances(ctx context.Context, exec dbtx) (map[string]float64, error) {
	rows, err := exec.QueryContext(ctx, `SELECT company_id, amount FROM legacy_balances WHERE amount > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	balances := make(map[string]float64)
	for rows.Next() {
		var companyID string
		var amount float64
		if err := rows.Scan(&companyID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan legacy balance: %w", err)
		}
		balances[companyID] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate legacy balances: %w", err)
	}
	return balances, nil
}

// ReduceOutstanding applies an allocated payment against one receivable.
func (s *SQLiteStorage) ReduceOutstanding(ctx context.Context, companyID string, dueDate time.Time, amount float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return err
	}
	return s.reduceOutstanding(ctx, s.db, companyID, dueDate, amount)
}

func (s *SQLiteStorage) reduceOutstanding(ctx context.Context, exec dbtx, companyID string, dueDate time.Time, amount float64) error {
	const query = `
		UPDATE outstanding_receivables
		SET remaining = MAX(remaining - ?, 0)
		WHERE company_id = ? AND due_date = ? AND remaining > 0`

	result, err := exec.ExecContext(ctx, query, amount, companyID, dueDate)
	if err != nil {
		return fmt.Errorf("failed to reduce outstanding receivable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: open receivable for company %s due %s",
			common.ErrNotFound, companyID, dueDate.Format("2006-01-02"))
	}
	return nil
}

// SaveOutstanding records an open receivable. Used by imports and tests.
func (s *SQLiteStorage) SaveOutstanding(ctx context.Context, o *model.Outstanding) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: outstanding", ErrNilParameter)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outstanding_receivables (company_id, due_date, amount, remaining) VALUES (?, ?, ?, ?)`,
		o.CompanyID, o.DueDate, o.Amount, o.Remaining)
	if err != nil {
		return fmt.Errorf("failed to save outstanding receivable: %w", err)
	}
	return nil
}

// SaveLegacyBalance records a company's pre-system balance.
func (s *SQLiteStorage) SaveLegacyBalance(ctx context.Context, companyID string, amount float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO legacy_balances (company_id, amount) VALUES (?, ?)
		ON CONFLICT(company_id) DO UPDATE SET amount = excluded.amount`,
		companyID, amount)
	if err != nil {
		return fmt.Errorf("failed to save legacy balance: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
