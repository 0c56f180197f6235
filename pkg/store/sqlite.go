package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

const loanColumns = `id, title, lender, purpose, notes, principal, interest_rate, term, start_date,
	installment_frequency, installment_amount, penalty_rate, grace_period, remaining_balance,
	total_amount, status, version, created_at, updated_at`

const paymentColumns = `id, loan_id, amount, transaction_fee, penalty_amount, total_amount,
	payment_method, payment_date, payment_time, is_penalty, is_late_payment, status, created_at,
	account_name, account_number, bank_name, mobile_number, mobile_provider`

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens the database and initializes its schema.
func NewSQLiteStore(dataSourceName string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// a single connection keeps the pragmas and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("database connection established and schema initialized", zap.String("driver", "sqlite3"), zap.String("source", dataSourceName))
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are TEXT so that no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		lender TEXT NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		term INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		installment_frequency TEXT NOT NULL,
		installment_amount TEXT NOT NULL,
		penalty_rate TEXT NOT NULL DEFAULT '0',
		grace_period INTEGER NOT NULL DEFAULT 0,
		remaining_balance TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		transaction_fee TEXT NOT NULL DEFAULT '0',
		penalty_amount TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		payment_time TEXT NOT NULL DEFAULT '',
		is_penalty INTEGER NOT NULL DEFAULT 0,
		is_late_payment INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		account_name TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		mobile_provider TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS payments_loan_id ON payments(loan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.Title, loan.Lender, loan.Purpose, loan.Notes, loan.Principal, loan.InterestRate,
		loan.Term, loan.StartDate, loan.InstallmentFrequency, loan.InstallmentAmount, loan.PenaltyRate,
		loan.GracePeriod, loan.RemainingBalance, loan.TotalAmount, loan.Status, loan.Version,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan writes the user editable fields of loan. Balances and the
// terms fixed at creation are only changed through SavePayment.
func (s *SQLiteStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE loans SET title = ?, lender = ?, purpose = ?, notes = ?, installment_amount = ?, penalty_rate = ?,
		grace_period = ?, status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		loan.Title, loan.Lender, loan.Purpose, loan.Notes, loan.InstallmentAmount, loan.PenaltyRate,
		loan.GracePeriod, loan.Status, loan.UpdatedAt, loan.ID.String(), loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return staleOrMissing(ctx, s.db, loan.ID)
	}
	loan.Version++
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// staleOrMissing explains a version-checked write that matched no row.
func staleOrMissing(ctx context.Context, q rowQuerier, id uuid.UUID) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM loans WHERE id = ?`, id.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLoanNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check loan: %w", err)
	}
	return ErrStaleLoan
}

// DeleteLoan removes a loan and its payments within a transaction.
func (s *SQLiteStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// explicit, in case the database was opened without foreign keys
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated payments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans, oldest first.
func (s *SQLiteStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// GetLoansByStatus retrieves the loans with the given status.
func (s *SQLiteStore) GetLoansByStatus(ctx context.Context, status models.LoanStatus) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s loans: %w", status, err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// SavePayment stores the updated loan and the payment atomically.
func (s *SQLiteStore) SavePayment(ctx context.Context, loan *models.Loan, payment *models.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE loans SET remaining_balance = ?, status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		loan.RemainingBalance, loan.Status, loan.UpdatedAt, loan.ID.String(), loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return staleOrMissing(ctx, tx, loan.ID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.Amount, payment.TransactionFee, payment.PenaltyAmount,
		payment.TotalAmount, payment.Method, payment.PaymentDate, payment.PaymentTime, payment.IsPenalty,
		payment.IsLatePayment, payment.Status, payment.CreatedAt, payment.AccountName, payment.AccountNumber,
		payment.BankName, payment.MobileNumber, payment.MobileProvider,
	)
	if err != nil {
		return fmt.Errorf("failed to store payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	loan.Version++
	return nil
}

// GetPaymentsForLoan retrieves all payments for a given loan ID.
func (s *SQLiteStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY payment_date ASC, created_at ASC`,
		loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (*models.Loan, error) {
	var loan models.Loan
	var id string
	var created, updated time.Time
	err := row.Scan(&id, &loan.Title, &loan.Lender, &loan.Purpose, &loan.Notes, &loan.Principal,
		&loan.InterestRate, &loan.Term, &loan.StartDate, &loan.InstallmentFrequency, &loan.InstallmentAmount,
		&loan.PenaltyRate, &loan.GracePeriod, &loan.RemainingBalance, &loan.TotalAmount, &loan.Status,
		&loan.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	if loan.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", id, err)
	}
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	var id, loanID string
	err := row.Scan(&id, &loanID, &p.Amount, &p.TransactionFee, &p.PenaltyAmount, &p.TotalAmount,
		&p.Method, &p.PaymentDate, &p.PaymentTime, &p.IsPenalty, &p.IsLatePayment, &p.Status, &p.CreatedAt,
		&p.AccountName, &p.AccountNumber, &p.BankName, &p.MobileNumber, &p.MobileProvider)
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", id, err)
	}
	if p.LoanID, err = uuid.Parse(loanID); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", loanID, err)
	}
	return &p, nil
}
