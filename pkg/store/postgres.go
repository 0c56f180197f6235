package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/models"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	lender TEXT NOT NULL,
	purpose TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	principal NUMERIC NOT NULL,
	interest_rate NUMERIC NOT NULL,
	term INTEGER NOT NULL,
	start_date DATE NOT NULL,
	installment_frequency TEXT NOT NULL,
	installment_amount NUMERIC NOT NULL,
	penalty_rate NUMERIC NOT NULL DEFAULT 0,
	grace_period INTEGER NOT NULL DEFAULT 0,
	remaining_balance NUMERIC NOT NULL CHECK (remaining_balance >= 0),
	total_amount NUMERIC NOT NULL,
	status TEXT NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
	amount NUMERIC NOT NULL,
	transaction_fee NUMERIC NOT NULL DEFAULT 0,
	penalty_amount NUMERIC NOT NULL DEFAULT 0,
	total_amount NUMERIC NOT NULL,
	payment_method TEXT NOT NULL,
	payment_date DATE NOT NULL,
	payment_time TEXT NOT NULL DEFAULT '',
	is_penalty BOOLEAN NOT NULL DEFAULT FALSE,
	is_late_payment BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	account_name TEXT NOT NULL DEFAULT '',
	account_number TEXT NOT NULL DEFAULT '',
	bank_name TEXT NOT NULL DEFAULT '',
	mobile_number TEXT NOT NULL DEFAULT '',
	mobile_provider TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS payments_loan_id ON payments(loan_id);
`

// PostgresStore keeps loans and payments in PostgreSQL through a pgx pool.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

// NewPostgresStore connects to connString and initializes the schema.
func NewPostgresStore(ctx context.Context, connString string, log *zap.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("database connection established and schema initialized", zap.String("driver", "pgx"), zap.String("database", config.ConnConfig.Database))
	return &PostgresStore{db: pool, log: log}, nil
}

func (s *PostgresStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		loan.ID, loan.Title, loan.Lender, loan.Purpose, loan.Notes, loan.Principal, loan.InterestRate,
		loan.Term, loan.StartDate.Time(), string(loan.InstallmentFrequency), loan.InstallmentAmount, loan.PenaltyRate,
		loan.GracePeriod, loan.RemainingBalance, loan.TotalAmount, string(loan.Status), loan.Version,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanPgLoan(s.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (s *PostgresStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE loans SET title = $1, lender = $2, purpose = $3, notes = $4, installment_amount = $5, penalty_rate = $6,
		grace_period = $7, status = $8, version = version + 1, updated_at = $9 WHERE id = $10 AND version = $11`,
		loan.Title, loan.Lender, loan.Purpose, loan.Notes, loan.InstallmentAmount, loan.PenaltyRate,
		loan.GracePeriod, string(loan.Status), loan.UpdatedAt, loan.ID, loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgStaleOrMissing(ctx, s.db, loan.ID)
	}
	loan.Version++
	return nil
}

type pgRowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgStaleOrMissing(ctx context.Context, q pgRowQuerier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check loan: %w", err)
	}
	if !exists {
		return ErrLoanNotFound
	}
	return ErrStaleLoan
}

// DeleteLoan relies on ON DELETE CASCADE to remove the payments.
func (s *PostgresStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (s *PostgresStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	return collectPgLoans(rows)
}

func (s *PostgresStore) GetLoansByStatus(ctx context.Context, status models.LoanStatus) ([]*models.Loan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s loans: %w", status, err)
	}
	return collectPgLoans(rows)
}

func (s *PostgresStore) SavePayment(ctx context.Context, loan *models.Loan, payment *models.Payment) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE loans SET remaining_balance = $1, status = $2, version = version + 1, updated_at = $3 WHERE id = $4 AND version = $5`,
		loan.RemainingBalance, string(loan.Status), loan.UpdatedAt, loan.ID, loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgStaleOrMissing(ctx, tx, loan.ID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		payment.ID, payment.LoanID, payment.Amount, payment.TransactionFee, payment.PenaltyAmount,
		payment.TotalAmount, string(payment.Method), payment.PaymentDate.Time(), payment.PaymentTime, payment.IsPenalty,
		payment.IsLatePayment, string(payment.Status), payment.CreatedAt, payment.AccountName, payment.AccountNumber,
		payment.BankName, payment.MobileNumber, payment.MobileProvider,
	)
	if err != nil {
		return fmt.Errorf("failed to store payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	loan.Version++
	return nil
}

func (s *PostgresStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE loan_id = $1 ORDER BY payment_date ASC, created_at ASC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var method, status string
		var paidOn time.Time
		err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &p.TransactionFee, &p.PenaltyAmount, &p.TotalAmount,
			&method, &paidOn, &p.PaymentTime, &p.IsPenalty, &p.IsLatePayment, &status, &p.CreatedAt,
			&p.AccountName, &p.AccountNumber, &p.BankName, &p.MobileNumber, &p.MobileProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.Method = models.PaymentMethod(method)
		p.Status = models.PaymentStatus(status)
		p.PaymentDate = calendar.New(paidOn.UTC().Date())
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanPgLoan(row pgx.Row) (*models.Loan, error) {
	var loan models.Loan
	var freq, status string
	var start time.Time
	err := row.Scan(&loan.ID, &loan.Title, &loan.Lender, &loan.Purpose, &loan.Notes, &loan.Principal,
		&loan.InterestRate, &loan.Term, &start, &freq, &loan.InstallmentAmount,
		&loan.PenaltyRate, &loan.GracePeriod, &loan.RemainingBalance, &loan.TotalAmount, &status,
		&loan.Version, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.StartDate = calendar.New(start.UTC().Date())
	loan.InstallmentFrequency = models.InstallmentFrequency(freq)
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

func collectPgLoans(rows pgx.Rows) ([]*models.Loan, error) {
	defer rows.Close()
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanPgLoan(rows)
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
