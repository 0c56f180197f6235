package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

var (
	ErrLoanNotFound = errors.New("loan not found")
	// ErrStaleLoan is returned when a loan changed since the snapshot being
	// saved was read.
	ErrStaleLoan = errors.New("loan was modified concurrently")
)

// Storage defines the persistence operations for loans and their payments.
type Storage interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	// UpdateLoan writes the user editable fields of loan (descriptive
	// fields, installment and penalty terms, status) under the same version
	// check as SavePayment. Balances, principal and interest are left as
	// stored. On success loan.Version is incremented.
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	// DeleteLoan removes the loan together with all of its payments.
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	GetAllLoans(ctx context.Context) ([]*models.Loan, error)
	GetLoansByStatus(ctx context.Context, status models.LoanStatus) ([]*models.Loan, error)

	// SavePayment writes the updated loan and the payment record in a single
	// transaction. The write only succeeds if the stored loan still has
	// loan.Version, otherwise ErrStaleLoan is returned. On success
	// loan.Version is incremented.
	SavePayment(ctx context.Context, loan *models.Loan, payment *models.Payment) error
	// GetPaymentsForLoan returns the payments of a loan by payment date,
	// then creation time.
	GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)

	Close() error
}
