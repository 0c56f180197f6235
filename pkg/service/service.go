// Package service connects the pure ledger computations to storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxSaveAttempts bounds the re-read and re-apply loop when the store
// reports that another writer changed the loan first.
const maxSaveAttempts = 3

// ErrLoanPaid is returned when a payment is recorded against a paid loan.
var ErrLoanPaid = errors.New("loan is already paid")

var paymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "loanledger_payments_recorded_total",
	Help: "Payments recorded against loans",
}, []string{"late", "loan_status"})

// LoanService handles loans and payments on top of a Storage.
type LoanService struct {
	storage store.Storage
	locks   *loanLocks
	log     *zap.Logger
	now     func() time.Time
}

// New creates a LoanService with a given Storage implementation.
func New(s store.Storage, log *zap.Logger) *LoanService {
	return &LoanService{
		storage: s,
		locks:   newLoanLocks(),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateLoan validates p and stores the new loan.
func (s *LoanService) CreateLoan(ctx context.Context, p ledger.LoanParams) (*models.Loan, error) {
	loan, err := ledger.NewLoan(p)
	if err != nil {
		return nil, err
	}
	if err := s.storage.CreateLoan(ctx, &loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	s.log.Info("loan created", zap.Stringer("loan_id", loan.ID), zap.Stringer("principal", loan.Principal), zap.Stringer("total_amount", loan.TotalAmount))
	return &loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *LoanService) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return s.storage.GetLoan(ctx, id)
}

// ListLoans returns every loan, or only those with status when it is set.
func (s *LoanService) ListLoans(ctx context.Context, status models.LoanStatus) ([]*models.Loan, error) {
	if status == "" {
		return s.storage.GetAllLoans(ctx)
	}
	return s.storage.GetLoansByStatus(ctx, status)
}

// UpdateLoan applies u to the stored loan. A write that loses to a
// concurrent change is retried from a fresh read.
func (s *LoanService) UpdateLoan(ctx context.Context, id uuid.UUID, u ledger.LoanUpdate) (*models.Loan, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		loan, err := s.updateLoan(ctx, id, u)
		if errors.Is(err, store.ErrStaleLoan) && attempt < maxSaveAttempts {
			s.log.Warn("loan changed while updating, retrying", zap.Stringer("loan_id", id), zap.Int("attempt", attempt))
			continue
		}
		return loan, err
	}
}

func (s *LoanService) updateLoan(ctx context.Context, id uuid.UUID, u ledger.LoanUpdate) (*models.Loan, error) {
	stored, err := s.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	loan, err := u.Apply(*stored)
	if err != nil {
		return nil, err
	}
	loan.UpdatedAt = s.now()
	if err := s.storage.UpdateLoan(ctx, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

// DeleteLoan deletes a loan and its payments.
func (s *LoanService) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.lock(id)
	defer unlock()
	if err := s.storage.DeleteLoan(ctx, id); err != nil {
		return err
	}
	s.log.Info("loan deleted", zap.Stringer("loan_id", id))
	return nil
}

// RecordPayment records a payment against a loan: it flags the payment as
// late when it misses the installment's grace window, applies it to the
// balance and saves both in one write. Payments for the same loan are
// applied one at a time.
func (s *LoanService) RecordPayment(ctx context.Context, loanID uuid.UUID, p ledger.PaymentParams) (*ledger.Result, error) {
	p.LoanID = loanID
	payment, err := ledger.NewPayment(p)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(loanID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		res, err := s.applyPayment(ctx, loanID, payment)
		if errors.Is(err, store.ErrStaleLoan) && attempt < maxSaveAttempts {
			s.log.Warn("loan changed while recording payment, retrying", zap.Stringer("loan_id", loanID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		paymentsRecorded.WithLabelValues(strconv.FormatBool(res.Payment.IsLatePayment), string(res.Loan.Status)).Inc()
		s.log.Info("payment recorded",
			zap.Stringer("loan_id", loanID),
			zap.Stringer("payment_id", res.Payment.ID),
			zap.Stringer("amount", res.Payment.Amount),
			zap.Bool("late", res.Payment.IsLatePayment),
			zap.Stringer("remaining_balance", res.Loan.RemainingBalance),
			zap.String("status", string(res.Loan.Status)))
		return res, nil
	}
}

func (s *LoanService) applyPayment(ctx context.Context, loanID uuid.UUID, payment models.Payment) (*ledger.Result, error) {
	loan, err := s.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == models.LoanStatusPaid {
		return nil, ErrLoanPaid
	}
	prior, err := s.storage.GetPaymentsForLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	late, err := ledger.ClassifyLateness(*loan, payment, values(prior))
	if err != nil {
		return nil, err
	}
	payment.IsLatePayment = late

	res, err := ledger.ApplyPayment(*loan, payment)
	if err != nil {
		return nil, err
	}
	res.Loan.UpdatedAt = s.now()
	if err := s.storage.SavePayment(ctx, &res.Loan, &res.Payment); err != nil {
		return nil, err
	}
	return &res, nil
}

// Payments lists the payments of a loan.
func (s *LoanService) Payments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := s.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.storage.GetPaymentsForLoan(ctx, loanID)
}

// Outstanding returns the remaining balance summed over all unpaid loans.
func (s *LoanService) Outstanding(ctx context.Context) (decimal.Decimal, error) {
	loans, err := s.storage.GetAllLoans(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.AggregateOutstanding(values(loans)), nil
}

// Summary aggregates every stored loan.
func (s *LoanService) Summary(ctx context.Context) (ledger.Summary, error) {
	loans, err := s.storage.GetAllLoans(ctx)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(values(loans)), nil
}

// DueInstallment describes the next installment of a loan.
type DueInstallment struct {
	LoanID            uuid.UUID       `json:"loan_id"`
	DueDate           calendar.Date   `json:"due_date"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	PenaltyIfLate     decimal.Decimal `json:"penalty_if_late"`
	GraceEndDate      calendar.Date   `json:"grace_period_end_date"`
}

// NextDue returns the next installment of a loan with the penalty it would
// attract when paid after the grace period. ok is false for paid loans.
func (s *LoanService) NextDue(ctx context.Context, loanID uuid.UUID) (due DueInstallment, ok bool, err error) {
	loan, err := s.storage.GetLoan(ctx, loanID)
	if err != nil {
		return DueInstallment{}, false, err
	}
	prior, err := s.storage.GetPaymentsForLoan(ctx, loanID)
	if err != nil {
		return DueInstallment{}, false, err
	}
	date, ok, err := ledger.NextDueDate(*loan, values(prior))
	if err != nil || !ok {
		return DueInstallment{}, false, err
	}
	return DueInstallment{
		LoanID:            loanID,
		DueDate:           date,
		InstallmentAmount: loan.InstallmentAmount,
		PenaltyIfLate:     ledger.SuggestPenalty(*loan),
		GraceEndDate:      date.AddDays(loan.GracePeriod),
	}, true, nil
}

// Reminder is an installment falling due soon.
type Reminder struct {
	LoanID    uuid.UUID       `json:"loan_id"`
	Title     string          `json:"title"`
	DueDate   calendar.Date   `json:"due_date"`
	DaysLeft  int             `json:"days_left"`
	Amount    decimal.Decimal `json:"amount"`
	Remaining decimal.Decimal `json:"remaining_balance"`
}

// UpcomingDues returns a reminder for every active loan whose next
// installment is due within days of today.
func (s *LoanService) UpcomingDues(ctx context.Context, today calendar.Date, days int) ([]Reminder, error) {
	loans, err := s.storage.GetLoansByStatus(ctx, models.LoanStatusActive)
	if err != nil {
		return nil, err
	}
	var reminders []Reminder
	for _, loan := range loans {
		prior, err := s.storage.GetPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		due, ok, err := ledger.DueWithin(*loan, values(prior), today, days)
		if err != nil {
			s.log.Warn("cannot compute due date", zap.Stringer("loan_id", loan.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		reminders = append(reminders, Reminder{
			LoanID:    loan.ID,
			Title:     loan.Title,
			DueDate:   due,
			DaysLeft:  today.DaysUntil(due),
			Amount:    loan.InstallmentAmount,
			Remaining: loan.RemainingBalance,
		})
	}
	return reminders, nil
}

func values[T any](ptrs []*T) []T {
	out := make([]T, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}
