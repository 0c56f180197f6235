package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/shopspring/decimal"
)

// DueDate returns the due date of the n-th installment (1-based). The first
// installment falls due one period after the start date. Monthly dates are
// always stepped from the start date and clamped to the end of shorter
// months, so a loan started on January 31st is due on February 28th, then
// March 31st.
func DueDate(loan models.Loan, n int) (calendar.Date, error) {
	if n < 1 {
		return calendar.Date{}, models.NewValidationError("installment", fmt.Sprintf("ordinal must be at least 1, got %d", n))
	}
	if loan.StartDate.IsZero() {
		return calendar.Date{}, models.NewValidationError("start_date", "is required")
	}
	switch loan.InstallmentFrequency {
	case models.FrequencyDaily:
		return loan.StartDate.AddDays(n), nil
	case models.FrequencyWeekly:
		return loan.StartDate.AddDays(7 * n), nil
	case models.FrequencyMonthly:
		return loan.StartDate.AddMonthsClamped(n), nil
	}
	return calendar.Date{}, models.NewValidationError("installment_frequency", "unknown installment frequency "+quote(string(loan.InstallmentFrequency)))
}

// installmentsPaid counts the completed regular installments of loan among
// payments, ignoring penalty entries and the payment identified by skip.
func installmentsPaid(loan models.Loan, payments []models.Payment, skip models.Payment) int {
	n := 0
	for _, p := range payments {
		if p.LoanID != loan.ID || p.Status != models.PaymentStatusCompleted || p.IsPenalty {
			continue
		}
		if skip.ID != uuid.Nil && p.ID == skip.ID {
			continue
		}
		n++
	}
	return n
}

// ClassifyLateness reports whether payment was made after the due date of
// the installment it settles plus the loan's grace period. The installment
// is the one following the completed regular installments found in prior.
// Neither the loan nor the payment is modified.
func ClassifyLateness(loan models.Loan, payment models.Payment, prior []models.Payment) (bool, error) {
	if payment.LoanID != loan.ID {
		return false, &MismatchedLoanError{LoanID: loan.ID, PaymentLoanID: payment.LoanID}
	}
	verr := &ValidationError{}
	if payment.PaymentDate.IsZero() {
		verr.Add("payment_date", "is required")
	}
	if loan.GracePeriod < 0 {
		verr.Add("grace_period", fmt.Sprintf("must not be negative, got %d", loan.GracePeriod))
	}
	if err := verr.OrNil(); err != nil {
		return false, err
	}

	due, err := DueDate(loan, installmentsPaid(loan, prior, payment)+1)
	if err != nil {
		return false, err
	}
	return payment.PaymentDate.After(due.AddDays(loan.GracePeriod)), nil
}

// NextDueDate returns the due date of the next unpaid installment. It
// reports false for loans that are already paid.
func NextDueDate(loan models.Loan, prior []models.Payment) (calendar.Date, bool, error) {
	if loan.Status == models.LoanStatusPaid {
		return calendar.Date{}, false, nil
	}
	due, err := DueDate(loan, installmentsPaid(loan, prior, models.Payment{})+1)
	if err != nil {
		return calendar.Date{}, false, err
	}
	return due, true, nil
}

// DueWithin reports whether the next installment of an active loan falls due
// between today and today plus days, both inclusive.
func DueWithin(loan models.Loan, prior []models.Payment, today calendar.Date, days int) (calendar.Date, bool, error) {
	if loan.Status != models.LoanStatusActive {
		return calendar.Date{}, false, nil
	}
	due, ok, err := NextDueDate(loan, prior)
	if err != nil || !ok {
		return calendar.Date{}, false, err
	}
	left := today.DaysUntil(due)
	return due, left >= 0 && left <= days, nil
}

// SuggestPenalty returns the penalty a late installment would attract:
// PenaltyRate percent of the installment amount. The ledger never charges it
// on its own; callers decide whether to put it on a payment.
func SuggestPenalty(loan models.Loan) decimal.Decimal {
	if loan.PenaltyRate.IsNegative() || loan.InstallmentAmount.IsNegative() {
		return decimal.Zero
	}
	return loan.InstallmentAmount.Mul(loan.PenaltyRate).Div(hundred)
}
