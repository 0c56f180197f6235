// Package ledger computes the financial effect of payments on loans.
//
// Every function in this package is pure: it takes loan and payment values,
// returns new values and never performs I/O or keeps state. Callers own
// persistence and must serialize ApplyPayment per loan so that it always
// sees the latest loan snapshot.
package ledger

import (
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/shopspring/decimal"
)

type (
	ValidationError     = models.ValidationError
	MismatchedLoanError = models.MismatchedLoanError
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of applying a payment: the updated loan snapshot and
// the payment entry to record alongside it.
type Result struct {
	Loan    models.Loan    `json:"loan"`
	Payment models.Payment `json:"payment"`
}

// DeriveTotalAmount returns principal plus simple interest applied once:
// principal + principal*interestRate/100.
func DeriveTotalAmount(principal, interestRate decimal.Decimal) (decimal.Decimal, error) {
	verr := &ValidationError{}
	nonNegative(verr, "principal", principal)
	nonNegative(verr, "interest_rate", interestRate)
	if err := verr.OrNil(); err != nil {
		return decimal.Zero, err
	}
	return principal.Add(principal.Mul(interestRate).Div(hundred)), nil
}

// ApplyPayment applies payment to loan and returns the updated loan.
//
// The balance is reduced by the payment amount and floored at zero. Reaching
// zero moves the loan to paid; any other status is kept, so a paid loan stays
// paid. Fees and penalties are part of the cash outflow only and never touch
// the balance. Payments that are not completed are returned with the loan
// unchanged.
func ApplyPayment(loan models.Loan, payment models.Payment) (Result, error) {
	if payment.LoanID != loan.ID {
		return Result{}, &MismatchedLoanError{LoanID: loan.ID, PaymentLoanID: payment.LoanID}
	}

	verr := &ValidationError{}
	nonNegative(verr, "amount", payment.Amount)
	nonNegative(verr, "transaction_fee", payment.TransactionFee)
	nonNegative(verr, "penalty_amount", payment.PenaltyAmount)
	nonNegative(verr, "remaining_balance", loan.RemainingBalance)
	if !payment.Status.Valid() {
		verr.Add("status", "unknown payment status "+quote(string(payment.Status)))
	}
	if !loan.Status.Valid() {
		verr.Add("loan.status", "unknown loan status "+quote(string(loan.Status)))
	}
	if err := verr.OrNil(); err != nil {
		return Result{}, err
	}

	if payment.Status != models.PaymentStatusCompleted {
		return Result{Loan: loan, Payment: payment}, nil
	}

	balance := loan.RemainingBalance.Sub(payment.Amount)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	loan.RemainingBalance = balance
	if balance.Sign() <= 0 {
		loan.Status = models.LoanStatusPaid
	}
	return Result{Loan: loan, Payment: payment}, nil
}

// AggregateOutstanding sums the remaining balance of every loan that is not
// paid. Active, overdue and defaulted loans all count.
func AggregateOutstanding(loans []models.Loan) decimal.Decimal {
	total := decimal.Zero
	for _, l := range loans {
		if l.Status == models.LoanStatusPaid {
			continue
		}
		total = total.Add(l.RemainingBalance)
	}
	return total
}

func nonNegative(verr *ValidationError, field string, v decimal.Decimal) {
	if v.IsNegative() {
		verr.Add(field, "must not be negative, got "+v.String())
	}
}

func quote(s string) string { return `"` + s + `"` }
