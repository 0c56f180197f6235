package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/shopspring/decimal"
)

// Loan is a borrowing obligation tracked by the user.
type Loan struct {
	ID                   uuid.UUID            `json:"id"`
	Title                string               `json:"title"`
	Lender               string               `json:"lender"`
	Purpose              string               `json:"purpose,omitempty"`
	Notes                string               `json:"notes,omitempty"`
	Principal            decimal.Decimal      `json:"principal"`
	InterestRate         decimal.Decimal      `json:"interest_rate"` // percent, applied once to the principal
	Term                 int                  `json:"term"`          // number of installments, informational
	StartDate            calendar.Date        `json:"start_date"`
	InstallmentFrequency InstallmentFrequency `json:"installment_frequency"`
	InstallmentAmount    decimal.Decimal      `json:"installment_amount"`
	PenaltyRate          decimal.Decimal      `json:"penalty_rate"` // percent of an installment
	GracePeriod          int                  `json:"grace_period"` // days after a due date
	RemainingBalance     decimal.Decimal      `json:"remaining_balance"`
	TotalAmount          decimal.Decimal      `json:"total_amount"` // fixed at creation
	Status               LoanStatus           `json:"status"`
	Version              int64                `json:"version"` // bumped on every stored change
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Payment is one settlement recorded against a loan.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	Amount         decimal.Decimal `json:"amount"`          // reduces the balance
	TransactionFee decimal.Decimal `json:"transaction_fee"` // cash outflow only
	PenaltyAmount  decimal.Decimal `json:"penalty_amount"`  // cash outflow only
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Method         PaymentMethod   `json:"payment_method"`
	PaymentDate    calendar.Date   `json:"payment_date"`
	PaymentTime    string          `json:"payment_time"` // HH:MM
	IsPenalty      bool            `json:"is_penalty"`
	IsLatePayment  bool            `json:"is_late_payment"`
	Status         PaymentStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`

	// Optional details about where the money came from.
	AccountName    string `json:"account_name,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	BankName       string `json:"bank_name,omitempty"`
	MobileNumber   string `json:"mobile_number,omitempty"`
	MobileProvider string `json:"mobile_provider,omitempty"`
}

// CashOutflow returns the total cash moved by the payment: the amount plus
// fee and penalty.
func (p Payment) CashOutflow() decimal.Decimal {
	return p.Amount.Add(p.TransactionFee).Add(p.PenaltyAmount)
}
