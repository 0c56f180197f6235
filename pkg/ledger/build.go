package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	maxAmount       = decimal.NewFromInt(1_000_000_000)
	maxInterestRate = decimal.NewFromInt(100)
)

// LoanParams holds the user supplied fields of a new loan.
type LoanParams struct {
	Title                string
	Lender               string
	Purpose              string
	Notes                string
	Principal            decimal.Decimal
	InterestRate         decimal.Decimal
	Term                 int
	StartDate            calendar.Date
	InstallmentFrequency models.InstallmentFrequency // defaults to monthly
	InstallmentAmount    decimal.Decimal
	PenaltyRate          decimal.Decimal
	GracePeriod          int
}

// Validate checks the parameters and returns a *ValidationError listing
// every rejected field.
func (p LoanParams) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(p.Title) == "" {
		verr.Add("title", "is required")
	}
	if strings.TrimSpace(p.Lender) == "" {
		verr.Add("lender", "is required")
	}
	checkAmount(verr, "principal", p.Principal)
	checkAmount(verr, "installment_amount", p.InstallmentAmount)
	checkRate(verr, "interest_rate", p.InterestRate)
	checkRate(verr, "penalty_rate", p.PenaltyRate)
	if p.Term <= 0 {
		verr.Add("term", "must be a positive number")
	}
	if p.GracePeriod < 0 {
		verr.Add("grace_period", "must not be negative")
	}
	if p.StartDate.IsZero() {
		verr.Add("start_date", "is required")
	}
	if p.InstallmentFrequency != "" && !p.InstallmentFrequency.Valid() {
		verr.Add("installment_frequency", "unknown installment frequency "+quote(string(p.InstallmentFrequency)))
	}
	return verr.OrNil()
}

// NewLoan validates p and returns a new active loan whose remaining balance
// is the full principal and whose total amount carries the simple interest.
// A zero principal loan starts out paid.
func NewLoan(p LoanParams) (models.Loan, error) {
	if err := p.Validate(); err != nil {
		return models.Loan{}, err
	}
	total, err := DeriveTotalAmount(p.Principal, p.InterestRate)
	if err != nil {
		return models.Loan{}, err
	}
	freq := p.InstallmentFrequency
	if freq == "" {
		freq = models.FrequencyMonthly
	}
	status := models.LoanStatusActive
	if p.Principal.Sign() <= 0 {
		status = models.LoanStatusPaid
	}
	now := time.Now().UTC()
	return models.Loan{
		ID:                   uuid.New(),
		Title:                strings.TrimSpace(p.Title),
		Lender:               strings.TrimSpace(p.Lender),
		Purpose:              p.Purpose,
		Notes:                p.Notes,
		Principal:            p.Principal,
		InterestRate:         p.InterestRate,
		Term:                 p.Term,
		StartDate:            p.StartDate,
		InstallmentFrequency: freq,
		InstallmentAmount:    p.InstallmentAmount,
		PenaltyRate:          p.PenaltyRate,
		GracePeriod:          p.GracePeriod,
		RemainingBalance:     p.Principal,
		TotalAmount:          total,
		Status:               status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// LoanUpdate lists the loan fields a user may change after creation. Nil
// fields are left as they are. Balances and the amounts fixed at creation
// can only change through ApplyPayment.
type LoanUpdate struct {
	Title             *string
	Lender            *string
	Purpose           *string
	Notes             *string
	Status            *models.LoanStatus
	InstallmentAmount *decimal.Decimal
	PenaltyRate       *decimal.Decimal
	GracePeriod       *int
}

// Apply returns loan with u applied. Fields are checked with the same rules
// as LoanParams, and the result must keep a zero balance loan paid and a
// loan with a balance unpaid.
func (u LoanUpdate) Apply(loan models.Loan) (models.Loan, error) {
	verr := &ValidationError{}
	if u.Title != nil {
		loan.Title = strings.TrimSpace(*u.Title)
		if loan.Title == "" {
			verr.Add("title", "is required")
		}
	}
	if u.Lender != nil {
		loan.Lender = strings.TrimSpace(*u.Lender)
		if loan.Lender == "" {
			verr.Add("lender", "is required")
		}
	}
	if u.Purpose != nil {
		loan.Purpose = *u.Purpose
	}
	if u.Notes != nil {
		loan.Notes = *u.Notes
	}
	if u.InstallmentAmount != nil {
		checkAmount(verr, "installment_amount", *u.InstallmentAmount)
		loan.InstallmentAmount = *u.InstallmentAmount
	}
	if u.PenaltyRate != nil {
		checkRate(verr, "penalty_rate", *u.PenaltyRate)
		loan.PenaltyRate = *u.PenaltyRate
	}
	if u.GracePeriod != nil {
		if *u.GracePeriod < 0 {
			verr.Add("grace_period", "must not be negative")
		}
		loan.GracePeriod = *u.GracePeriod
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			verr.Add("status", "unknown loan status "+quote(string(*u.Status)))
		}
		loan.Status = *u.Status
	}
	switch {
	case loan.RemainingBalance.Sign() <= 0 && loan.Status != models.LoanStatusPaid:
		verr.Add("status", "a loan with no remaining balance must stay paid")
	case loan.RemainingBalance.Sign() > 0 && loan.Status == models.LoanStatusPaid:
		verr.Add("status", "a loan with a remaining balance cannot be marked paid")
	}
	if err := verr.OrNil(); err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

// PaymentParams holds the user supplied fields of a new payment.
type PaymentParams struct {
	LoanID         uuid.UUID
	Amount         decimal.Decimal
	TransactionFee decimal.Decimal
	PenaltyAmount  decimal.Decimal
	Method         models.PaymentMethod // defaults to cash
	PaymentDate    calendar.Date
	PaymentTime    string // HH:MM, optional
	IsPenalty      bool
	Status         models.PaymentStatus // defaults to completed

	AccountName    string
	AccountNumber  string
	BankName       string
	MobileNumber   string
	MobileProvider string
}

// Validate checks the parameters and returns a *ValidationError listing
// every rejected field.
func (p PaymentParams) Validate() error {
	verr := &ValidationError{}
	if p.LoanID == uuid.Nil {
		verr.Add("loan_id", "is required")
	}
	checkAmount(verr, "amount", p.Amount)
	checkAmount(verr, "transaction_fee", p.TransactionFee)
	checkAmount(verr, "penalty_amount", p.PenaltyAmount)
	if p.PaymentDate.IsZero() {
		verr.Add("payment_date", "is required")
	}
	if p.PaymentTime != "" {
		if _, err := time.Parse("15:04", p.PaymentTime); err != nil {
			verr.Add("payment_time", fmt.Sprintf("invalid time %q want format HH:MM", p.PaymentTime))
		}
	}
	if p.Method != "" && !p.Method.Valid() {
		verr.Add("payment_method", "unknown payment method "+quote(string(p.Method)))
	}
	if p.Status != "" && !p.Status.Valid() {
		verr.Add("status", "unknown payment status "+quote(string(p.Status)))
	}
	return verr.OrNil()
}

// NewPayment validates p and returns a payment whose total amount is the
// amount plus fee plus penalty. IsLatePayment is left false: it is set by
// the caller from ClassifyLateness.
func NewPayment(p PaymentParams) (models.Payment, error) {
	if err := p.Validate(); err != nil {
		return models.Payment{}, err
	}
	method := p.Method
	if method == "" {
		method = models.PaymentMethodCash
	}
	status := p.Status
	if status == "" {
		status = models.PaymentStatusCompleted
	}
	payment := models.Payment{
		ID:             uuid.New(),
		LoanID:         p.LoanID,
		Amount:         p.Amount,
		TransactionFee: p.TransactionFee,
		PenaltyAmount:  p.PenaltyAmount,
		Method:         method,
		PaymentDate:    p.PaymentDate,
		PaymentTime:    p.PaymentTime,
		IsPenalty:      p.IsPenalty,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
		AccountName:    p.AccountName,
		AccountNumber:  p.AccountNumber,
		BankName:       p.BankName,
		MobileNumber:   p.MobileNumber,
		MobileProvider: p.MobileProvider,
	}
	payment.TotalAmount = payment.CashOutflow()
	return payment, nil
}

func checkAmount(verr *ValidationError, field string, v decimal.Decimal) {
	switch {
	case v.IsNegative():
		verr.Add(field, "cannot be negative")
	case v.GreaterThan(maxAmount):
		verr.Add(field, "is too large")
	}
}

func checkRate(verr *ValidationError, field string, v decimal.Decimal) {
	switch {
	case v.IsNegative():
		verr.Add(field, "cannot be negative")
	case v.GreaterThan(maxInterestRate):
		verr.Add(field, "cannot exceed 100%")
	}
}
