package models

import (
	"encoding/json"
	"fmt"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusPaid      LoanStatus = "paid"
	LoanStatusDefaulted LoanStatus = "defaulted"
	LoanStatusOverdue   LoanStatus = "overdue"
)

// LoanStatuses lists every loan status in display order.
var LoanStatuses = []LoanStatus{LoanStatusActive, LoanStatusOverdue, LoanStatusDefaulted, LoanStatusPaid}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusPaid, LoanStatusDefaulted, LoanStatusOverdue:
		return true
	}
	return false
}

// ParseLoanStatus returns the status named by s.
func ParseLoanStatus(s string) (LoanStatus, error) {
	st := LoanStatus(s)
	if !st.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown loan status %q", s))
	}
	return st, nil
}

func (s *LoanStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, ParseLoanStatus)
}

// InstallmentFrequency is the cadence at which installments fall due.
type InstallmentFrequency string

const (
	FrequencyDaily   InstallmentFrequency = "daily"
	FrequencyWeekly  InstallmentFrequency = "weekly"
	FrequencyMonthly InstallmentFrequency = "monthly"
)

func (f InstallmentFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// ParseInstallmentFrequency returns the frequency named by s.
func ParseInstallmentFrequency(s string) (InstallmentFrequency, error) {
	f := InstallmentFrequency(s)
	if !f.Valid() {
		return "", NewValidationError("installment_frequency", fmt.Sprintf("unknown installment frequency %q", s))
	}
	return f, nil
}

func (f *InstallmentFrequency) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, f, ParseInstallmentFrequency)
}

// PaymentMethod is how a payment was made.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodMobile PaymentMethod = "mobile"
	PaymentMethodBank   PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodMobile, PaymentMethodBank:
		return true
	}
	return false
}

// ParsePaymentMethod returns the method named by s.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if !m.Valid() {
		return "", NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", s))
	}
	return m, nil
}

func (m *PaymentMethod) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, m, ParsePaymentMethod)
}

// PaymentStatus is the settlement state of a payment. Only completed
// payments reduce a loan balance.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusPending, PaymentStatusFailed:
		return true
	}
	return false
}

// ParsePaymentStatus returns the payment status named by s.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if !st.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown payment status %q", s))
	}
	return st, nil
}

func (s *PaymentStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, ParsePaymentStatus)
}

// unmarshalEnum decodes a JSON string through parse. An empty string leaves
// the zero value so that defaults can be applied later.
func unmarshalEnum[T ~string](b []byte, dst *T, parse func(string) (T, error)) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	if str == "" {
		*dst = ""
		return nil
	}
	v, err := parse(str)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
