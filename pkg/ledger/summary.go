package ledger

import (
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/shopspring/decimal"
)

// Summary aggregates a set of loans for reporting.
type Summary struct {
	Loans          int                       `json:"loans"`
	Paid           int                       `json:"paid"`
	TotalPrincipal decimal.Decimal           `json:"total_principal"`
	TotalOwed      decimal.Decimal           `json:"total_owed"` // sum of total amounts, interest included
	Outstanding    decimal.Decimal           `json:"outstanding"`
	ByStatus       map[models.LoanStatus]int `json:"by_status"`
}

// Summarize returns the summary of loans. Outstanding is AggregateOutstanding.
func Summarize(loans []models.Loan) Summary {
	s := Summary{
		Loans:          len(loans),
		TotalPrincipal: decimal.Zero,
		TotalOwed:      decimal.Zero,
		Outstanding:    AggregateOutstanding(loans),
		ByStatus:       make(map[models.LoanStatus]int, len(models.LoanStatuses)),
	}
	for _, st := range models.LoanStatuses {
		s.ByStatus[st] = 0
	}
	for _, l := range loans {
		s.TotalPrincipal = s.TotalPrincipal.Add(l.Principal)
		s.TotalOwed = s.TotalOwed.Add(l.TotalAmount)
		s.ByStatus[l.Status]++
		if l.Status == models.LoanStatusPaid {
			s.Paid++
		}
	}
	return s
}
