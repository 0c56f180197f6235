package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test_store.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLoan() *models.Loan {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Loan{
		ID:                   uuid.New(),
		Title:                "School fees",
		Lender:               "Equity",
		Principal:            decimal.RequireFromString("2000.50"),
		InterestRate:         decimal.NewFromInt(5),
		Term:                 6,
		StartDate:            calendar.MustParse("2025-01-31"),
		InstallmentFrequency: models.FrequencyMonthly,
		InstallmentAmount:    decimal.NewFromInt(350),
		PenaltyRate:          decimal.NewFromInt(2),
		GracePeriod:          3,
		RemainingBalance:     decimal.RequireFromString("2000.50"),
		TotalAmount:          decimal.RequireFromString("2100.525"),
		Status:               models.LoanStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func newTestPayment(loan *models.Loan, amount int64, on string) *models.Payment {
	return &models.Payment{
		ID:             uuid.New(),
		LoanID:         loan.ID,
		Amount:         decimal.NewFromInt(amount),
		TransactionFee: decimal.NewFromInt(1),
		PenaltyAmount:  decimal.Zero,
		TotalAmount:    decimal.NewFromInt(amount + 1),
		Method:         models.PaymentMethodMobile,
		PaymentDate:    calendar.MustParse(on),
		PaymentTime:    "10:15",
		Status:         models.PaymentStatusCompleted,
		CreatedAt:      time.Now().UTC(),
		MobileNumber:   "+254-700-000-000",
		MobileProvider: "M-Pesa",
	}
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()

	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.Title != loan.Title || fetched.Lender != loan.Lender {
		t.Errorf("Expected %s/%s, got %s/%s", loan.Title, loan.Lender, fetched.Title, fetched.Lender)
	}
	if !fetched.Principal.Equal(loan.Principal) {
		t.Errorf("Expected Principal %s, got %s", loan.Principal, fetched.Principal)
	}
	if !fetched.TotalAmount.Equal(loan.TotalAmount) {
		t.Errorf("Expected TotalAmount %s, got %s", loan.TotalAmount, fetched.TotalAmount)
	}
	if !fetched.StartDate.Equal(loan.StartDate) {
		t.Errorf("Expected StartDate %s, got %s", loan.StartDate, fetched.StartDate)
	}
	if fetched.InstallmentFrequency != models.FrequencyMonthly || fetched.Status != models.LoanStatusActive {
		t.Errorf("Unexpected frequency/status %s/%s", fetched.InstallmentFrequency, fetched.Status)
	}
	if fetched.GracePeriod != 3 {
		t.Errorf("Expected GracePeriod 3, got %d", fetched.GracePeriod)
	}
}

func TestSQLiteStore_GetMissingLoan(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetLoan(context.Background(), uuid.New()); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestSQLiteStore_SavePayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	later := newTestPayment(loan, 300, "2025-03-30")
	loan.RemainingBalance = decimal.RequireFromString("1700.50")
	if err := s.SavePayment(ctx, loan, later); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}
	if loan.Version != 1 {
		t.Errorf("Expected version 1, got %d", loan.Version)
	}

	earlier := newTestPayment(loan, 200, "2025-02-27")
	earlier.IsLatePayment = true
	loan.RemainingBalance = decimal.RequireFromString("1500.50")
	if err := s.SavePayment(ctx, loan, earlier); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if !fetched.RemainingBalance.Equal(decimal.RequireFromString("1500.50")) {
		t.Errorf("Expected balance 1500.50, got %s", fetched.RemainingBalance)
	}
	if fetched.Version != 2 {
		t.Errorf("Expected version 2, got %d", fetched.Version)
	}

	payments, err := s.GetPaymentsForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(payments))
	}
	if payments[0].ID != earlier.ID {
		t.Errorf("Expected payments ordered by payment date")
	}
	if !payments[0].IsLatePayment || payments[0].Method != models.PaymentMethodMobile || payments[0].MobileProvider != "M-Pesa" {
		t.Errorf("Payment fields were not persisted: %+v", payments[0])
	}
	if !payments[1].TotalAmount.Equal(decimal.NewFromInt(301)) {
		t.Errorf("Expected total 301, got %s", payments[1].TotalAmount)
	}
}

func TestSQLiteStore_SavePaymentStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	stale := *loan
	if err := s.SavePayment(ctx, loan, newTestPayment(loan, 100, "2025-02-01")); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}
	if err := s.SavePayment(ctx, &stale, newTestPayment(&stale, 100, "2025-02-02")); !errors.Is(err, ErrStaleLoan) {
		t.Errorf("Expected ErrStaleLoan, got %v", err)
	}

	payments, _ := s.GetPaymentsForLoan(ctx, loan.ID)
	if len(payments) != 1 {
		t.Errorf("Expected the stale payment not to be stored, got %d payments", len(payments))
	}

	missing := newTestLoan()
	if err := s.SavePayment(ctx, missing, newTestPayment(missing, 1, "2025-02-02")); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestSQLiteStore_DeleteLoanCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	if err := s.SavePayment(ctx, loan, newTestPayment(loan, 100, "2025-02-01")); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}

	if err := s.DeleteLoan(ctx, loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	payments, err := s.GetPaymentsForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get payments: %v", err)
	}
	if len(payments) != 0 {
		t.Errorf("Expected payments to be deleted with the loan, got %d", len(payments))
	}
	if err := s.DeleteLoan(ctx, loan.ID); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestSQLiteStore_LoansByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := newTestLoan()
	paid := newTestLoan()
	paid.Status = models.LoanStatusPaid
	paid.RemainingBalance = decimal.Zero
	for _, l := range []*models.Loan{active, paid} {
		if err := s.CreateLoan(ctx, l); err != nil {
			t.Fatalf("Failed to create loan: %v", err)
		}
	}

	all, err := s.GetAllLoans(ctx)
	if err != nil {
		t.Fatalf("Failed to get loans: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 loans, got %d", len(all))
	}

	paidLoans, err := s.GetLoansByStatus(ctx, models.LoanStatusPaid)
	if err != nil {
		t.Fatalf("Failed to get paid loans: %v", err)
	}
	if len(paidLoans) != 1 || paidLoans[0].ID != paid.ID {
		t.Errorf("Expected only the paid loan, got %v", paidLoans)
	}
}

func TestSQLiteStore_UpdateLoan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	loan.Status = models.LoanStatusOverdue
	loan.Notes = "called the lender"
	if err := s.UpdateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to update loan: %v", err)
	}
	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.Status != models.LoanStatusOverdue || fetched.Notes != "called the lender" {
		t.Errorf("Update not persisted: %s %q", fetched.Status, fetched.Notes)
	}
	if fetched.Version != loan.Version {
		t.Errorf("Expected version %d, got %d", loan.Version, fetched.Version)
	}

	if err := s.UpdateLoan(ctx, newTestLoan()); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpdateLoanStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	editor, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	payer, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	payer.RemainingBalance = decimal.RequireFromString("500.50")
	if err := s.SavePayment(ctx, payer, newTestPayment(payer, 1500, "2025-02-27")); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}

	editor.Status = models.LoanStatusOverdue
	if err := s.UpdateLoan(ctx, editor); !errors.Is(err, ErrStaleLoan) {
		t.Errorf("Expected ErrStaleLoan, got %v", err)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if !fetched.RemainingBalance.Equal(decimal.RequireFromString("500.50")) {
		t.Errorf("Expected balance 500.50 to survive the stale update, got %s", fetched.RemainingBalance)
	}
	if fetched.Status != models.LoanStatusActive || fetched.Version != 1 {
		t.Errorf("Expected active loan at version 1, got %s at %d", fetched.Status, fetched.Version)
	}
}

func TestSQLiteStore_UpdateLoanKeepsBalances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loan := newTestLoan()
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	loan.RemainingBalance = decimal.NewFromInt(1)
	loan.Principal = decimal.NewFromInt(1)
	loan.TotalAmount = decimal.NewFromInt(1)
	loan.InterestRate = decimal.Zero
	loan.GracePeriod = 5
	if err := s.UpdateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to update loan: %v", err)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.GracePeriod != 5 {
		t.Errorf("Expected GracePeriod 5, got %d", fetched.GracePeriod)
	}
	if !fetched.RemainingBalance.Equal(decimal.RequireFromString("2000.50")) ||
		!fetched.Principal.Equal(decimal.RequireFromString("2000.50")) ||
		!fetched.TotalAmount.Equal(decimal.RequireFromString("2100.525")) ||
		!fetched.InterestRate.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected ledger owned amounts to be left as stored, got %s %s %s %s",
			fetched.RemainingBalance, fetched.Principal, fetched.TotalAmount, fetched.InterestRate)
	}
}
