package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/service"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Defaults applied to new loans that leave the penalty terms out.
var (
	defaultPenaltyRate = decimal.NewFromInt(2)
	defaultGracePeriod = 3
)

// defaultReminderDays is how far ahead /reminders looks when no days
// parameter is given.
const defaultReminderDays = 3

type createLoanRequest struct {
	Title                string                      `json:"title"`
	Lender               string                      `json:"lender"`
	Purpose              string                      `json:"purpose"`
	Notes                string                      `json:"notes"`
	Principal            decimal.Decimal             `json:"principal"`
	InterestRate         decimal.Decimal             `json:"interest_rate"`
	Term                 int                         `json:"term"`
	StartDate            calendar.Date               `json:"start_date"`
	InstallmentFrequency models.InstallmentFrequency `json:"installment_frequency"`
	InstallmentAmount    decimal.Decimal             `json:"installment_amount"`
	PenaltyRate          *decimal.Decimal            `json:"penalty_rate"`
	GracePeriod          *int                        `json:"grace_period"`
}

func (req createLoanRequest) params() ledger.LoanParams {
	p := ledger.LoanParams{
		Title:                req.Title,
		Lender:               req.Lender,
		Purpose:              req.Purpose,
		Notes:                req.Notes,
		Principal:            req.Principal,
		InterestRate:         req.InterestRate,
		Term:                 req.Term,
		StartDate:            req.StartDate,
		InstallmentFrequency: req.InstallmentFrequency,
		InstallmentAmount:    req.InstallmentAmount,
		PenaltyRate:          defaultPenaltyRate,
		GracePeriod:          defaultGracePeriod,
	}
	if req.PenaltyRate != nil {
		p.PenaltyRate = *req.PenaltyRate
	}
	if req.GracePeriod != nil {
		p.GracePeriod = *req.GracePeriod
	}
	return p
}

type updateLoanRequest struct {
	Title             *string            `json:"title"`
	Lender            *string            `json:"lender"`
	Purpose           *string            `json:"purpose"`
	Notes             *string            `json:"notes"`
	Status            *models.LoanStatus `json:"status"`
	InstallmentAmount *decimal.Decimal   `json:"installment_amount"`
	PenaltyRate       *decimal.Decimal   `json:"penalty_rate"`
	GracePeriod       *int               `json:"grace_period"`
}

type paymentRequest struct {
	Amount         decimal.Decimal      `json:"amount"`
	TransactionFee decimal.Decimal      `json:"transaction_fee"`
	PenaltyAmount  decimal.Decimal      `json:"penalty_amount"`
	Method         models.PaymentMethod `json:"payment_method"`
	PaymentDate    calendar.Date        `json:"payment_date"`
	PaymentTime    string               `json:"payment_time"`
	IsPenalty      bool                 `json:"is_penalty"`
	Status         models.PaymentStatus `json:"status"`
	AccountName    string               `json:"account_name"`
	AccountNumber  string               `json:"account_number"`
	BankName       string               `json:"bank_name"`
	MobileNumber   string               `json:"mobile_number"`
	MobileProvider string               `json:"mobile_provider"`
}

type summaryResponse struct {
	ledger.Summary
	Currency string            `json:"currency"`
	Display  map[string]string `json:"display"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !s.decode(w, r, &req) {
		return
	}

	loan, err := s.loans.CreateLoan(r.Context(), req.params())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	loan, err := s.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	var status models.LoanStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := models.ParseLoanStatus(v)
		if err != nil {
			s.respondError(w, err)
			return
		}
		status = st
	}

	loans, err := s.loans.ListLoans(r.Context(), status)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	s.respondJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	var req updateLoanRequest
	if !s.decode(w, r, &req) {
		return
	}

	loan, err := s.loans.UpdateLoan(r.Context(), loanID, ledger.LoanUpdate(req))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	if err := s.loans.DeleteLoan(r.Context(), loanID); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = s.today()
	}

	res, err := s.loans.RecordPayment(r.Context(), loanID, ledger.PaymentParams{
		Amount:         req.Amount,
		TransactionFee: req.TransactionFee,
		PenaltyAmount:  req.PenaltyAmount,
		Method:         req.Method,
		PaymentDate:    req.PaymentDate,
		PaymentTime:    req.PaymentTime,
		IsPenalty:      req.IsPenalty,
		Status:         req.Status,
		AccountName:    req.AccountName,
		AccountNumber:  req.AccountNumber,
		BankName:       req.BankName,
		MobileNumber:   req.MobileNumber,
		MobileProvider: req.MobileProvider,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	payments, err := s.loans.Payments(r.Context(), loanID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	s.respondJSON(w, http.StatusOK, payments)
}

func (s *Server) nextDueHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	due, ok, err := s.loans.NextDue(r.Context(), loanID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !ok {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "loan has no installment due"})
		return
	}
	s.respondJSON(w, http.StatusOK, due)
}

func (s *Server) remindersHandler(w http.ResponseWriter, r *http.Request) {
	days := defaultReminderDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, models.NewValidationError("days", "must be a non-negative integer"))
			return
		}
		days = n
	}

	reminders, err := s.loans.UpcomingDues(r.Context(), s.today(), days)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if reminders == nil {
		reminders = []service.Reminder{}
	}
	s.respondJSON(w, http.StatusOK, reminders)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	sum, err := s.loans.Summary(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summaryResponse{
		Summary:  sum,
		Currency: s.currency,
		Display: map[string]string{
			"total_principal": displayAmount(sum.TotalPrincipal, s.currency),
			"total_owed":      displayAmount(sum.TotalOwed, s.currency),
			"outstanding":     displayAmount(sum.Outstanding, s.currency),
		},
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// displayAmount formats amount in the minor units of currency, rounding to
// the nearest unit, e.g. "$1,234.50".
func displayAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), currency).Display()
}

// Helpers

func (s *Server) loanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid loan ID"})
		return uuid.Nil, false
	}
	return id, true
}

// decode reads the JSON body into v. Enum and date fields with unknown
// values are reported as validation failures.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.respondError(w, verr)
			return false
		}
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

// respondError maps err to a status code and writes it as {"error": ...}.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var (
		verr     *models.ValidationError
		mismatch *models.MismatchedLoanError
	)
	switch {
	case errors.As(err, &verr):
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": verr.Error(), "fields": verr.Fields})
	case errors.As(err, &mismatch):
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": mismatch.Error()})
	case errors.Is(err, store.ErrLoanNotFound):
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Loan not found"})
	case errors.Is(err, store.ErrStaleLoan), errors.Is(err, service.ErrLoanPaid):
		s.respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
