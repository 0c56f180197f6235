package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/loanledger/pkg/calendar"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/logger"
	"github.com/mcclellann/loanledger/pkg/service"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// reminderInterval is how often the background sweep looks for installments
// falling due soon.
const reminderInterval = time.Hour

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loanledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loanledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Server holds the loan service and the HTTP helpers shared by handlers.
type Server struct {
	loans    *service.LoanService
	storage  store.Storage // Keep a reference to the storage to close it
	log      *zap.Logger
	currency string
	today    func() calendar.Date
}

func NewServer(s store.Storage, log *zap.Logger, currency string) *Server {
	return &Server{
		loans:    service.New(s, log),
		storage:  s,
		log:      log,
		currency: currency,
		today:    calendar.Today,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.instrument)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", s.healthHandler).Methods("GET")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/next-due", s.nextDueHandler).Methods("GET")
	router.HandleFunc("/reminders", s.remindersHandler).Methods("GET")
	router.HandleFunc("/summary", s.summaryHandler).Methods("GET")
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		timer := prometheus.NewTimer(httpLatency.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := timer.ObserveDuration()
		httpReqTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		s.log.Debug("request served",
			zap.String("method", r.Method),
			zap.String("endpoint", endpoint),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed))
	})
}

// remindDues logs every installment falling due within the reminder window
// until ctx is cancelled.
func (s *Server) remindDues(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		reminders, err := s.loans.UpcomingDues(ctx, s.today(), defaultReminderDays)
		if err != nil {
			s.log.Error("failed to look up upcoming dues", zap.Error(err))
		}
		for _, rm := range reminders {
			s.log.Info("installment due soon",
				zap.Stringer("loan_id", rm.LoanID),
				zap.String("title", rm.Title),
				zap.Stringer("due_date", rm.DueDate),
				zap.Int("days_left", rm.DaysLeft),
				zap.Stringer("amount", rm.Amount))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Storage, error) {
	switch cfg.DBDriver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DBSource, log)
	case "sqlite":
		return store.NewSQLiteStore(cfg.DBSource, log)
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New("loanledger", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", cfg.DBDriver, err)
	}
	defer storage.Close()

	server := NewServer(storage, log, cfg.Currency)
	go server.remindDues(ctx, reminderInterval)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("db_driver", cfg.DBDriver), zap.String("environment", cfg.Env))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
