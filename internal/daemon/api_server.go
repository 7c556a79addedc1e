package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"viralforge/internal/budget"
	"viralforge/internal/config"
	"viralforge/internal/logging"
	"viralforge/internal/production"
	"viralforge/internal/report"
	"viralforge/internal/store"
)

const defaultJobLimit = 50

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// BudgetResponse is the /api/budget payload.
type BudgetResponse struct {
	Day   budget.Status `json:"day"`
	Month budget.Status `json:"month"`
}

// JobListResponse is the /api/jobs payload.
type JobListResponse struct {
	Jobs []production.Job `json:"jobs"`
}

// JobResponse is the /api/jobs/{id} payload.
type JobResponse struct {
	Job production.Job `json:"job"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("/api/budget", authMiddleware(token, s.handleBudget))
	mux.HandleFunc("/api/jobs", authMiddleware(token, s.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, s.handleJob))
	mux.HandleFunc("/api/report", authMiddleware(token, s.handleReport))
	if m := s.daemon.metrics; m != nil {
		mux.HandleFunc("/metrics", authMiddleware(token, m.Handler().ServeHTTP))
	}
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleBudget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ledger := s.daemon.ledger
	query := r.URL.Query()
	day := strings.TrimSpace(query.Get("day"))
	if day == "" {
		day = ledger.Today()
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		s.writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	month := strings.TrimSpace(query.Get("month"))
	if month == "" {
		month = day[:7]
	}

	dayStatus, err := ledger.Status(r.Context(), day)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	monthStatus, err := ledger.MonthStatus(r.Context(), month)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, BudgetResponse{Day: dayStatus, Month: monthStatus})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	filter := store.JobFilter{Limit: defaultJobLimit}
	for _, value := range query["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			filter.Statuses = append(filter.Statuses, production.Status(trimmed))
		}
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.ParseUint(value, 10, 64)
		if err != nil || limit == 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if value := strings.TrimSpace(query.Get("strategy")); value != "" {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid strategy id")
			return
		}
		filter.StrategyID = id
	}

	jobs, err := s.daemon.store.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []production.Job{}
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.daemon.store.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: *job})
}

func (s *apiServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ledger := s.daemon.ledger
	day := strings.TrimSpace(r.URL.Query().Get("day"))
	if day == "" {
		day = ledger.Today()
	}
	daily, err := report.Build(r.Context(), s.daemon.store, ledger, day, time.Local)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "json":
		s.writeJSON(w, http.StatusOK, daily)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(daily.Markdown()))
	case "", "html":
		html, err := daily.HTML()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	default:
		s.writeError(w, http.StatusBadRequest, "format must be html, md or json")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
