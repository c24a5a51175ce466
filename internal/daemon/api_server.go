package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/queue"
	"slidecast/internal/services"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(srv.token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(srv.token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(srv.token, srv.handleJob))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
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
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
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

type submitRequest struct {
	ProjectDir string `json:"project_dir"`
	Name       string `json:"name"`
}

// jobView is the wire shape of one job.
type jobView struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ProjectDir      string   `json:"project_dir"`
	Status          string   `json:"status"`
	Phase           string   `json:"phase,omitempty"`
	ProgressPercent float64  `json:"progress_percent"`
	ProgressMessage string   `json:"progress_message,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	ScenesTotal     int      `json:"scenes_total"`
	ScenesCompleted int      `json:"scenes_completed"`
	ScenesFailed    int      `json:"scenes_failed"`
	Outputs         []string `json:"outputs,omitempty"`
	ReportPath      string   `json:"report_path,omitempty"`
	CreatedAt       string   `json:"created_at"`
	FinishedAt      string   `json:"finished_at,omitempty"`
}

func viewOf(job *queue.Job) jobView {
	view := jobView{
		ID:              job.ID,
		Name:            job.Name,
		ProjectDir:      job.ProjectDir,
		Status:          string(job.Status),
		Phase:           job.Phase,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		ErrorMessage:    job.ErrorMessage,
		ScenesTotal:     job.ScenesTotal,
		ScenesCompleted: job.ScenesCompleted,
		ScenesFailed:    job.ScenesFailed,
		Outputs:         job.Outputs,
		ReportPath:      job.ReportPath,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
	}
	if job.FinishedAt != nil {
		view.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return view
}

// handleJobs serves POST /api/jobs (submit) and GET /api/jobs (list).
func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		job, err := s.daemon.orchestrator.Submit(r.Context(), req.ProjectDir, req.Name)
		if err != nil {
			if errors.Is(err, services.ErrValidation) {
				s.writeError(w, http.StatusUnprocessableEntity, services.Message(err))
				return
			}
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, viewOf(job))
	case http.MethodGet:
		var statuses []queue.Status
		if filter := strings.TrimSpace(r.URL.Query().Get("status")); filter != "" {
			for _, raw := range strings.Split(filter, ",") {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
					return
				}
				statuses = append(statuses, status)
			}
		}
		jobs, err := s.daemon.orchestrator.List(r.Context(), statuses...)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views := make([]jobView, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, viewOf(job))
		}
		s.writeJSON(w, http.StatusOK, views)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJob serves GET /api/jobs/{id}, POST /api/jobs/{id}/cancel and
// GET /api/jobs/{id}/report.
func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job id required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		job, err := s.daemon.orchestrator.Status(r.Context(), id)
		if err != nil {
			s.writeLookupError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, viewOf(job))
	case action == "cancel" && r.Method == http.MethodPost:
		if err := s.daemon.orchestrator.Cancel(r.Context(), id); err != nil {
			s.writeLookupError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
	case action == "report" && r.Method == http.MethodGet:
		job, err := s.daemon.orchestrator.Status(r.Context(), id)
		if err != nil {
			s.writeLookupError(w, err)
			return
		}
		if job.ReportPath == "" {
			s.writeError(w, http.StatusNotFound, "no report available yet")
			return
		}
		data, err := os.ReadFile(job.ReportPath)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "report unreadable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, services.Message(err))
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
