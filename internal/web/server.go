package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ssuji15/docbuilder/model"
)

// QueueReader is the read side of the build queue.
type QueueReader interface {
	CountEligible(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]model.QueueEntry, error)
}

type QueueStatus struct {
	Eligible int64              `json:"eligible"`
	Entries  []model.QueueEntry `json:"entries"`
}

// Server exposes the builder status: liveness, queue contents and metrics.
type Server struct {
	router  chi.Router
	queue   QueueReader
	metrics http.Handler
}

// NewServer builds the status router. metrics may be nil, in which case
// /metrics is not mounted.
func NewServer(q QueueReader, metrics http.Handler) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		queue:   q,
		metrics: metrics,
	}

	s.routes()
	return s
}

func (s *Server) Router() http.Handler {
	return otelhttp.NewHandler(s.router, "status")
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/queue", s.handleQueue)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	eligible, err := s.queue.CountEligible(ctx)
	if err != nil {
		http.Error(w, "failed to count queue: "+err.Error(), http.StatusInternalServerError)
		return
	}
	entries, err := s.queue.List(ctx)
	if err != nil {
		http.Error(w, "failed to list queue: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.QueueEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QueueStatus{Eligible: eligible, Entries: entries})
}
