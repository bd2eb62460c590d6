// Package web serves the operator dashboard: job management, booking
// history, health and metrics.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/example/seat-scheduler/internal/booking"
	"github.com/example/seat-scheduler/internal/store"
)

//go:embed templates/*.html static/*
var assets embed.FS

// JobStore is the slice of the store the dashboard uses.
type JobStore interface {
	Jobs(ctx context.Context) ([]store.Job, error)
	Job(ctx context.Context, id int64) (store.Job, error)
	CreateJob(ctx context.Context, j *store.Job) error
	UpdateJob(ctx context.Context, j store.Job) error
	DeleteJob(ctx context.Context, id int64) error
	ToggleJob(ctx context.Context, id int64) (bool, error)
	EnabledJobs(ctx context.Context) ([]store.Job, error)
	RecentLogs(ctx context.Context, limit int) ([]store.LogEntry, error)
}

// JobScheduler is what the dashboard needs from the scheduler: keeping
// triggers in step with edits and running jobs on demand.
type JobScheduler interface {
	Schedule(job store.Job) error
	Unschedule(jobID int64)
	RunJob(ctx context.Context, jobID int64, manual bool) (booking.Outcome, error)
	NextRun(jobID int64) (time.Time, bool)
}

type Server struct {
	sessions *Sessions
	store    JobStore
	sched    JobScheduler
	loc      *time.Location
	log      zerolog.Logger
}

func NewServer(sessions *Sessions, st JobStore, sched JobScheduler, loc *time.Location, log zerolog.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{sessions: sessions, store: st, sched: sched, loc: loc, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.FileServer(http.FS(assets)))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.RequireAuth)
		r.Get("/", s.handleDashboard)
		r.Get("/history", s.handleHistory)
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/new", s.handleJobNew)
		r.Post("/jobs", s.handleJobCreate)
		r.Get("/jobs/{id}/edit", s.handleJobEdit)
		r.Post("/jobs/{id}", s.handleJobUpdate)
		r.Post("/jobs/{id}/delete", s.handleJobDelete)
		r.Post("/jobs/{id}/toggle", s.handleJobToggle)
		r.Post("/jobs/{id}/run", s.handleJobRun)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(assets, "templates/base.html", "templates/"+name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.log.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

// Start serves h until the context ends, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("dashboard listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
