// Package api exposes the lead capture service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/capture"
	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/identity"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/services"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
	"github.com/Lllllllleong/solarleadcapture/internal/wizard"
)

// Onboarding is the wizard flow the API drives.
type Onboarding interface {
	Start(ctx context.Context, owner string) (*wizard.Session, error)
	Session(owner, id string) (*wizard.Session, error)
	Suspend(ctx context.Context, sess *wizard.Session, attr attribution.Attribution, sig capture.Signal) (bool, error)
	Finalize(ctx context.Context, sess *wizard.Session, attr attribution.Attribution) (*services.FinalizeResult, error)
}

// Dashboard is a signed-in user's access to their own lead.
type Dashboard interface {
	Lead(ctx context.Context, owner string) (*models.LeadRecord, error)
	UpdateLead(ctx context.Context, owner string, req models.LeadUpdateRequest, attr attribution.Attribution) (*models.LeadRecord, error)
	AddBill(ctx context.Context, owner string, f documents.File) (*models.Bill, error)
	DeleteBill(ctx context.Context, owner, billID string) error
}

// Contact accepts the public contact form.
type Contact interface {
	Submit(ctx context.Context, req models.ContactRequest, attr attribution.Attribution) (webhook.Report, error)
}

// Review is the admin review queue.
type Review interface {
	List(ctx context.Context, status string) ([]models.LeadRecord, error)
	Decide(ctx context.Context, reviewer, userID string, req models.ReviewRequest) error
}

// Deps are the services and request plumbing the server routes to.
type Deps struct {
	Onboarding    Onboarding
	Dashboard     Dashboard
	Contact       Contact
	Review        Review
	Tracker       *attribution.Tracker
	Identities    identity.Resolver
	Steps         []wizard.StepDefinition
	SecureCookies bool
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	router *chi.Mux
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Steps == nil {
		deps.Steps = wizard.DefaultSteps()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(attribution.Middleware(deps.Tracker, deps.SecureCookies))
	r.Use(identity.Middleware(deps.Identities, logger))

	s := &Server{deps: deps, logger: logger, router: r}
	s.routes()
	return s
}

func loggerMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"requestId", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/contact", s.handleContact)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAuth)

			r.Route("/onboarding/sessions", func(r chi.Router) {
				r.Post("/", s.handleStartSession)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", s.handleGetSession)
					r.Put("/steps/{step}", s.handleSubmitStep)
					r.Post("/documents", s.handleSelectDocuments)
					r.Post("/back", s.handleGoBack)
					r.Post("/suspend", s.handleSuspend)
					r.Post("/submit", s.handleSubmit)
				})
			})

			r.Get("/lead", s.handleGetLead)
			r.Patch("/lead", s.handleUpdateLead)
			r.Post("/bills", s.handleAddBill)
			r.Delete("/bills/{billID}", s.handleDeleteBill)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(identity.RequireAdmin)
			r.Get("/leads", s.handleListLeads)
			r.Post("/leads/{userID}/review", s.handleReview)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info("starting server", "addr", server.Addr, "service", "leadcapture")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
