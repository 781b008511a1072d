package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"

	"github.com/wimarka/lakra/internal/config"
	"github.com/wimarka/lakra/internal/health"
	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/proficiency"
)

// ProficiencyService serves questions, grades tests and manages the bank
type ProficiencyService interface {
	QuestionsByLanguages(ctx context.Context, languages []string) ([]models.ProficiencyQuestion, error)
	SubmitAnswers(ctx context.Context, userID string, req models.SubmitAnswersRequest) (*models.TestResult, error)
	ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]*models.ProficiencyQuestion, error)
	GetQuestion(ctx context.Context, id int) (*models.ProficiencyQuestion, error)
	CreateQuestion(ctx context.Context, q *models.ProficiencyQuestion, createdBy string) (*models.ProficiencyQuestion, error)
	UpdateQuestion(ctx context.Context, id int, update models.QuestionUpdate) (*models.ProficiencyQuestion, error)
	DeleteQuestion(ctx context.Context, id int) error
	GetSession(ctx context.Context, id string) (*proficiency.SessionReview, error)
	UserSessions(ctx context.Context, userID string) ([]*models.TestSession, error)
}

// AccountService registers and authenticates users
type AccountService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	ToggleEvaluator(ctx context.Context, userID string) (*models.User, error)
	UserLanguages(ctx context.Context, userID string) ([]string, error)
	UpdateLanguages(ctx context.Context, userID string, languages []string) ([]string, error)
}

// Server represents the HTTP API server
type Server struct {
	config      config.ServerConfig
	router      *chi.Mux
	proficiency ProficiencyService
	accounts    AccountService
	tokenAuth   *jwtauth.JWTAuth
	health      *health.Registry
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	prof ProficiencyService,
	accounts AccountService,
	tokenAuth *jwtauth.JWTAuth,
	registry *health.Registry,
) *Server {
	s := &Server{
		config:      cfg,
		proficiency: prof,
		accounts:    accounts,
		tokenAuth:   tokenAuth,
		health:      registry,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// Claims are parsed for every request; routes decide whether they are required
		r.Use(jwtauth.Verifier(s.tokenAuth))

		r.Route("/proficiency", func(r chi.Router) {
			r.Post("/questions", s.handleQuestionsByLanguages)
			r.With(OptionalAuth).Post("/submit", s.handleSubmitAnswers)
			r.With(Authenticator).Get("/sessions", s.handleMySessions)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.With(Authenticator).Get("/me", s.handleMe)
		})

		r.Route("/me/languages", func(r chi.Router) {
			r.Use(Authenticator)
			r.Get("/", s.handleMyLanguages)
			r.Put("/", s.handleUpdateMyLanguages)
		})

		r.Route("/admin/questions", func(r chi.Router) {
			r.Use(Authenticator)
			r.With(RequirePermission("questions:read")).Get("/", s.handleListQuestions)
			r.With(RequirePermission("questions:write")).Post("/", s.handleCreateQuestion)

			r.Route("/{id}", func(r chi.Router) {
				r.With(RequirePermission("questions:read")).Get("/", s.handleGetQuestion)
				r.With(RequirePermission("questions:write")).Put("/", s.handleUpdateQuestion)
				r.With(RequirePermission("questions:write")).Delete("/", s.handleDeleteQuestion)
			})
		})

		r.With(Authenticator, RequirePermission("sessions:read")).Get("/admin/sessions/{id}", s.handleGetSession)

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(Authenticator)
			r.With(RequirePermission("users:read")).Get("/", s.handleListUsers)
			r.With(RequirePermission("users:write")).Put("/{id}/toggle-evaluator", s.handleToggleEvaluator)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
