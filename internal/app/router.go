package app

import (
	"net/http"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/chat"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/aliuyar1234/pmdash/internal/invitations"
	"github.com/aliuyar1234/pmdash/internal/notify"
	"github.com/aliuyar1234/pmdash/internal/profiles"
	"github.com/aliuyar1234/pmdash/internal/projects"
	"github.com/aliuyar1234/pmdash/internal/tasks"
	"github.com/aliuyar1234/pmdash/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the long-lived collaborators shared by the handlers.
type Services struct {
	Notifier notify.Notifier
	Hub      *chat.Hub
	Renderer *web.Renderer
}

// NewServices builds the default collaborators for cfg.
func NewServices(cfg *config.Config) (Services, error) {
	renderer, err := web.NewRenderer(cfg.AppName)
	if err != nil {
		return Services{}, err
	}
	return Services{
		Notifier: notify.New(cfg),
		Hub:      chat.NewHub(),
		Renderer: renderer,
	}, nil
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, svc Services) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.CSRFHeaderName, apperrors.RequestIDHeader},
		ExposedHeaders:   []string{apperrors.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret, isProduction))

	auditor := audit.NewWriter(pool)
	invitationService := invitations.NewPostgresService(pool, cfg, svc.Notifier)
	chatService := chat.NewService(pool, svc.Hub)

	// Operational routes
	r.Get("/", handleIndex(cfg.AppName))
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// HTML pages
	r.Group(func(r chi.Router) {
		r.Use(NoCacheMiddleware)
		r.Use(CSRFMiddleware)

		r.Get("/login", web.HandleLoginPage(svc.Renderer, isProduction))
		r.With(LoginRateLimitMiddleware()).Post("/login", web.HandleLoginSubmit(svc.Renderer, pool, auditor, cfg))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuthPage)
			r.Get("/invitations/{token}", web.HandleInvitationPage(svc.Renderer, invitationService, isProduction))
			r.Post("/invitations/{token}/accept", web.HandleInvitationAccept(svc.Renderer, invitationService, auditor))
		})
	})

	// Invitation API. Handlers answer 401 themselves with operation-specific
	// messages, so these routes sit outside RequireAuth. The bare /invitations
	// paths are kept for existing clients.
	invitationAPI := func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware)

		r.Post("/", invitations.HandleCreate(invitationService, auditor))
		r.Put("/", invitations.HandleResend(invitationService, auditor))
		r.Delete("/", invitations.HandleCancel(invitationService, auditor))
	}
	r.Route("/invitations", invitationAPI)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(CSRFMiddleware)

			r.Get("/csrf", auth.HandleCSRF(isProduction))
			r.Post("/signup", auth.HandleSignup(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
			r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
			r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout(isProduction))
		})

		r.Route("/invitations", func(r chi.Router) {
			invitationAPI(r)
			r.Get("/{token}", invitations.HandleLookup(invitationService))
			r.Post("/{token}/accept", invitations.HandleAccept(invitationService, auditor))
		})

		// WebSocket upgrade: GET only, and the response is not JSON.
		r.With(auth.RequireAuth).Get("/chat/rooms/{room_id}/ws", chat.HandleWebSocket(chatService, svc.Hub))

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(CSRFMiddleware)
			r.Use(auth.RequireAuth)
			r.Use(UserRateLimitMiddleware(cfg.RateLimitRPM))

			r.Get("/me", auth.HandleMe)
			r.Get("/profile", profiles.HandleGet(pool))
			r.Put("/profile", profiles.HandleUpdate(pool, auditor))

			r.Route("/companies", func(r chi.Router) {
				r.Post("/", companies.HandleCreate(pool, auditor))
				r.Get("/", companies.HandleList(pool))

				r.Route("/{company_id}", func(r chi.Router) {
					r.Get("/", companies.HandleGet(pool))
					r.Get("/members", companies.HandleListMembers(pool))
					r.Put("/members/{user_id}", companies.HandleUpdateMemberRole(pool, auditor))
					r.Delete("/members/{user_id}", companies.HandleRemoveMember(pool, auditor))
					r.Get("/audit", companies.HandleListAudit(pool))
					r.Get("/invitations", invitations.HandleListPending(invitationService))

					r.Post("/projects", projects.HandleCreate(pool, auditor))
					r.Get("/projects", projects.HandleList(pool))

					r.Post("/tasks", tasks.HandleCreate(pool, auditor))
					r.Get("/tasks", tasks.HandleList(pool))

					r.Get("/chat/rooms", chat.HandleListRooms(chatService))
					r.Post("/chat/rooms/direct", chat.HandleCreateDirectRoom(chatService, auditor))
					r.Post("/chat/rooms/group", chat.HandleCreateGroupRoom(chatService, auditor))
				})
			})

			r.Route("/projects/{project_id}", func(r chi.Router) {
				r.Get("/", projects.HandleGet(pool))
				r.Put("/", projects.HandleUpdate(pool, auditor))
				r.Delete("/", projects.HandleDelete(pool, auditor))
			})

			r.Route("/tasks/{task_id}", func(r chi.Router) {
				r.Get("/", tasks.HandleGet(pool))
				r.Put("/", tasks.HandleUpdate(pool, auditor))
				r.Delete("/", tasks.HandleDelete(pool, auditor))
			})

			r.Get("/chat/rooms/{room_id}/messages", chat.HandleListMessages(chatService))
			r.Post("/chat/rooms/{room_id}/messages", chat.HandleSendMessage(chatService))
			r.Post("/chat/rooms/{room_id}/read", chat.HandleMarkRead(chatService))
		})
	})

	return r
}

func handleIndex(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"name":   appName,
			"status": "ok",
		})
	}
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
