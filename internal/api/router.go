package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/telemed-portal/internal/api/handlers"
	ratelimit "github.com/isdelr/telemed-portal/internal/api/middleware"
	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/isdelr/telemed-portal/internal/websocket"
	"golang.org/x/time/rate"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Auth           *auth.Authenticator
	Users          services.UserServiceProvider
	Posts          services.PostServiceProvider
	Contacts       services.ContactServiceProvider
	Directory      services.DirectoryServiceProvider
	Events         services.EventServiceProvider
	Files          services.FileServiceProvider
	Hub            *websocket.Hub
	DB             handlers.Pinger
	Stats          handlers.HostSampler
	StaticDir      string
	AllowedOrigins []string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(deps.Auth.Authenticate)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps.Users, deps.Auth)
	postHandler := handlers.NewPostHandler(deps.Posts)
	contactHandler := handlers.NewContactHandler(deps.Contacts)
	directoryHandler := handlers.NewDirectoryHandler(deps.Directory)
	eventHandler := handlers.NewEventHandler(deps.Events)
	fileHandler := handlers.NewFileHandler(deps.Files, deps.StaticDir)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Posts, deps.AllowedOrigins)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Stats)

	authLimit := ratelimit.NewRateLimiter(ratelimit.RateLimiterConfig{Rate: rate.Limit(1), Burst: 5, ExpiresIn: 3 * time.Minute})
	contactLimit := ratelimit.NewRateLimiter(ratelimit.RateLimiterConfig{Rate: rate.Every(10 * time.Second), Burst: 3, ExpiresIn: 3 * time.Minute})

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/download", fileHandler.Download)
	r.With(auth.RequireUser).Get("/download/cheatsheet", fileHandler.Download)
	r.Get("/uploads/{name}", fileHandler.ServeUpload)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit.Handler).Post("/register", userHandler.Register)
			r.With(authLimit.Handler).Post("/login", userHandler.Login)
			r.Post("/logout", userHandler.Logout)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser)
				r.Get("/me", userHandler.GetMe)
				r.Put("/password", userHandler.ChangePassword)
				r.Post("/token", userHandler.IssueToken)
			})
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.List)
			r.Get("/latest", postHandler.Latest)
			r.With(auth.RequireAdmin).Post("/", postHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.Get)
				r.With(auth.RequireAdmin).Put("/", postHandler.Update)
				r.With(auth.RequireAdmin).Delete("/", postHandler.Delete)
				r.Get("/comments", postHandler.ListComments)
				r.With(auth.RequireUser).Post("/comments", postHandler.AddComment)
				r.Get("/ws", wsHandler.Serve)
			})
		})

		r.With(contactLimit.Handler).Post("/contact", contactHandler.Submit)

		r.Route("/hospitals", func(r chi.Router) {
			r.Get("/", directoryHandler.ListHospitals)
			r.Get("/search-by-location", directoryHandler.SearchHospitals)
			r.With(auth.RequireAdmin).Post("/", directoryHandler.CreateHospital)
		})

		r.Route("/insurance-plans", func(r chi.Router) {
			r.Get("/", directoryHandler.ListInsurancePlans)
			r.With(auth.RequireAdmin).Post("/", directoryHandler.CreateInsurancePlan)
		})

		r.With(auth.RequireAdmin).Post("/files", fileHandler.Upload)
		r.With(auth.RequireAdmin).Get("/events", eventHandler.GetRecent)
	})

	return r
}
