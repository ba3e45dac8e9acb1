package router

import (
	"net/http"
	"time"

	"jorra-tryon/internal/handlers"
	"jorra-tryon/internal/middleware"
	"jorra-tryon/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Services struct {
	Sessions *services.SessionManager
	Catalog  *services.CatalogService
	TryOn    *services.TryOnService
	Shares   *services.ShareService
	Admin    *services.AdminService
}

type Options struct {
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
	// SlowRequest is the duration past which a request is logged as slow. Generation
	// requests are expected to be slow and are exempt.
	SlowRequest time.Duration
}

func SetupRouter(svc Services, opts Options, logger zerolog.Logger) *mux.Router {
	authHandler := handlers.NewAuthHandler(svc.Sessions, logger)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog, logger)
	tryOnHandler := handlers.NewTryOnHandler(svc.TryOn, logger)
	shareHandler := handlers.NewShareHandler(svc.Shares, logger)
	adminHandler := handlers.NewAdminHandler(svc.Admin, logger)

	if opts.SlowRequest <= 0 {
		opts.SlowRequest = 2 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(10)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(rateLimiter.Middleware())

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestValidation("application/json", "multipart/form-data"))

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")
	auth.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	auth.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	auth.HandleFunc("/me", authHandler.Me).Methods("GET")

	// The catalog lists degrade to fallback data and stay public.
	catalog := api.PathPrefix("").Subrouter()
	catalog.Use(middleware.PerformanceMonitoring(logger, opts.SlowRequest))
	catalog.HandleFunc("/hairstyles", catalogHandler.ListHairstyles).Methods("GET")
	catalog.HandleFunc("/hairstyles/partner", catalogHandler.ListPartner).Methods("GET")
	catalog.HandleFunc("/hairstyles/merged", catalogHandler.ListMerged).Methods("GET")
	catalog.HandleFunc("/hairstyles/{id}", catalogHandler.GetHairstyle).Methods("GET")
	catalog.HandleFunc("/categories", catalogHandler.ListCategories).Methods("GET")
	catalog.HandleFunc("/shared/{token}", shareHandler.GetShared).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.RequireSession(svc.Sessions))
	protected.HandleFunc("/hairstyles", catalogHandler.AddHairstyle).Methods("POST")
	protected.HandleFunc("/hairstyles/{id}", catalogHandler.DeleteHairstyle).Methods("DELETE")
	protected.HandleFunc("/categories", catalogHandler.CreateCategory).Methods("POST")
	protected.HandleFunc("/try-on", tryOnHandler.TryOn).Methods("POST")
	protected.HandleFunc("/try-on/progress", tryOnHandler.Progress).Methods("GET")
	protected.HandleFunc("/results/{key}", tryOnHandler.Result).Methods("GET")
	protected.HandleFunc("/generations", tryOnHandler.ListGenerations).Methods("GET")
	protected.HandleFunc("/generations/{id:[0-9]+}/video", tryOnHandler.GenerateVideo).Methods("POST")
	protected.HandleFunc("/generations/{id:[0-9]+}/share", shareHandler.Share).Methods("POST")
	protected.HandleFunc("/shares", shareHandler.ListShares).Methods("GET")
	protected.HandleFunc("/bonus/claim", shareHandler.ClaimBonus).Methods("POST")
	protected.HandleFunc("/tryons/reset", tryOnHandler.ResetTryOns).Methods("POST")
	protected.HandleFunc("/tryons/request", tryOnHandler.RequestIncrease).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireSession(svc.Sessions))
	admin.HandleFunc("/requests", adminHandler.ListRequests).Methods("GET")
	admin.HandleFunc("/requests/{id:[0-9]+}/approve", adminHandler.Approve).Methods("PUT")
	admin.HandleFunc("/requests/{id:[0-9]+}/deny", adminHandler.Deny).Methods("PUT")

	// mux only runs middleware for matched routes; this lets CORS answer preflights.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
