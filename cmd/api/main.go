package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clickrewards-api/internal/auth"
	"clickrewards-api/internal/cache"
	"clickrewards-api/internal/config"
	"clickrewards-api/internal/database"
	"clickrewards-api/internal/events"
	"clickrewards-api/internal/features"
	"clickrewards-api/internal/handler"
	"clickrewards-api/internal/middleware"
	"clickrewards-api/internal/service"
	"clickrewards-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	flag.Parse()

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "clickrewards-api",
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracing: %v", err)
		}
	}()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize cache: Redis when an address is configured, in-memory
	// otherwise.
	var c cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPass, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		c = redisCache
		log.Printf("Cache: Redis at %s", cfg.Cache.RedisAddr)
	} else {
		c = cache.NewInMemoryCache()
		log.Printf("Cache: in-memory")
	}

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "Cache the active ad catalog")
	flags.Register(features.FeatureEventHooksEnabled, true, "Publish domain events after commits")
	flags.Register(features.FeatureReferralBonus, true, "Credit purchase referral bonuses")

	// Events
	ev := events.NewManager(true)
	defer ev.Shutdown()

	// Auth
	am := auth.NewManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMin)*time.Minute)

	// Initialize service
	svc := service.NewService(db, cfg, c, ev, flags)

	// Initialize handlers
	h := handler.NewHandlerWithOptions(svc, am, handler.NewHandlerOptions{
		MaxBodySize: cfg.Server.MaxBodySize,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Server.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware())
	}

	// Public routes
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/plans", h.ListPlans)
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(am.Middleware)

		r.Get("/profile", h.GetProfile)

		r.Route("/ads", func(r chi.Router) {
			r.Get("/", h.GetAds)
			r.Post("/{id}/click", h.ClickAd)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.SubmitPurchase)
			r.Get("/", h.ListPurchases)
		})

		r.Route("/checkouts", func(r chi.Router) {
			r.Post("/", h.CreateCheckout)
			r.Get("/", h.ListCheckouts)
			r.Put("/{id}/cancel", h.CancelCheckout)
		})

		r.Get("/referrals", h.ListReferrals)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Put("/plans", h.UpsertPlan)
			r.Put("/ads", h.UpsertAd)
			r.Put("/accounts/{id}/deactivate", h.DeactivateAccount)
			r.Put("/purchases/{id}/approve", h.ApprovePurchase)
			r.Put("/purchases/{id}/reject", h.RejectPurchase)
			r.Put("/checkouts/{id}/process", h.ProcessCheckout)
			r.Put("/checkouts/{id}/complete", h.CompleteCheckout)
			r.Put("/checkouts/{id}/reject", h.RejectCheckout)
		})
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Database: %s", cfg.Database.Path)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
