package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leaderboardAPI/handlers"
	"leaderboardAPI/internal/config"
	"leaderboardAPI/internal/kvstore"
	"leaderboardAPI/middleware"
	"leaderboardAPI/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	if cfg.Store.Configured() {
		log.Printf("KV store configured at %s", cfg.Store.URL)
	} else {
		log.Println("KV_REST_API_URL/KV_REST_API_TOKEN (or UPSTASH_REDIS_REST_*) not set, /api/scores will answer 500")
	}
	log.Printf("Best time policy: %s, atomic submit: %t", cfg.Leaderboard.BestTimePolicy, cfg.Leaderboard.AtomicSubmit)

	store := kvstore.New(cfg.Store)
	leaderboardService := services.NewLeaderboardService(store, cfg.Leaderboard)

	middleware.InitPrometheus(prometheus.DefaultRegisterer, kvstore.Collectors()...)

	port := ":" + cfg.Port
	server := http.Server{
		Addr:         port,
		Handler:      newHandler(cfg, store, leaderboardService, os.Stdout),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// newHandler builds the full HTTP stack: router, metrics, CORS, access
// logging and panic recovery.
func newHandler(cfg config.Config, store handlers.Pinger, leaderboardService *services.LeaderboardService, accessLog io.Writer) http.Handler {
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, cfg.Store)
	healthHandler := handlers.NewHealthHandler(store, cfg.Store.Configured())

	r := mux.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MonitorMiddleware)

	if cfg.MetricsEnabled() {
		r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler())).Methods("GET")
	} else {
		log.Println("METRICS_USER/METRICS_PASS not set, /metrics disabled")
	}

	r.HandleFunc("/health", healthHandler.Health).Methods("GET")

	// Method dispatch happens in the handler so unsupported methods get
	// the JSON 405 body instead of mux's plain one.
	r.HandleFunc("/api/scores", leaderboardHandler.Scores)

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(cfg.CORSOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length", middleware.RequestIDHeader}),
	)

	withCORS := corsHandler(r)
	preflightAllowed := cfg.Store.Configured()

	// Only real preflights from an allowed origin are answered by the CORS
	// layer. Any other OPTIONS reaches the router so /api/scores can reply
	// with its JSON 500 or 405.
	dispatch := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodOptions &&
			!(preflightAllowed && isPreflight(req) && originAllowed(cfg.CORSOrigins, req.Header.Get("Origin"))) {
			r.ServeHTTP(w, req)
			return
		}
		withCORS.ServeHTTP(w, req)
	})

	return gorillaHandlers.RecoveryHandler(gorillaHandlers.PrintRecoveryStack(true))(
		gorillaHandlers.CombinedLoggingHandler(accessLog, dispatch),
	)
}

func isPreflight(r *http.Request) bool {
	return r.Header.Get("Origin") != "" && r.Header.Get("Access-Control-Request-Method") != ""
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
