package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/servicehub/bookingengine/internal/adapters/events"
	"github.com/servicehub/bookingengine/internal/api/handlers"
	"github.com/servicehub/bookingengine/internal/api/middleware"
	"github.com/servicehub/bookingengine/internal/api/routes"
	"github.com/servicehub/bookingengine/internal/infrastructure/clients/redis"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	"github.com/servicehub/bookingengine/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-sse", cfg.Server.Env)

	log.Info().Msg("starting SSE server")

	// Redis is required here, every stream is a pub/sub subscription
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Redis client")
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)
	sseHandler := handlers.NewSSEHandler(eventBus)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	routes.RegisterStreamRoutes(mux, sseHandler)

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.IdentityMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.SSEPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streams are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("SSE server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("SSE server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("SSE server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during SSE server shutdown")
	}
	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("SSE server stopped")
}
