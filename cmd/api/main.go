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

	"github.com/servicehub/bookingengine/internal/adapters/cache"
	"github.com/servicehub/bookingengine/internal/adapters/database"
	"github.com/servicehub/bookingengine/internal/adapters/events"
	"github.com/servicehub/bookingengine/internal/adapters/memory"
	"github.com/servicehub/bookingengine/internal/api/handlers"
	"github.com/servicehub/bookingengine/internal/api/routes"
	"github.com/servicehub/bookingengine/internal/api/validation"
	"github.com/servicehub/bookingengine/internal/application/seed"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/providers"
	"github.com/servicehub/bookingengine/internal/domain/repositories"
	"github.com/servicehub/bookingengine/internal/infrastructure/clients/kafka"
	"github.com/servicehub/bookingengine/internal/infrastructure/clients/postgres"
	"github.com/servicehub/bookingengine/internal/infrastructure/clients/redis"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	"github.com/servicehub/bookingengine/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize OpenTelemetry")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize metrics")
	}

	// Persistence gateway
	var gateway repositories.PersistenceGateway
	switch cfg.Booking.StorageDriver {
	case config.StorageDriverMemory:
		memGateway := memory.NewGateway()
		gateway = memGateway
		log.Warn().Msg("using in-memory storage, bookings are lost on restart")
		if cfg.Booking.SeedDemoData {
			seeder := services.NewAvailabilityService(memGateway, nil, nil, nil, services.EngineConfigFrom(cfg.Booking), nil)
			if err := seed.Load(ctx, seed.MemoryCatalog{Gateway: memGateway}, seeder, seed.Demo); err != nil {
				log.Fatal().Err(err).Msg("failed to seed in-memory storage")
			}
		} else {
			log.Warn().Msg("in-memory storage has no providers, every lookup will return not found")
		}
	default:
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		gateway = database.NewPostgresGateway(pgClient)
		log.Info().Str("database", cfg.Database.Database).Msg("PostgreSQL client initialized")
	}

	// Redis backs the slot cache and the realtime event bus. Both are optional.
	var (
		slotCache   providers.SlotCache
		invalidator providers.CacheInvalidator
		eventBus    *events.RedisEventBus
		notifiers   []providers.RealtimeNotifier
	)
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Redis client, continuing without cache and realtime updates")
	} else {
		defer redisClient.Close()
		availabilityCache := cache.NewAvailabilityCache(cache.NewRedisAdapter(redisClient), cfg.Booking.SlotCacheTTL)
		slotCache = availabilityCache
		invalidator = availabilityCache
		eventBus = events.NewRedisEventBus(redisClient)
		notifiers = append(notifiers, events.NewBusNotifier(eventBus))
		log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
	}

	var publisher *events.KafkaPublisher
	if cfg.Kafka.Enabled() {
		writer, err := kafka.NewWriter(cfg.Kafka)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Kafka writer")
		} else {
			publisher = events.NewKafkaPublisher(writer)
			notifiers = append(notifiers, publisher)
			log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.BookingTopic).Msg("Kafka publisher initialized")
		}
	}

	var notifier providers.RealtimeNotifier
	if len(notifiers) > 0 {
		notifier = events.NewFanoutNotifier(notifiers...)
	}

	// Services
	engineCfg := services.EngineConfigFrom(cfg.Booking)
	availabilityService := services.NewAvailabilityService(gateway, slotCache, invalidator, notifier, engineCfg, metrics)
	bookingEngine := services.NewBookingEngine(gateway, availabilityService, invalidator, notifier, engineCfg, metrics)

	// Handlers
	v := validation.New()
	bookingHandler := handlers.NewBookingHandler(bookingEngine, v)
	availabilityHandler := handlers.NewAvailabilityHandler(availabilityService, v)

	// Streams are mounted here as well when the event bus is available
	var sseHandler *handlers.SSEHandler
	if eventBus != nil {
		sseHandler = handlers.NewSSEHandler(eventBus)
	}

	router := routes.NewRouter(bookingHandler, availabilityHandler, sseHandler, metrics)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if sseHandler != nil {
		// Streams outlive any fixed write deadline
		server.WriteTimeout = 0
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event bus")
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka publisher")
		}
	}

	log.Info().Msg("server stopped")
}
