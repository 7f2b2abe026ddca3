package main

import (
	"context"
	"os"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/rs/zerolog/log"

	"github.com/servicehub/bookingengine/internal/adapters/database"
	"github.com/servicehub/bookingengine/internal/application/seed"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/infrastructure/clients/postgres"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	"github.com/servicehub/bookingengine/pkg/config"
)

// postgresCatalog inserts catalog rows, leaving existing ones untouched
type postgresCatalog struct {
	db *goqu.Database
}

func (c postgresCatalog) SaveProvider(ctx context.Context, p entities.Provider) error {
	_, err := c.db.Insert("providers").Rows(p).OnConflict(goqu.DoNothing()).Executor().ExecContext(ctx)
	return err
}

func (c postgresCatalog) SaveService(ctx context.Context, s entities.Service) error {
	_, err := c.db.Insert("services").Rows(s).OnConflict(goqu.DoNothing()).Executor().ExecContext(ctx)
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("booking-seed", cfg.Server.Env)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer pgClient.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				bookings,
				blocked_times,
				availability_rules,
				services,
				providers
			CASCADE
		`)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to reset tables")
		}
	}

	gateway := database.NewPostgresGateway(pgClient)
	availability := services.NewAvailabilityService(gateway, nil, nil, nil, services.EngineConfigFrom(cfg.Booking), nil)
	catalog := postgresCatalog{db: goqu.New("postgres", pgClient.DB())}

	if err := seed.Load(ctx, catalog, availability, seed.Demo); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}

	log.Info().Msg("seeding complete")
}
