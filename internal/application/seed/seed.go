package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/servicehub/bookingengine/internal/adapters/memory"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// Catalog writes providers and services. The booking engine never creates them itself.
type Catalog interface {
	SaveProvider(ctx context.Context, p entities.Provider) error
	SaveService(ctx context.Context, s entities.Service) error
}

// Load writes every provider and its services to catalog, then sets its weekly hours
// through availability acting as the provider
func Load(ctx context.Context, catalog Catalog, availability *services.AvailabilityService, providers []Provider) error {
	for _, seed := range providers {
		p := seed.Provider
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		if err := catalog.SaveProvider(ctx, p); err != nil {
			return fmt.Errorf("failed to create provider %s: %w", p.ID, err)
		}

		for _, s := range seed.Services {
			s.ProviderID = p.ID
			if err := catalog.SaveService(ctx, s); err != nil {
				return fmt.Errorf("failed to create service %s: %w", s.ID, err)
			}
		}

		rules := seed.Rules()
		actor := entities.Actor{ID: p.ID, Role: entities.ActorRoleProvider}
		if _, err := availability.SetAvailability(ctx, actor, p.ID, rules); err != nil {
			return fmt.Errorf("failed to set availability for %s: %w", p.ID, err)
		}

		log.Info().Str("provider_id", p.ID).Int("services", len(seed.Services)).Int("rules", len(rules)).Msg("Seeded provider")
	}
	return nil
}

// MemoryCatalog stores the catalog in an in-memory gateway
type MemoryCatalog struct {
	Gateway *memory.Gateway
}

func (c MemoryCatalog) SaveProvider(ctx context.Context, p entities.Provider) error {
	c.Gateway.PutProvider(&p)
	return ctx.Err()
}

func (c MemoryCatalog) SaveService(ctx context.Context, s entities.Service) error {
	c.Gateway.PutService(&s)
	return ctx.Err()
}

var _ Catalog = MemoryCatalog{}
