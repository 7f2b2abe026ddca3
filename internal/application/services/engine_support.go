package services

import (
	"context"
	"errors"
	"time"

	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	"github.com/servicehub/bookingengine/pkg/config"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// EngineConfig tunes the booking and availability services
type EngineConfig struct {
	StartLeadTime      time.Duration
	PersistenceTimeout time.Duration
	SideEffectTimeout  time.Duration
	Location           *time.Location
}

// DefaultEngineConfig returns the defaults used when nothing is configured
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StartLeadTime:      15 * time.Minute,
		PersistenceTimeout: 3 * time.Second,
		SideEffectTimeout:  2 * time.Second,
		Location:           time.UTC,
	}
}

// EngineConfigFrom builds an EngineConfig from application configuration
func EngineConfigFrom(cfg config.BookingConfig) EngineConfig {
	return EngineConfig{
		StartLeadTime:      cfg.StartLeadTime,
		PersistenceTimeout: cfg.PersistenceTimeout,
		SideEffectTimeout:  cfg.SideEffectTimeout,
		Location:           cfg.Location(),
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.StartLeadTime < 0 {
		c.StartLeadTime = d.StartLeadTime
	}
	if c.PersistenceTimeout <= 0 {
		c.PersistenceTimeout = d.PersistenceTimeout
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = d.SideEffectTimeout
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

// persist runs one gateway call under the persistence timeout. Calls are
// never retried here; a Timeout error tells the caller it may retry.
func persist[T any](ctx context.Context, cfg EngineConfig, metrics *observability.Metrics, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.PersistenceTimeout)
	defer cancel()

	start := time.Now()
	result, err := fn(callCtx)
	observability.RecordDBMetric(ctx, metrics, op, time.Since(start))
	if err != nil {
		var zero T
		return zero, translatePersistenceError(op, err)
	}
	return result, nil
}

func translatePersistenceError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(op+" timed out", err)
	}
	return apperrors.NewInternalError("failed to "+op, err)
}

// sideEffects runs post-commit work. Failures are logged and counted, never returned.
type sideEffects struct {
	timeout time.Duration
	metrics *observability.Metrics
}

func (s sideEffects) run(ctx context.Context, name string, fn func(context.Context) error) {
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := fn(effectCtx); err != nil {
		observability.LoggerFromContext(ctx).Warn().
			Err(err).
			Str("side_effect", name).
			Msg("Post-commit side effect failed")
		observability.RecordSideEffectFailure(ctx, s.metrics, name)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.TypeOf(err))
}
