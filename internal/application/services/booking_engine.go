package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
	"github.com/servicehub/bookingengine/internal/domain/repositories"
	"github.com/servicehub/bookingengine/internal/domain/scheduling"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// CreateBookingInput is a customer's request for a provider's time
type CreateBookingInput struct {
	ProviderID string
	ServiceID  string
	Date       civil.Date
	Time       entities.TimeOfDay
	Notes      string
}

// BookingEngine drives bookings through their lifecycle
type BookingEngine struct {
	gateway      repositories.PersistenceGateway
	availability *AvailabilityService
	invalidator  providers.CacheInvalidator
	notifier     providers.RealtimeNotifier
	cfg          EngineConfig
	effects      sideEffects
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewBookingEngine creates a new booking engine. invalidator and notifier may be nil.
func NewBookingEngine(
	gateway repositories.PersistenceGateway,
	availability *AvailabilityService,
	invalidator providers.CacheInvalidator,
	notifier providers.RealtimeNotifier,
	cfg EngineConfig,
	metrics *observability.Metrics,
) *BookingEngine {
	cfg = cfg.withDefaults()
	return &BookingEngine{
		gateway:      gateway,
		availability: availability,
		invalidator:  invalidator,
		notifier:     notifier,
		cfg:          cfg,
		effects:      sideEffects{timeout: cfg.SideEffectTimeout, metrics: metrics},
		metrics:      metrics,
		now:          time.Now,
	}
}

// WithClock replaces the engine's time source
func (e *BookingEngine) WithClock(now func() time.Time) *BookingEngine {
	e.now = now
	return e
}

// Create books [Time, Time+duration) on Date for the calling customer
func (e *BookingEngine) Create(ctx context.Context, actor entities.Actor, input CreateBookingInput) (booking *entities.Booking, err error) {
	ctx, span := observability.StartSpan(ctx, "BookingEngine.Create")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("provider.id", input.ProviderID),
		attribute.String("service.id", input.ServiceID),
		attribute.String("date", input.Date.String()),
	)
	defer func() {
		observability.RecordError(span, err)
		observability.RecordBookingTransition(ctx, e.metrics, "create", outcomeOf(err))
	}()

	if actor.Role != entities.ActorRoleCustomer || actor.ID == "" {
		return nil, apperrors.NewUnauthorizedError("only customers can create bookings")
	}
	if !input.Date.IsValid() || !input.Time.Valid() {
		return nil, apperrors.NewValidationError("a valid date and time are required")
	}

	provider, service, err := e.availability.resolve(ctx, input.ProviderID, input.ServiceID)
	if err != nil {
		return nil, err
	}
	if !provider.IsActive {
		return nil, apperrors.NewValidationError(fmt.Sprintf("provider %s is not accepting bookings", provider.ID))
	}
	if !service.IsActive {
		return nil, apperrors.NewValidationError(fmt.Sprintf("service %s is not active", service.ID))
	}
	if service.DurationMinutes <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("service %s has no duration", service.ID))
	}

	window := entities.TimeWindow{Date: input.Date, Start: input.Time, End: input.Time.Add(service.DurationMinutes)}
	if !window.End.Valid() {
		return nil, apperrors.NewValidationError("booking must end by midnight")
	}
	if err := e.notInPast(window); err != nil {
		return nil, err
	}

	in, err := e.availability.loadDay(ctx, input.ProviderID, input.Date)
	if err != nil {
		return nil, err
	}
	requested := scheduling.Interval{Start: window.Start, End: window.End}
	if !scheduling.FitsWithin(scheduling.AvailableIntervals(input.Date, in.Rules, in.Blocks), requested) {
		observability.RecordSlotConflict(ctx, e.metrics, input.ProviderID)
		return nil, apperrors.NewSlotConflictError(fmt.Sprintf("%s %s-%s is outside the provider's open hours", window.Date, window.Start, window.End))
	}
	if conflict := scheduling.FindConflict(in.Bookings, window, ""); conflict != nil {
		observability.RecordSlotConflict(ctx, e.metrics, input.ProviderID)
		return nil, slotTaken(window)
	}

	now := e.now()
	candidate := &entities.Booking{
		ID:              uuid.New().String(),
		ProviderID:      input.ProviderID,
		CustomerID:      actor.ID,
		ServiceID:       service.ID,
		ScheduledDate:   window.Date,
		ScheduledTime:   window.Start,
		EndTime:         window.End,
		DurationMinutes: service.DurationMinutes,
		Status:          entities.BookingStatusPending,
		TotalPrice:      service.Price,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := persist(ctx, e.cfg, e.metrics, "create booking", func(ctx context.Context) (*entities.Booking, error) {
		return e.gateway.CreateBookingAtomic(ctx, candidate, rejectOverlap(window, ""))
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeSlotConflict) {
			observability.RecordSlotConflict(ctx, e.metrics, input.ProviderID)
		}
		return nil, err
	}

	observability.BookingLogger(ctx, created).Info().
		Str("scheduled_date", created.ScheduledDate.String()).
		Str("scheduled_time", created.ScheduledTime.String()).
		Msg("Booking created")

	e.invalidate(ctx, created.ProviderID, created.ScheduledDate)
	if e.notifier != nil {
		e.effects.run(ctx, "notify_new_booking", func(ctx context.Context) error {
			return e.notifier.NotifyNewBooking(ctx, created, created.ProviderID)
		})
		in.Bookings = append(in.Bookings, created)
		windows := intervalsToSlots(scheduling.OpenIntervals(in))
		e.effects.run(ctx, "notify_availability_change", func(ctx context.Context) error {
			return e.notifier.NotifyAvailabilityChange(ctx, created.ProviderID, created.ScheduledDate, windows)
		})
	}
	return created, nil
}

// Accept confirms a pending booking
func (e *BookingEngine) Accept(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionAccept, transitionInput{})
}

// Decline refuses a pending booking
func (e *BookingEngine) Decline(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionDecline, transitionInput{reason: reason})
}

// Start marks a confirmed booking as in progress. Attempts earlier than the
// configured lead time before the scheduled start fail with TooEarly.
func (e *BookingEngine) Start(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionStart, transitionInput{})
}

// Complete finishes a confirmed or in-progress booking
func (e *BookingEngine) Complete(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionComplete, transitionInput{})
}

// RequestReschedule proposes a new date and time for a confirmed booking.
// The scheduled window stays put until the proposal is confirmed.
func (e *BookingEngine) RequestReschedule(ctx context.Context, actor entities.Actor, bookingID string, newDate civil.Date, newTime entities.TimeOfDay) (*entities.Booking, error) {
	if !newDate.IsValid() || !newTime.Valid() {
		return nil, apperrors.NewValidationError("a valid date and time are required")
	}
	return e.transition(ctx, actor, bookingID, entities.BookingActionRequestReschedule, transitionInput{newDate: newDate, newTime: newTime})
}

// ConfirmReschedule moves the booking to its proposed window
func (e *BookingEngine) ConfirmReschedule(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionConfirmReschedule, transitionInput{})
}

// DeclineReschedule drops the proposal and keeps the original window
func (e *BookingEngine) DeclineReschedule(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionDeclineReschedule, transitionInput{})
}

// Cancel cancels any non-terminal booking
func (e *BookingEngine) Cancel(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error) {
	return e.transition(ctx, actor, bookingID, entities.BookingActionCancel, transitionInput{reason: reason})
}

// GetBooking returns a booking the actor is a party to
func (e *BookingEngine) GetBooking(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	booking, err := persist(ctx, e.cfg, e.metrics, "get booking", func(ctx context.Context) (*entities.Booking, error) {
		return e.gateway.GetBooking(ctx, bookingID)
	})
	if err != nil {
		return nil, err
	}
	if !booking.IsParty(actor) {
		return nil, apperrors.NewUnauthorizedError("caller is not a party to this booking")
	}
	return booking, nil
}

// ListBookings returns the actor's bookings matching filter
func (e *BookingEngine) ListBookings(ctx context.Context, actor entities.Actor, filter entities.BookingFilter) ([]*entities.Booking, error) {
	switch actor.Role {
	case entities.ActorRoleProvider:
		if filter.ProviderID == "" {
			filter.ProviderID = actor.ID
		}
		if filter.ProviderID != actor.ID {
			return nil, apperrors.NewUnauthorizedError("providers can only list their own bookings")
		}
	case entities.ActorRoleCustomer:
		if filter.CustomerID == "" {
			filter.CustomerID = actor.ID
		}
		if filter.CustomerID != actor.ID {
			return nil, apperrors.NewUnauthorizedError("customers can only list their own bookings")
		}
	default:
		return nil, apperrors.NewUnauthorizedError("unknown caller role")
	}
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorizedError("caller identity is required")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperrors.NewValidationError("to must not be before from")
	}

	return persist(ctx, e.cfg, e.metrics, "list bookings", func(ctx context.Context) ([]*entities.Booking, error) {
		return e.gateway.ListBookings(ctx, filter)
	})
}

type transitionInput struct {
	reason  string
	newDate civil.Date
	newTime entities.TimeOfDay
}

// transition applies action to the booking: authorize, consult the state
// table, run the action's own checks, write under the row lock, then run side
// effects.
func (e *BookingEngine) transition(ctx context.Context, actor entities.Actor, bookingID string, action entities.BookingAction, input transitionInput) (updated *entities.Booking, err error) {
	ctx, span := observability.StartSpan(ctx, "BookingEngine."+string(action))
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("booking.id", bookingID), attribute.String("booking.action", string(action)))
	defer func() {
		observability.RecordError(span, err)
		observability.RecordBookingTransition(ctx, e.metrics, string(action), outcomeOf(err))
	}()

	current, err := persist(ctx, e.cfg, e.metrics, "get booking", func(ctx context.Context) (*entities.Booking, error) {
		return e.gateway.GetBooking(ctx, bookingID)
	})
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, current, action); err != nil {
		return nil, err
	}

	next, err := entities.NextStatus(current.Status, action)
	if err != nil {
		return nil, err
	}

	update := repositories.StatusUpdate{
		Expected: current.Status,
		Status:   next,
		Action:   action,
		At:       e.now(),
	}
	var check repositories.ConflictCheck

	switch action {
	case entities.BookingActionDecline, entities.BookingActionCancel:
		update.CancellationReason = input.reason
		update.CancelledBy = actor.ID
		update.ClearProposed = true

	case entities.BookingActionStart:
		opensAt := current.StartsAt(e.cfg.Location).Add(-e.cfg.StartLeadTime)
		if e.now().Before(opensAt) {
			return nil, apperrors.NewTooEarlyError(fmt.Sprintf("booking %s can start from %s", current.ID, opensAt.Format(time.RFC3339)))
		}

	case entities.BookingActionRequestReschedule:
		proposed := entities.TimeWindow{Date: input.newDate, Start: input.newTime, End: input.newTime.Add(current.DurationMinutes)}
		if !proposed.End.Valid() {
			return nil, apperrors.NewValidationError("booking must end by midnight")
		}
		if err := e.notInPast(proposed); err != nil {
			return nil, err
		}
		taken, err := e.availability.HasConflict(ctx, current.ProviderID, proposed.Date, proposed.Start, proposed.End, current.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			observability.RecordSlotConflict(ctx, e.metrics, current.ProviderID)
			return nil, slotTaken(proposed)
		}
		update.Proposed = &proposed

	case entities.BookingActionConfirmReschedule:
		proposed, ok := current.ProposedWindow()
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("booking %s has no pending reschedule", current.ID))
		}
		if err := e.notInPast(proposed); err != nil {
			return nil, err
		}
		update.Window = &proposed
		update.ClearProposed = true
		check = rejectOverlap(proposed, current.ID)

	case entities.BookingActionDeclineReschedule:
		// the scheduled window was held throughout, so nothing to re-check
		update.ClearProposed = true
	}

	updated, err = persist(ctx, e.cfg, e.metrics, "update booking status", func(ctx context.Context) (*entities.Booking, error) {
		return e.gateway.UpdateBookingStatus(ctx, current.ID, update, check)
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeSlotConflict) {
			observability.RecordSlotConflict(ctx, e.metrics, current.ProviderID)
		}
		return nil, err
	}

	observability.BookingLogger(ctx, updated).Info().
		Str("action", string(action)).
		Str("from", string(current.Status)).
		Msg("Booking transitioned")

	e.invalidate(ctx, updated.ProviderID, current.ScheduledDate)
	if updated.ScheduledDate != current.ScheduledDate {
		e.invalidate(ctx, updated.ProviderID, updated.ScheduledDate)
	}
	if e.notifier != nil {
		e.effects.run(ctx, "notify_status_change", func(ctx context.Context) error {
			return e.notifier.NotifyBookingStatusChange(ctx, updated.ID, updated.Status, updated.CustomerID, updated.ProviderID)
		})
	}
	return updated, nil
}

func (e *BookingEngine) invalidate(ctx context.Context, providerID string, date civil.Date) {
	if e.invalidator == nil {
		return
	}
	e.effects.run(ctx, "invalidate_availability", func(ctx context.Context) error {
		return e.invalidator.InvalidateAvailability(ctx, providerID, &date)
	})
}

func (e *BookingEngine) notInPast(window entities.TimeWindow) error {
	start := window.Start.On(window.Date, e.cfg.Location)
	if !start.After(e.now()) {
		return apperrors.NewPastDateError(fmt.Sprintf("%s %s is in the past", window.Date, window.Start))
	}
	return nil
}

// authorize checks the actor may apply action to booking
func authorize(actor entities.Actor, booking *entities.Booking, action entities.BookingAction) error {
	if actor.ID == "" {
		return apperrors.NewUnauthorizedError("caller identity is required")
	}
	switch action {
	case entities.BookingActionAccept,
		entities.BookingActionDecline,
		entities.BookingActionStart,
		entities.BookingActionComplete,
		entities.BookingActionRequestReschedule:
		if !booking.IsProvider(actor) {
			return apperrors.NewUnauthorizedError(fmt.Sprintf("only the provider can %s this booking", action))
		}
	default:
		if !booking.IsParty(actor) {
			return apperrors.NewUnauthorizedError("caller is not a party to this booking")
		}
	}
	return nil
}

// rejectOverlap is the conflict check run inside the writing transaction
func rejectOverlap(window entities.TimeWindow, excludeID string) repositories.ConflictCheck {
	return func(existing []*entities.Booking) error {
		if scheduling.HasConflict(existing, window, excludeID) {
			return slotTaken(window)
		}
		return nil
	}
}

func slotTaken(window entities.TimeWindow) error {
	return apperrors.NewSlotConflictError(fmt.Sprintf("%s %s-%s is already booked", window.Date, window.Start, window.End))
}
