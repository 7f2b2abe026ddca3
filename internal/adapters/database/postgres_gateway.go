package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/repositories"
	"github.com/servicehub/bookingengine/internal/infrastructure/clients/postgres"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// Postgres error codes mapped to domain errors
const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	pgForeignKey         = "23503"
	pgQueryCanceled      = "57014"
	pgLockNotAvailable   = "55P03"
)

const (
	tableBookings          = "bookings"
	tableAvailabilityRules = "availability_rules"
	tableBlockedTimes      = "blocked_times"
	tableProviders         = "providers"
	tableServices          = "services"
)

var bookingColumns = []interface{}{
	"id", "provider_id", "customer_id", "service_id", "scheduled_date",
	"start_minute", "end_minute", "duration_minutes", "status", "total_price",
	"notes", "cancellation_reason", "cancelled_by", "proposed_date",
	"proposed_start_minute", "created_at", "updated_at",
}

var blockedTimeColumns = []interface{}{
	"id", "provider_id", "date", "start_minute", "end_minute", "reason", "is_recurring", "created_at",
}

// PostgresGateway implements PersistenceGateway on PostgreSQL.
//
// Claims on a provider's time are serialized per provider and date with a
// transaction-scoped advisory lock. Status changes lock the booking row with
// SELECT ... FOR UPDATE. The bookings_no_overlap exclusion constraint rejects
// any overlap that slips past both.
type PostgresGateway struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPostgresGateway creates a new postgres gateway
func NewPostgresGateway(client *postgres.Client) *PostgresGateway {
	return &PostgresGateway{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row scanner) (*entities.Booking, error) {
	b := &entities.Booking{}
	var (
		scheduled     time.Time
		start, end    int
		status        string
		proposedDate  sql.NullTime
		proposedStart sql.NullInt64
	)
	err := row.Scan(
		&b.ID, &b.ProviderID, &b.CustomerID, &b.ServiceID, &scheduled,
		&start, &end, &b.DurationMinutes, &status, &b.TotalPrice,
		&b.Notes, &b.CancellationReason, &b.CancelledBy, &proposedDate,
		&proposedStart, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.ScheduledDate = civil.DateOf(scheduled)
	b.ScheduledTime = entities.TimeOfDay(start)
	b.EndTime = entities.TimeOfDay(end)
	b.Status = entities.BookingStatus(status)
	if proposedDate.Valid && proposedStart.Valid {
		d := civil.DateOf(proposedDate.Time)
		t := entities.TimeOfDay(proposedStart.Int64)
		b.ProposedDate = &d
		b.ProposedTime = &t
	}
	return b, nil
}

func scanBlockedTime(row scanner) (*entities.BlockedTime, error) {
	bt := &entities.BlockedTime{}
	var (
		date       time.Time
		start, end sql.NullInt64
	)
	if err := row.Scan(&bt.ID, &bt.ProviderID, &date, &start, &end, &bt.Reason, &bt.IsRecurring, &bt.CreatedAt); err != nil {
		return nil, err
	}
	bt.Date = civil.DateOf(date)
	if start.Valid && end.Valid {
		s, e := entities.TimeOfDay(start.Int64), entities.TimeOfDay(end.Int64)
		bt.StartTime = &s
		bt.EndTime = &e
	}
	return bt, nil
}

func bookingRecord(b *entities.Booking) goqu.Record {
	var proposedDate, proposedStart interface{}
	if b.ProposedDate != nil && b.ProposedTime != nil {
		proposedDate = b.ProposedDate.String()
		proposedStart = int(*b.ProposedTime)
	}
	return goqu.Record{
		"id":                    b.ID,
		"provider_id":           b.ProviderID,
		"customer_id":           b.CustomerID,
		"service_id":            b.ServiceID,
		"scheduled_date":        b.ScheduledDate.String(),
		"start_minute":          int(b.ScheduledTime),
		"end_minute":            int(b.EndTime),
		"duration_minutes":      b.DurationMinutes,
		"status":                string(b.Status),
		"total_price":           b.TotalPrice,
		"notes":                 b.Notes,
		"cancellation_reason":   b.CancellationReason,
		"cancelled_by":          b.CancelledBy,
		"proposed_date":         proposedDate,
		"proposed_start_minute": proposedStart,
		"created_at":            b.CreatedAt,
		"updated_at":            b.UpdatedAt,
	}
}

// mapError converts driver errors to domain errors
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(op+" timed out", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgExclusionViolation:
			return apperrors.NewSlotConflictError("the requested time overlaps an existing booking")
		case pgUniqueViolation:
			return apperrors.NewConflictError(fmt.Sprintf("%s: duplicate record", op))
		case pgForeignKey:
			return apperrors.NewNotFoundError(fmt.Sprintf("%s: referenced record does not exist", op))
		case pgQueryCanceled, pgLockNotAvailable:
			return apperrors.NewTimeoutError(op+" timed out", err)
		}
	}
	return apperrors.NewInternalError("failed to "+op, err)
}

// withTx runs fn in a transaction, committing only when fn succeeds
func (g *PostgresGateway) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := g.client.BeginTx(ctx)
	if err != nil {
		return mapError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(op, err)
	}
	return nil
}

// lockProviderDate serializes claims on one provider's date until the transaction ends
func lockProviderDate(ctx context.Context, tx *sql.Tx, providerID string, date civil.Date) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", providerID+"|"+date.String())
	return err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (g *PostgresGateway) queryBookings(ctx context.Context, q queryer, ds *goqu.SelectDataset) ([]*entities.Booking, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []*entities.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (g *PostgresGateway) providerDateBookings(providerID string, date civil.Date) *goqu.SelectDataset {
	return g.db.From(tableBookings).
		Select(bookingColumns...).
		Where(goqu.Ex{"provider_id": providerID, "scheduled_date": date.String()}).
		Order(goqu.C("start_minute").Asc(), goqu.C("id").Asc())
}

func (g *PostgresGateway) LoadBookingsForProviderDate(ctx context.Context, providerID string, date civil.Date) ([]*entities.Booking, error) {
	bookings, err := g.queryBookings(ctx, g.client.DB(), g.providerDateBookings(providerID, date))
	if err != nil {
		return nil, mapError("load bookings", err)
	}
	return bookings, nil
}

func (g *PostgresGateway) CreateBookingAtomic(ctx context.Context, booking *entities.Booking, conflictCheck repositories.ConflictCheck) (*entities.Booking, error) {
	ctx, span := observability.StartSpan(ctx, "PostgresGateway.CreateBookingAtomic")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("provider.id", booking.ProviderID),
		attribute.String("date", booking.ScheduledDate.String()),
	)

	stored := booking.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = stored.CreatedAt

	err := g.withTx(ctx, "create booking", func(tx *sql.Tx) error {
		if err := lockProviderDate(ctx, tx, stored.ProviderID, stored.ScheduledDate); err != nil {
			return err
		}
		if conflictCheck != nil {
			existing, err := g.queryBookings(ctx, tx, g.providerDateBookings(stored.ProviderID, stored.ScheduledDate))
			if err != nil {
				return err
			}
			if err := conflictCheck(existing); err != nil {
				return err
			}
		}

		query, args, err := g.db.Insert(tableBookings).Rows(bookingRecord(stored)).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return stored, nil
}

func (g *PostgresGateway) UpdateBookingStatus(ctx context.Context, id string, update repositories.StatusUpdate, conflictCheck repositories.ConflictCheck) (*entities.Booking, error) {
	ctx, span := observability.StartSpan(ctx, "PostgresGateway.UpdateBookingStatus")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("booking.id", id),
		attribute.String("booking.action", string(update.Action)),
	)

	var updated *entities.Booking
	err := g.withTx(ctx, "update booking status", func(tx *sql.Tx) error {
		query, args, err := g.db.From(tableBookings).
			Select(bookingColumns...).
			Where(goqu.Ex{"id": id}).
			ForUpdate(exp.Wait).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build query", err)
		}

		current, err := scanBooking(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
		}
		if err != nil {
			return err
		}
		if current.Status != update.Expected {
			return apperrors.NewInvalidTransitionError(string(current.Status), string(update.Action))
		}

		next := applyUpdate(current, update)
		if update.NeedsConflictCheck() && conflictCheck != nil {
			if err := lockProviderDate(ctx, tx, next.ProviderID, next.ScheduledDate); err != nil {
				return err
			}
			existing, err := g.queryBookings(ctx, tx, g.providerDateBookings(next.ProviderID, next.ScheduledDate))
			if err != nil {
				return err
			}
			if err := conflictCheck(existing); err != nil {
				return err
			}
		}

		record := bookingRecord(next)
		delete(record, "id")
		delete(record, "created_at")
		query, args, err = g.db.Update(tableBookings).
			Set(record).
			Where(goqu.Ex{"id": id}).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build update query", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return updated, nil
}

// applyUpdate returns current with update applied
func applyUpdate(current *entities.Booking, update repositories.StatusUpdate) *entities.Booking {
	next := current.Clone()
	next.Status = update.Status
	if update.Window != nil {
		next.ScheduledDate = update.Window.Date
		next.ScheduledTime = update.Window.Start
		next.EndTime = update.Window.End
	}
	if update.CancellationReason != "" {
		next.CancellationReason = update.CancellationReason
	}
	if update.CancelledBy != "" {
		next.CancelledBy = update.CancelledBy
	}
	if update.Proposed != nil {
		date, start := update.Proposed.Date, update.Proposed.Start
		next.ProposedDate = &date
		next.ProposedTime = &start
	}
	if update.ClearProposed {
		next.ProposedDate = nil
		next.ProposedTime = nil
	}
	next.UpdatedAt = update.At
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	return next
}

func (g *PostgresGateway) LoadAvailabilityRules(ctx context.Context, providerID string) ([]*entities.AvailabilityRule, error) {
	query, args, err := g.db.From(tableAvailabilityRules).
		Select("id", "provider_id", "day_of_week", "start_minute", "end_minute", "is_available").
		Where(goqu.Ex{"provider_id": providerID}).
		Order(goqu.C("day_of_week").Asc(), goqu.C("start_minute").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := g.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("load availability rules", err)
	}
	defer rows.Close()

	rules := []*entities.AvailabilityRule{}
	for rows.Next() {
		r := &entities.AvailabilityRule{}
		var day, start, end int
		if err := rows.Scan(&r.ID, &r.ProviderID, &day, &start, &end, &r.IsAvailable); err != nil {
			return nil, mapError("scan availability rule", err)
		}
		r.DayOfWeek = time.Weekday(day)
		r.StartTime = entities.TimeOfDay(start)
		r.EndTime = entities.TimeOfDay(end)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("load availability rules", err)
	}
	return rules, nil
}

func (g *PostgresGateway) LoadBlockedTimes(ctx context.Context, providerID string, dateRange entities.DateRange) ([]*entities.BlockedTime, error) {
	from, to := dateRange.From.String(), dateRange.To.String()
	query, args, err := g.db.From(tableBlockedTimes).
		Select(blockedTimeColumns...).
		Where(
			goqu.C("provider_id").Eq(providerID),
			goqu.Or(
				goqu.C("date").Between(goqu.Range(from, to)),
				goqu.And(goqu.C("is_recurring").IsTrue(), goqu.C("date").Lte(to)),
			),
		).
		Order(goqu.C("date").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := g.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("load blocked times", err)
	}
	defer rows.Close()

	blocks := []*entities.BlockedTime{}
	for rows.Next() {
		bt, err := scanBlockedTime(rows)
		if err != nil {
			return nil, mapError("scan blocked time", err)
		}
		blocks = append(blocks, bt)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("load blocked times", err)
	}
	return blocks, nil
}

func (g *PostgresGateway) GetBooking(ctx context.Context, id string) (*entities.Booking, error) {
	query, args, err := g.db.From(tableBookings).
		Select(bookingColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	b, err := scanBooking(g.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	if err != nil {
		return nil, mapError("get booking", err)
	}
	return b, nil
}

func (g *PostgresGateway) ListBookings(ctx context.Context, filter entities.BookingFilter) ([]*entities.Booking, error) {
	ds := g.db.From(tableBookings).Select(bookingColumns...)

	if filter.ProviderID != "" {
		ds = ds.Where(goqu.C("provider_id").Eq(filter.ProviderID))
	}
	if filter.CustomerID != "" {
		ds = ds.Where(goqu.C("customer_id").Eq(filter.CustomerID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		ds = ds.Where(goqu.C("status").In(statuses))
	}
	if filter.From != nil {
		ds = ds.Where(goqu.C("scheduled_date").Gte(filter.From.String()))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("scheduled_date").Lte(filter.To.String()))
	}

	ds = ds.Order(goqu.C("scheduled_date").Desc(), goqu.C("start_minute").Desc(), goqu.C("id").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	bookings, err := g.queryBookings(ctx, g.client.DB(), ds)
	if err != nil {
		return nil, mapError("list bookings", err)
	}
	return bookings, nil
}

func (g *PostgresGateway) GetProvider(ctx context.Context, id string) (*entities.Provider, error) {
	query, args, err := g.db.From(tableProviders).
		Select("id", "name", "is_active", "created_at").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	p := &entities.Provider{}
	err = g.client.DB().QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Name, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider %s not found", id))
	}
	if err != nil {
		return nil, mapError("get provider", err)
	}
	return p, nil
}

func (g *PostgresGateway) GetService(ctx context.Context, id string) (*entities.Service, error) {
	query, args, err := g.db.From(tableServices).
		Select("id", "provider_id", "name", "duration_minutes", "price", "is_active").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	s := &entities.Service{}
	err = g.client.DB().QueryRowContext(ctx, query, args...).Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &s.Price, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("service %s not found", id))
	}
	if err != nil {
		return nil, mapError("get service", err)
	}
	return s, nil
}

func (g *PostgresGateway) ReplaceAvailabilityRules(ctx context.Context, providerID string, rules []*entities.AvailabilityRule) ([]*entities.AvailabilityRule, error) {
	stored := make([]*entities.AvailabilityRule, 0, len(rules))
	records := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		c := *r
		c.ProviderID = providerID
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		stored = append(stored, &c)
		records = append(records, goqu.Record{
			"id":           c.ID,
			"provider_id":  providerID,
			"day_of_week":  int(c.DayOfWeek),
			"start_minute": int(c.StartTime),
			"end_minute":   int(c.EndTime),
			"is_available": c.IsAvailable,
		})
	}

	err := g.withTx(ctx, "replace availability rules", func(tx *sql.Tx) error {
		query, args, err := g.db.Delete(tableAvailabilityRules).Where(goqu.Ex{"provider_id": providerID}).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build delete query", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		query, args, err = g.db.Insert(tableAvailabilityRules).Rows(records...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (g *PostgresGateway) CreateBlockedTime(ctx context.Context, block *entities.BlockedTime) (*entities.BlockedTime, error) {
	stored := *block
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	var start, end interface{}
	if !stored.IsWholeDay() {
		start, end = int(*stored.StartTime), int(*stored.EndTime)
	}
	query, args, err := g.db.Insert(tableBlockedTimes).Rows(goqu.Record{
		"id":           stored.ID,
		"provider_id":  stored.ProviderID,
		"date":         stored.Date.String(),
		"start_minute": start,
		"end_minute":   end,
		"reason":       stored.Reason,
		"is_recurring": stored.IsRecurring,
		"created_at":   stored.CreatedAt,
	}).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := g.client.DB().ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("create blocked time", err)
	}
	return &stored, nil
}

func (g *PostgresGateway) DeleteBlockedTime(ctx context.Context, providerID, blockedTimeID string) (*entities.BlockedTime, error) {
	query, args, err := g.db.Delete(tableBlockedTimes).
		Where(goqu.Ex{"id": blockedTimeID, "provider_id": providerID}).
		Returning(blockedTimeColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build delete query", err)
	}

	removed, err := scanBlockedTime(g.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("blocked time %s not found", blockedTimeID))
	}
	if err != nil {
		return nil, mapError("delete blocked time", err)
	}
	return removed, nil
}

var _ repositories.PersistenceGateway = (*PostgresGateway)(nil)
