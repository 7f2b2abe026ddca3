package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/bookingengine/internal/api/handlers"
	"github.com/servicehub/bookingengine/internal/api/middleware"
	"github.com/servicehub/bookingengine/internal/api/validation"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/entities"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) booking(args mock.Arguments) (*entities.Booking, error) {
	if b := args.Get(0); b != nil {
		return b.(*entities.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBookingService) Create(ctx context.Context, actor entities.Actor, input services.CreateBookingInput) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, input))
}

func (m *MockBookingService) Accept(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingService) Decline(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID, reason))
}

func (m *MockBookingService) Start(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingService) Complete(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingService) RequestReschedule(ctx context.Context, actor entities.Actor, bookingID string, newDate civil.Date, newTime entities.TimeOfDay) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID, newDate, newTime))
}

func (m *MockBookingService) ConfirmReschedule(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingService) DeclineReschedule(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingService) Cancel(ctx context.Context, actor entities.Actor, bookingID, reason string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID, reason))
}

func (m *MockBookingService) GetBooking(ctx context.Context, actor entities.Actor, bookingID string) (*entities.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingService) ListBookings(ctx context.Context, actor entities.Actor, filter entities.BookingFilter) ([]*entities.Booking, error) {
	args := m.Called(ctx, actor, filter)
	if b := args.Get(0); b != nil {
		return b.([]*entities.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	customerActor = entities.Actor{ID: "customer-1", Role: entities.ActorRoleCustomer}
	providerActor = entities.Actor{ID: "provider-1", Role: entities.ActorRoleProvider}
	monday        = civil.Date{Year: 2026, Month: time.March, Day: 2}
)

func newRequest(method, path, body string, actor *entities.Actor) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	return req
}

func sampleBooking(status entities.BookingStatus) *entities.Booking {
	return &entities.Booking{
		ID:              "booking-1",
		ProviderID:      "provider-1",
		CustomerID:      "customer-1",
		ServiceID:       "service-1",
		ScheduledDate:   monday,
		ScheduledTime:   entities.MustParseTimeOfDay("10:00"),
		EndTime:         entities.MustParseTimeOfDay("11:00"),
		DurationMinutes: 60,
		Status:          status,
		TotalPrice:      4500,
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	t.Run("creates a booking", func(t *testing.T) {
		svc := new(MockBookingService)
		handler := handlers.NewBookingHandler(svc, validation.New())

		want := services.CreateBookingInput{
			ProviderID: "provider-1",
			ServiceID:  "service-1",
			Date:       monday,
			Time:       entities.MustParseTimeOfDay("10:00"),
			Notes:      "first visit",
		}
		svc.On("Create", mock.Anything, customerActor, want).Return(sampleBooking(entities.BookingStatusPending), nil)

		req := newRequest("POST", "/api/bookings",
			`{"provider_id":"provider-1","service_id":"service-1","date":"2026-03-02","time":"10:00","notes":"first visit"}`,
			&customerActor)
		w := httptest.NewRecorder()

		handler.CreateBooking(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var got entities.Booking
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, "booking-1", got.ID)
		assert.Equal(t, entities.MustParseTimeOfDay("10:00"), got.ScheduledTime)
		svc.AssertExpectations(t)
	})

	t.Run("rejects invalid payload fields", func(t *testing.T) {
		svc := new(MockBookingService)
		handler := handlers.NewBookingHandler(svc, validation.New())

		req := newRequest("POST", "/api/bookings", `{"provider_id":"provider-1","date":"2026-13-02","time":"10:75"}`, &customerActor)
		w := httptest.NewRecorder()

		handler.CreateBooking(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "VALIDATION", body["code"])
		assert.Len(t, body["fields"], 3)
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		handler := handlers.NewBookingHandler(new(MockBookingService), validation.New())

		w := httptest.NewRecorder()
		handler.CreateBooking(w, newRequest("POST", "/api/bookings", `{`, &customerActor))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requires identity", func(t *testing.T) {
		handler := handlers.NewBookingHandler(new(MockBookingService), validation.New())

		w := httptest.NewRecorder()
		handler.CreateBooking(w, newRequest("POST", "/api/bookings", `{}`, nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestBookingHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.NewNotFoundError("booking missing"), http.StatusNotFound, "NOT_FOUND"},
		{"slot conflict", apperrors.NewSlotConflictError("taken"), http.StatusConflict, "SLOT_CONFLICT"},
		{"invalid transition", apperrors.NewInvalidTransitionError("COMPLETED", "accept"), http.StatusConflict, "INVALID_TRANSITION"},
		{"too early", apperrors.NewTooEarlyError("not yet"), http.StatusTooEarly, "TOO_EARLY"},
		{"past date", apperrors.NewPastDateError("gone"), http.StatusUnprocessableEntity, "PAST_DATE"},
		{"unauthorized", apperrors.NewUnauthorizedError("not yours"), http.StatusForbidden, "UNAUTHORIZED"},
		{"timeout", apperrors.NewTimeoutError("slow", context.DeadlineExceeded), http.StatusServiceUnavailable, "TIMEOUT"},
		{"internal", apperrors.NewInternalError("boom", nil), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBookingService)
			handler := handlers.NewBookingHandler(svc, validation.New())
			svc.On("Accept", mock.Anything, providerActor, "booking-1").Return(nil, tt.err)

			req := newRequest("POST", "/api/bookings/booking-1/accept", "", &providerActor)
			req.SetPathValue("id", "booking-1")
			w := httptest.NewRecorder()

			handler.Accept(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w)["code"])
			if tt.wantCode == "TIMEOUT" {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestBookingHandler_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		method string
		serve  func(h *handlers.BookingHandler) http.HandlerFunc
		args   []interface{}
		body   string
		actor  entities.Actor
	}{
		{"accept", "Accept", func(h *handlers.BookingHandler) http.HandlerFunc { return h.Accept }, nil, "", providerActor},
		{"start", "Start", func(h *handlers.BookingHandler) http.HandlerFunc { return h.Start }, nil, "", providerActor},
		{"complete", "Complete", func(h *handlers.BookingHandler) http.HandlerFunc { return h.Complete }, nil, "", providerActor},
		{"confirm reschedule", "ConfirmReschedule", func(h *handlers.BookingHandler) http.HandlerFunc { return h.ConfirmReschedule }, nil, "", customerActor},
		{"decline reschedule", "DeclineReschedule", func(h *handlers.BookingHandler) http.HandlerFunc { return h.DeclineReschedule }, nil, "", customerActor},
		{"decline with reason", "Decline", func(h *handlers.BookingHandler) http.HandlerFunc { return h.Decline }, []interface{}{"fully booked"}, `{"reason":"  fully booked "}`, providerActor},
		{"cancel without body", "Cancel", func(h *handlers.BookingHandler) http.HandlerFunc { return h.Cancel }, []interface{}{""}, "", customerActor},
		{"reschedule", "RequestReschedule", func(h *handlers.BookingHandler) http.HandlerFunc { return h.RequestReschedule },
			[]interface{}{monday.AddDays(1), entities.MustParseTimeOfDay("14:30")}, `{"date":"2026-03-03","time":"14:30"}`, providerActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBookingService)
			handler := handlers.NewBookingHandler(svc, validation.New())

			args := append([]interface{}{mock.Anything, tt.actor, "booking-1"}, tt.args...)
			svc.On(tt.method, args...).Return(sampleBooking(entities.BookingStatusConfirmed), nil)

			req := newRequest("POST", "/api/bookings/booking-1/x", tt.body, &tt.actor)
			req.SetPathValue("id", "booking-1")
			w := httptest.NewRecorder()

			tt.serve(handler)(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestBookingHandler_ListBookings(t *testing.T) {
	t.Run("parses filters", func(t *testing.T) {
		svc := new(MockBookingService)
		handler := handlers.NewBookingHandler(svc, validation.New())

		from := monday
		to := monday.AddDays(6)
		want := entities.BookingFilter{
			ProviderID: "provider-1",
			Statuses:   []entities.BookingStatus{entities.BookingStatusPending, entities.BookingStatusConfirmed},
			From:       &from,
			To:         &to,
			Limit:      10,
			Offset:     20,
		}
		svc.On("ListBookings", mock.Anything, providerActor, want).
			Return([]*entities.Booking{sampleBooking(entities.BookingStatusPending)}, nil)

		req := newRequest("GET", "/api/bookings?provider_id=provider-1&status=PENDING,CONFIRMED&from=2026-03-02&to=2026-03-08&limit=10&offset=20", "", &providerActor)
		w := httptest.NewRecorder()

		handler.ListBookings(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Bookings []entities.Booking `json:"bookings"`
			Count    int                `json:"count"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, 1, body.Count)
		svc.AssertExpectations(t)
	})

	for _, query := range []string{"status=LOST", "from=yesterday", "limit=0", "limit=500", "offset=-1"} {
		t.Run("rejects "+query, func(t *testing.T) {
			handler := handlers.NewBookingHandler(new(MockBookingService), validation.New())

			w := httptest.NewRecorder()
			handler.ListBookings(w, newRequest("GET", "/api/bookings?"+query, "", &customerActor))

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestBookingHandler_GetBooking(t *testing.T) {
	svc := new(MockBookingService)
	handler := handlers.NewBookingHandler(svc, validation.New())
	svc.On("GetBooking", mock.Anything, customerActor, "booking-1").Return(sampleBooking(entities.BookingStatusPending), nil)

	req := newRequest("GET", "/api/bookings/booking-1", "", &customerActor)
	req.SetPathValue("id", "booking-1")
	w := httptest.NewRecorder()

	handler.GetBooking(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheduled_date":"2026-03-02"`)
	assert.Contains(t, w.Body.String(), `"scheduled_time":"10:00"`)
}
