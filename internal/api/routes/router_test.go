package routes_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/bookingengine/internal/adapters/memory"
	"github.com/servicehub/bookingengine/internal/api/handlers"
	"github.com/servicehub/bookingengine/internal/api/middleware"
	"github.com/servicehub/bookingengine/internal/api/routes"
	"github.com/servicehub/bookingengine/internal/api/validation"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/entities"
)

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *api {
	gw := memory.NewGateway()
	gw.PutProvider(&entities.Provider{ID: "provider-1", Name: "Studio", IsActive: true})
	gw.PutService(&entities.Service{ID: "service-1", ProviderID: "provider-1", Name: "Haircut", DurationMinutes: 60, Price: 4500, IsActive: true})

	cfg := services.DefaultEngineConfig()
	availability := services.NewAvailabilityService(gw, nil, nil, nil, cfg, nil)
	engine := services.NewBookingEngine(gw, availability, nil, nil, cfg, nil).
		WithClock(func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) })

	v := validation.New()
	router := routes.NewRouter(
		handlers.NewBookingHandler(engine, v),
		handlers.NewAvailabilityHandler(availability, v),
		nil,
		nil,
	)
	return &api{t: t, handler: router.SetupRoutes()}
}

func (a *api) do(method, path, body, userID, role string) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *api) slotStarts() []string {
	a.t.Helper()
	w := a.do("GET", "/api/providers/provider-1/slots?service_id=service-1&date=2026-03-02", "", "", "")
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())

	var body entities.DatedSlots
	require.NoError(a.t, json.NewDecoder(w.Body).Decode(&body))
	out := make([]string, 0, len(body.Slots))
	for _, s := range body.Slots {
		out = append(out, s.Start.String())
	}
	return out
}

func TestRouter_Health(t *testing.T) {
	w := newAPI(t).do("GET", "/health", "", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestRouter_BookingFlow(t *testing.T) {
	a := newAPI(t)

	w := a.do("PUT", "/api/providers/provider-1/availability",
		`{"rules":[{"day_of_week":1,"start_time":"09:00","end_time":"12:00"}]}`, "provider-1", "provider")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, a.slotStarts())

	w = a.do("POST", "/api/bookings",
		`{"provider_id":"provider-1","service_id":"service-1","date":"2026-03-02","time":"10:00"}`, "customer-1", "customer")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var booking entities.Booking
	require.NoError(t, json.NewDecoder(w.Body).Decode(&booking))
	assert.Equal(t, entities.BookingStatusPending, booking.Status)

	assert.Equal(t, []string{"09:00", "11:00"}, a.slotStarts())

	w = a.do("POST", "/api/bookings",
		`{"provider_id":"provider-1","service_id":"service-1","date":"2026-03-02","time":"10:30"}`, "customer-2", "customer")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do("POST", "/api/bookings/"+booking.ID+"/accept", "", "customer-1", "customer")
	assert.Equal(t, http.StatusForbidden, w.Code, "customers cannot accept")

	w = a.do("POST", "/api/bookings/"+booking.ID+"/accept", "", "provider-1", "provider")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do("POST", "/api/bookings/"+booking.ID+"/accept", "", "provider-1", "provider")
	assert.Equal(t, http.StatusConflict, w.Code, "accepting twice is an invalid transition")

	w = a.do("POST", "/api/bookings/"+booking.ID+"/reschedule", `{"date":"2026-03-02","time":"11:00"}`, "provider-1", "provider")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do("POST", "/api/bookings/"+booking.ID+"/reschedule/confirm", "", "customer-1", "customer")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&booking))
	assert.Equal(t, entities.MustParseTimeOfDay("11:00"), booking.ScheduledTime)

	assert.Equal(t, []string{"09:00", "10:00"}, a.slotStarts())

	w = a.do("POST", "/api/bookings/"+booking.ID+"/cancel", `{"reason":"sick"}`, "customer-1", "customer")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, a.slotStarts())

	w = a.do("GET", "/api/bookings?status=CANCELLED", "", "customer-1", "customer")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
}

func TestRouter_BlockedTimes(t *testing.T) {
	a := newAPI(t)
	a.do("PUT", "/api/providers/provider-1/availability",
		`{"rules":[{"day_of_week":1,"start_time":"09:00","end_time":"12:00"}]}`, "provider-1", "provider")

	w := a.do("POST", "/api/providers/provider-1/blocked-times",
		`{"date":"2026-03-02","start_time":"09:30","end_time":"10:00","reason":"errand"}`, "provider-1", "provider")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var block entities.BlockedTime
	require.NoError(t, json.NewDecoder(w.Body).Decode(&block))

	assert.Equal(t, []string{"10:00", "11:00"}, a.slotStarts())

	w = a.do("DELETE", "/api/providers/provider-1/blocked-times/"+block.ID, "", "provider-1", "provider")
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, a.slotStarts())
}

func TestRouter_RequiresIdentity(t *testing.T) {
	a := newAPI(t)

	w := a.do("POST", "/api/bookings", `{}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do("POST", "/api/bookings", `{}`, "someone", "admin")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unknown roles carry no identity")
}
