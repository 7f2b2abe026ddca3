package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

func TestIdentityMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		id, role  string
		wantActor *entities.Actor
	}{
		{"customer", "customer-1", "customer", &entities.Actor{ID: "customer-1", Role: entities.ActorRoleCustomer}},
		{"provider role is case insensitive", "provider-1", "Provider", &entities.Actor{ID: "provider-1", Role: entities.ActorRoleProvider}},
		{"missing id", "", "customer", nil},
		{"unknown role", "admin-1", "admin", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *entities.Actor
			handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if actor, ok := ActorFromContext(r.Context()); ok {
					got = &actor
				}
			}))

			req := httptest.NewRequest("GET", "/api/bookings", nil)
			req.Header.Set(HeaderUserID, tt.id)
			req.Header.Set(HeaderUserRole, tt.role)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.wantActor, got)
		})
	}
}

func TestCompression(t *testing.T) {
	payload := `{"bookings":[]}`
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, payload)
	}))

	t.Run("gzips json", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/bookings", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		gz, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(gz)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))
	})

	t.Run("leaves streams alone", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/stream/providers/provider-1", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, w.Body.String())
	})
}

func TestCacheControl(t *testing.T) {
	handler := CacheControl(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		method, path, want string
	}{
		{"GET", "/api/providers/provider-1/slots", "private, no-cache, must-revalidate"},
		{"GET", "/api/providers/provider-1/availability", "private, no-cache, must-revalidate"},
		{"PUT", "/api/providers/provider-1/availability", "no-store"},
		{"GET", "/api/bookings/booking-1", "no-store"},
		{"GET", "/health", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Header().Get("Cache-Control"))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("preflight allows the identity headers", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGINS", "")
		handler := CORSMiddleware(next)
		req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		allowed := w.Header().Get("Access-Control-Allow-Headers")
		assert.Contains(t, allowed, HeaderUserID)
		assert.Contains(t, allowed, HeaderUserRole)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	})

	t.Run("configured origins are echoed", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
		handler := CORSMiddleware(next)
		req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
		req.Header.Set("Origin", "https://b.example.com")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Equal(t, "https://b.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("unknown origins get no allow origin", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGINS", "https://a.example.com")
		handler := CORSMiddleware(next)
		req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("bare OPTIONS reaches the handler", func(t *testing.T) {
		handler := CORSMiddleware(next)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/bookings", nil))

		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}
