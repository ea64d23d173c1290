package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-medical-reservation/config"
	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/pkg/jwt"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type authFixture struct {
	middleware *AuthMiddleware
	jwtService *jwt.JWTService
	redis      *redis.Client
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	jwtService := jwt.NewJWTService(config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: time.Hour,
	})
	return &authFixture{
		middleware: NewAuthMiddleware(jwtService, client),
		jwtService: jwtService,
		redis:      client,
	}
}

// issue signs an access token and registers it the way login does
func (f *authFixture) issue(t *testing.T, userID uuid.UUID, roleID int) string {
	t.Helper()

	token, tokenID, err := f.jwtService.GenerateAccessToken(userID, "user@example.com", roleID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := f.redis.Set(context.Background(), jwt.AccessTokenKey(userID, tokenID), "valid", time.Minute).Err(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return token
}

// echoCaller reports what the middleware put in the context
func echoCaller(seen *uuid.UUID, seenRole *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := GetUserIDFromContext(r.Context()); ok {
			*seen = id
		}
		if role, ok := GetRoleIDFromContext(r.Context()); ok {
			*seenRole = role
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("valid token puts the caller in the context", func(t *testing.T) {
		f := newAuthFixture(t)
		userID := uuid.New()
		token := f.issue(t, userID, entity.RoleIDPatient)

		var seen uuid.UUID
		var role int
		req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.middleware.Authenticate(echoCaller(&seen, &role)).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rec.Code)
		}
		if seen != userID || role != entity.RoleIDPatient {
			t.Fatalf("expected user %s with role %d, got %s with %d", userID, entity.RoleIDPatient, seen, role)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		f := newAuthFixture(t)
		userID := uuid.New()

		revoked, _, err := f.jwtService.GenerateAccessToken(userID, "user@example.com", entity.RoleIDPatient)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		refresh, refreshID, err := f.jwtService.GenerateRefreshToken(userID, "user@example.com", entity.RoleIDPatient)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		f.redis.Set(context.Background(), jwt.RefreshTokenKey(userID, refreshID), "valid", time.Minute)

		headers := map[string]string{
			"missing header":  "",
			"wrong scheme":    "Basic abc",
			"garbage token":   "Bearer not-a-jwt",
			"revoked token":   "Bearer " + revoked,
			"refresh as auth": "Bearer " + refresh,
		}
		for name, header := range headers {
			t.Run(name, func(t *testing.T) {
				called := false
				next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

				req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/me", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				rec := httptest.NewRecorder()
				f.middleware.Authenticate(next).ServeHTTP(rec, req)

				if rec.Code != http.StatusUnauthorized {
					t.Fatalf("expected status 401, got %d", rec.Code)
				}
				if called {
					t.Fatalf("expected the request to stop at the middleware")
				}
			})
		}
	})
}

func TestAuthMiddleware_Optional(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)

	t.Run("anonymous passes through", func(t *testing.T) {
		var seen uuid.UUID
		var role int
		rec := httptest.NewRecorder()
		f.middleware.Optional(echoCaller(&seen, &role)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil))

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rec.Code)
		}
		if seen != uuid.Nil {
			t.Fatalf("expected no caller, got %s", seen)
		}
	})

	t.Run("token identifies the caller", func(t *testing.T) {
		userID := uuid.New()
		token := f.issue(t, userID, entity.RoleIDPatient)

		var seen uuid.UUID
		var role int
		req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.middleware.Optional(echoCaller(&seen, &role)).ServeHTTP(rec, req)

		if seen != userID {
			t.Fatalf("expected caller %s, got %s", userID, seen)
		}
	})

	t.Run("a bad token is still refused", func(t *testing.T) {
		var seen uuid.UUID
		var role int
		req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		f.middleware.Optional(echoCaller(&seen, &role)).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name    string
		mw      func(http.Handler) http.Handler
		roleID  *int
		wantErr int
	}{
		{"patient on patient route", RequirePatient, intPtr(entity.RoleIDPatient), http.StatusNoContent},
		{"admin on patient route", RequirePatient, intPtr(entity.RoleIDAdmin), http.StatusForbidden},
		{"admin on admin route", RequireAdmin, intPtr(entity.RoleIDAdmin), http.StatusNoContent},
		{"doctor on admin route", RequireAdmin, intPtr(entity.RoleIDDoctor), http.StatusForbidden},
		{"doctor on staff route", RequireAdminOrDoctor, intPtr(entity.RoleIDDoctor), http.StatusNoContent},
		{"patient on staff route", RequireAdminOrDoctor, intPtr(entity.RoleIDPatient), http.StatusForbidden},
		{"no role at all", RequireAdmin, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.roleID != nil {
				req = req.WithContext(context.WithValue(req.Context(), RoleIDKey, *tt.roleID))
			}
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantErr {
				t.Fatalf("expected status %d, got %d", tt.wantErr, rec.Code)
			}
		})
	}
}

func intPtr(v int) *int {
	return &v
}
