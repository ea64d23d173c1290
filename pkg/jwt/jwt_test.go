package jwt

import (
	"errors"
	"testing"
	"time"

	"go-medical-reservation/config"

	"github.com/google/uuid"
)

func newTestService(secret string) *JWTService {
	return NewJWTService(config.JWTConfig{Secret: secret, AccessExpiry: time.Minute, RefreshExpiry: time.Hour})
}

func TestJWTService_ParseToken(t *testing.T) {
	t.Parallel()

	s := newTestService("test-secret")
	userID := uuid.New()

	access, accessID, err := s.GenerateAccessToken(userID, "patient@example.com", 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		claims, err := s.ParseToken(access, AccessToken)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if claims.UserID != userID || claims.TokenID != accessID || claims.RoleID != 3 {
			t.Fatalf("unexpected claims %+v", claims)
		}
		if claims.Key() != AccessTokenKey(userID, accessID) {
			t.Fatalf("expected access key, got %s", claims.Key())
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		if _, err := s.ParseToken(access, RefreshToken); !errors.Is(err, ErrWrongTokenType) {
			t.Fatalf("expected ErrWrongTokenType, got %v", err)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		if _, err := newTestService("other").ParseToken(access, AccessToken); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("refresh key", func(t *testing.T) {
		refresh, refreshID, err := s.GenerateRefreshToken(userID, "patient@example.com", 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		claims, err := s.ParseToken(refresh, RefreshToken)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if claims.Key() != RefreshTokenKey(userID, refreshID) {
			t.Fatalf("expected refresh key, got %s", claims.Key())
		}
	})
}
