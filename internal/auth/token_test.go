package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/donormatch/internal/model"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService(testSecret, time.Hour)
	user := &model.User{ID: "user-1", Role: model.RoleRequester}

	token, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	p, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if p.UserID != "user-1" || p.Role != model.RoleRequester {
		t.Errorf("Principal = %+v", p)
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService(testSecret, time.Minute)
	issuedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(&model.User{ID: "user-1", Role: model.RoleDonor})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = svc.Verify(token)
	if !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if err.(*model.APIError).Message != "Token has expired" {
		t.Errorf("Message = %q", err.(*model.APIError).Message)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService(testSecret, time.Hour)
	other := NewTokenService("another-secret", time.Hour)
	foreign, err := other.Issue(&model.User{ID: "user-1", Role: model.RoleDonor})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	unknownRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "user-1",
		Role:   "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "user-1",
		Role:   "DONOR",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"wrong key":    foreign,
		"unknown role": unknownRole,
		"no expiry":    noExpiry,
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token)
			if !model.HasCategory(err, model.CategoryAuth) {
				t.Fatalf("expected auth error, got %v", err)
			}
		})
	}
}
