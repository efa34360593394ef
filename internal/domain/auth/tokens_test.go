package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", OrganizationID: "o1", Role: RolePayrollAdmin}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if parsed.UserID != claims.UserID || parsed.OrganizationID != claims.OrganizationID || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("right", Claims{UserID: "u1", OrganizationID: "o1", Role: RoleViewer}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("wrong", token); err == nil {
		t.Fatal("expected signature error")
	}

	expired, err := GenerateToken("right", Claims{UserID: "u1", OrganizationID: "o1"}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("right", expired); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestParseTokenRequiresOrganization(t *testing.T) {
	token, err := GenerateToken("s", Claims{UserID: "u1", Role: RoleViewer}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("s", token); err == nil {
		t.Fatal("expected missing organization error")
	}
}
