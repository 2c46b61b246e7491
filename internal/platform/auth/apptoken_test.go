package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMintAndVerifyAppToken(t *testing.T) {
	issuer, err := NewAppTokenIssuer("unit-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewAppTokenIssuer: %v", err)
	}

	token, err := issuer.MintProjectScopedToken(context.Background(), "user-1", "proj-1", "automation run", []string{ScopeProfileRead, ScopeReportResults})
	if err != nil {
		t.Fatalf("MintProjectScopedToken: %v", err)
	}
	if !strings.HasPrefix(token, "automate_app_v1.") {
		t.Errorf("token %q lacks prefix", token)
	}

	claims, err := VerifyAppToken("unit-test-secret", token, time.Now())
	if err != nil {
		t.Fatalf("VerifyAppToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.ProjectID != "proj-1" {
		t.Errorf("claims = %+v", claims)
	}
	if len(claims.Scopes) != 2 || claims.Scopes[1] != ScopeReportResults {
		t.Errorf("scopes = %v", claims.Scopes)
	}
	if claims.TokenID == "" {
		t.Error("token id missing")
	}
}

func TestVerifyAppTokenRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewAppTokenIssuer("secret-a", time.Hour)
	token, err := issuer.MintProjectScopedToken(context.Background(), "user-1", "proj-1", "", []string{ScopeProfileRead})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := VerifyAppToken("secret-b", token, time.Now()); !errors.Is(err, ErrAppTokenInvalid) {
		t.Errorf("error = %v; want ErrAppTokenInvalid", err)
	}
}

func TestVerifyAppTokenRejectsTampering(t *testing.T) {
	issuer, _ := NewAppTokenIssuer("secret-a", time.Hour)
	token, err := issuer.MintProjectScopedToken(context.Background(), "user-1", "proj-1", "", []string{ScopeProfileRead})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(token, ".")
	other, _ := GenerateAppToken("secret-a", AppTokenClaims{
		UserID:        "user-2",
		ProjectID:     "proj-1",
		Scopes:        []string{ScopeStreamsWrite},
		ExpiresAtUnix: time.Now().Add(time.Hour).Unix(),
	}, time.Now())
	otherParts := strings.Split(other, ".")

	forged := strings.Join([]string{parts[0], otherParts[1], parts[2]}, ".")
	if _, err := VerifyAppToken("secret-a", forged, time.Now()); !errors.Is(err, ErrAppTokenInvalid) {
		t.Errorf("error = %v; want ErrAppTokenInvalid", err)
	}
}

func TestVerifyAppTokenExpired(t *testing.T) {
	now := time.Now()
	token, err := GenerateAppToken("secret-a", AppTokenClaims{
		UserID:        "user-1",
		ProjectID:     "proj-1",
		Scopes:        []string{ScopeProfileRead},
		ExpiresAtUnix: now.Add(time.Minute).Unix(),
	}, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := VerifyAppToken("secret-a", token, now.Add(2*time.Minute)); !errors.Is(err, ErrAppTokenExpired) {
		t.Errorf("error = %v; want ErrAppTokenExpired", err)
	}
}

func TestVerifyAppTokenMalformed(t *testing.T) {
	for _, token := range []string{"", "abc", "automate_app_v1.only-two", "wrong_prefix.payload.sig"} {
		if _, err := VerifyAppToken("secret-a", token, time.Now()); !errors.Is(err, ErrAppTokenInvalid) {
			t.Errorf("VerifyAppToken(%q) = %v; want ErrAppTokenInvalid", token, err)
		}
	}
}
