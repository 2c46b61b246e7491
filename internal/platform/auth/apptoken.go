package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const appTokenPrefix = "automate_app_v1"

// Scopes an execution-engine dispatch credential carries.
const (
	ScopeProfileRead   = "profile:read"
	ScopeStreamsRead   = "streams:read"
	ScopeStreamsWrite  = "streams:write"
	ScopeReportResults = "automate:report-results"
)

var (
	ErrAppTokenInvalid = errors.New("app token is invalid")
	ErrAppTokenExpired = errors.New("app token is expired")
)

// AppTokenClaims describes a short-lived credential limited to a single
// project and a fixed scope set.
type AppTokenClaims struct {
	TokenID       string   `json:"jti"`
	Name          string   `json:"name,omitempty"`
	UserID        string   `json:"user_id"`
	ProjectID     string   `json:"project_id"`
	Scopes        []string `json:"scopes"`
	IssuedAtUnix  int64    `json:"iat"`
	ExpiresAtUnix int64    `json:"exp"`
}

// AppTokenIssuer mints project-scoped dispatch credentials.
type AppTokenIssuer struct {
	Secret string
	TTL    time.Duration
}

func NewAppTokenIssuer(secret string, ttl time.Duration) (*AppTokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("app token secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AppTokenIssuer{Secret: secret, TTL: ttl}, nil
}

// MintProjectScopedToken issues a credential for userID limited to projectID
// and the given scopes.
func (i *AppTokenIssuer) MintProjectScopedToken(ctx context.Context, userID, projectID, name string, scopes []string) (string, error) {
	if i == nil {
		return "", errors.New("token issuer not initialized")
	}
	_ = ctx
	now := time.Now().UTC()
	return GenerateAppToken(i.Secret, AppTokenClaims{
		TokenID:       uuid.NewString(),
		Name:          strings.TrimSpace(name),
		UserID:        strings.TrimSpace(userID),
		ProjectID:     strings.TrimSpace(projectID),
		Scopes:        scopes,
		ExpiresAtUnix: now.Add(i.TTL).Unix(),
	}, now)
}

func GenerateAppToken(secret string, claims AppTokenClaims, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("secret is required")
	}
	claims.UserID = strings.TrimSpace(claims.UserID)
	claims.ProjectID = strings.TrimSpace(claims.ProjectID)
	if claims.UserID == "" {
		return "", errors.New("user_id is required")
	}
	if claims.ProjectID == "" {
		return "", errors.New("project_id is required")
	}
	if len(claims.Scopes) == 0 {
		return "", errors.New("scopes are required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if claims.IssuedAtUnix == 0 {
		claims.IssuedAtUnix = now.UTC().Unix()
	}
	if claims.ExpiresAtUnix == 0 {
		return "", errors.New("exp is required")
	}
	if claims.ExpiresAtUnix <= now.UTC().Unix() {
		return "", errors.New("exp must be in the future")
	}

	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	sigB64, err := computeAppTokenSignature(secret, payloadB64)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{appTokenPrefix, payloadB64, sigB64}, "."), nil
}

func VerifyAppToken(secret string, token string, now time.Time) (AppTokenClaims, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return AppTokenClaims{}, errors.New("secret is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != appTokenPrefix {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}
	payloadB64 := strings.TrimSpace(parts[1])
	sigB64 := strings.TrimSpace(parts[2])
	if payloadB64 == "" || sigB64 == "" {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}

	expectedB64, err := computeAppTokenSignature(secret, payloadB64)
	if err != nil {
		return AppTokenClaims{}, err
	}
	expectedSig, err := base64.RawURLEncoding.DecodeString(expectedB64)
	if err != nil {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}
	if !hmac.Equal(expectedSig, gotSig) {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}
	var claims AppTokenClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.ProjectID) == "" || claims.ExpiresAtUnix == 0 {
		return AppTokenClaims{}, ErrAppTokenInvalid
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if claims.ExpiresAtUnix <= now.UTC().Unix() {
		return AppTokenClaims{}, ErrAppTokenExpired
	}
	return claims, nil
}

func computeAppTokenSignature(secret string, payloadB64 string) (string, error) {
	payloadB64 = strings.TrimSpace(payloadB64)
	if payloadB64 == "" {
		return "", errors.New("payload is required")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte("automate-app-token-v1\n")); err != nil {
		return "", err
	}
	if _, err := mac.Write([]byte(payloadB64)); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
