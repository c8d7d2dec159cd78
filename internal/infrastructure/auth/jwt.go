// Package auth verifies hosted-backend access tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/elyphant/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidAudience  = errors.New("token audience mismatch")
	ErrMissingUserID    = errors.New("missing or malformed sub claim")
	ErrSecretNotSet     = errors.New("jwt secret is not configured")
)

// AppMetadata is the server-controlled metadata block of an access token
type AppMetadata struct {
	Provider string `json:"provider,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Claims are the access token claims this service reads
type Claims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	SessionID   string      `json:"session_id,omitempty"`
}

// Principal is the authenticated caller derived from a verified token
type Principal struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

// Verifier validates HS256 access tokens signed with the project JWT secret
type Verifier struct {
	secret    []byte
	audience  string
	adminRole string
	leeway    time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier from the jwt config section
func NewVerifier(cfg config.JWTConfig) *Verifier {
	adminRole := cfg.AdminRole
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Verifier{
		secret:    []byte(cfg.Secret),
		audience:  cfg.Audience,
		adminRole: adminRole,
		leeway:    30 * time.Second,
		now:       time.Now,
	}
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Verify validates signature, expiry and audience and returns the caller
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if len(v.secret) == 0 {
		return nil, ErrSecretNotSet
	}
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidAudience
		default:
			return nil, ErrInvalidToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrMissingUserID
	}

	return &Principal{
		UserID:  userID,
		Email:   claims.Email,
		IsAdmin: claims.AppMetadata.Role == v.adminRole,
	}, nil
}

// Sign issues a token for claims. Production tokens come from the hosted backend;
// this is used by the CLI and tests.
func (v *Verifier) Sign(claims *Claims) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrSecretNotSet
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// NewClaims builds access token claims for userID valid for ttl
func (v *Verifier) NewClaims(userID uuid.UUID, email string, admin bool, ttl time.Duration) *Claims {
	now := v.now()
	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  "authenticated",
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	if admin {
		c.AppMetadata.Role = v.adminRole
	}
	return c
}
