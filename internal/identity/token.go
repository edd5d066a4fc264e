package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const maxIssuedAtSkew = 5 * time.Second

// Claims is the token contract: {userId, email, role, architectId?, buyerId?, iat, exp}.
// Role is decoded untyped so that array values can be told apart from unknown strings.
type Claims struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	Role        any    `json:"role"`
	ArchitectID string `json:"architectId,omitempty"`
	BuyerID     string `json:"buyerId,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks a bearer token and returns its identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// RevocationList reports revoked token ids.
type RevocationList interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// JWTVerifier validates HS256 tokens.
type JWTVerifier struct {
	secret  []byte
	issuer  string
	now     func() time.Time
	revoked RevocationList
}

// VerifierOption configures a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *JWTVerifier) { v.issuer = strings.TrimSpace(issuer) }
}

// WithClock overrides the wall clock used for exp and iat checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithRevocationList rejects tokens whose jti is listed.
func WithRevocationList(l RevocationList) VerifierOption {
	return func(v *JWTVerifier) { v.revoked = l }
}

var errMissingSecret = errors.New("identity: signing secret is not configured")

// NewJWTVerifier builds a verifier for tokens signed with secret.
func NewJWTVerifier(secret []byte, opts ...VerifierOption) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errMissingSecret
	}
	v := &JWTVerifier{
		secret: append([]byte(nil), secret...),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks signature, algorithm and timestamps. Every failure is ErrAuthenticationFailed
// wrapped with the cause.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrAuthenticationFailed)
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: unexpected claims", ErrAuthenticationFailed)
	}
	if err := v.validateClaims(claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if v.revoked != nil && claims.ID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: revocation lookup: %v", ErrAuthenticationFailed, err)
		}
		if revoked {
			return Identity{}, fmt.Errorf("%w: token revoked", ErrAuthenticationFailed)
		}
	}
	subject := strings.TrimSpace(claims.UserID)
	if subject == "" {
		subject = strings.TrimSpace(claims.Subject)
	}
	return Identity{
		Subject:     subject,
		Email:       claims.Email,
		RawRole:     claims.Role,
		ArchitectID: claims.ArchitectID,
		BuyerID:     claims.BuyerID,
		TokenID:     claims.ID,
	}, nil
}

// validateClaims repeats the time checks against the verifier clock so expiry
// never depends on library defaults.
func (v *JWTVerifier) validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.UserID) == "" && strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := v.now()
	if !now.Before(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return errors.New("token not yet valid")
	}
	if claims.IssuedAt.Time.After(now.Add(maxIssuedAtSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

// TokenRequest describes a token to mint.
type TokenRequest struct {
	UserID      string
	Email       string
	Role        Role
	ArchitectID string
	BuyerID     string
	Issuer      string
	TTL         time.Duration
	// IssuedAt defaults to the current time.
	IssuedAt time.Time
}

// GenerateToken signs an HS256 token for development and tests.
func GenerateToken(secret []byte, req TokenRequest) (string, error) {
	if len(secret) == 0 {
		return "", errMissingSecret
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return "", errors.New("identity: userID is required")
	}
	if !req.Role.Valid() {
		return "", fmt.Errorf("identity: unknown role %q", req.Role)
	}
	if req.TTL <= 0 {
		return "", errors.New("identity: ttl must be greater than zero")
	}
	iat := req.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}
	iat = iat.UTC()

	claims := Claims{
		UserID:      req.UserID,
		Email:       req.Email,
		Role:        string(req.Role),
		ArchitectID: req.ArchitectID,
		BuyerID:     req.BuyerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    req.Issuer,
			Subject:   req.UserID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(req.TTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ServiceTokenRequest describes a credential for an internal collaborator.
// Service tokens carry no role and never resolve to a Principal.
type ServiceTokenRequest struct {
	Subject  string
	Issuer   string
	TTL      time.Duration
	IssuedAt time.Time
}

// GenerateServiceToken signs a role-less HS256 token for a collaborator such
// as the payment service.
func GenerateServiceToken(secret []byte, req ServiceTokenRequest) (string, error) {
	if len(secret) == 0 {
		return "", errMissingSecret
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return "", errors.New("identity: service subject is required")
	}
	if req.TTL <= 0 {
		return "", errors.New("identity: ttl must be greater than zero")
	}
	iat := req.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}
	iat = iat.UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    req.Issuer,
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(req.TTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
