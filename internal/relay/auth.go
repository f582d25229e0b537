package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 12 * time.Hour

var (
	// ErrNoToken is returned when a request carries no bearer token.
	ErrNoToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for tokens that fail validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims the relay issues and accepts.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 tokens. A nil *TokenService
// disables authentication: every request is allowed.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. ttl <= 0 means DefaultTokenTTL.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject with the given role.
func (s *TokenService) Issue(subject, role string) (string, error) {
	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses and verifies a token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize checks the bearer token of r. It fits wschannel.ServerOptions.Authorize.
func (s *TokenService) Authorize(r *http.Request) error {
	if s == nil {
		return nil
	}
	token := bearerToken(r)
	if token == "" {
		return ErrNoToken
	}
	_, err := s.Validate(token)
	return err
}

// Middleware rejects requests without a valid bearer token.
func (s *TokenService) Middleware(next http.Handler) http.Handler {
	if s == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.Authorize(r); err != nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
