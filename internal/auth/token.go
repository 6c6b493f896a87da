package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeAccess        = "access"
	PurposeActivation    = "activation"
	PurposePasswordReset = "password_reset"

	activationTTL    = 72 * time.Hour
	passwordResetTTL = time.Hour
	issuerName       = "ms-storefront"
)

var (
	ErrMissingSecret = errors.New("JWT secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongPurpose  = errors.New("token was issued for another purpose")
)

// Claims are the registered claims plus the token purpose.
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issuer signs and parses HS256 tokens for local accounts.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) IssueAccessToken(userID string) (string, time.Time, error) {
	return i.issue(userID, PurposeAccess, i.ttl)
}

func (i *Issuer) IssueActivationToken(userID string) (string, error) {
	token, _, err := i.issue(userID, PurposeActivation, activationTTL)
	return token, err
}

func (i *Issuer) IssuePasswordResetToken(userID string) (string, error) {
	token, _, err := i.issue(userID, PurposePasswordReset, passwordResetTTL)
	return token, err
}

func (i *Issuer) issue(userID, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(ttl)
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, expires, nil
}

// Parse validates signature, expiry and purpose, and returns the subject.
func (i *Issuer) Parse(tokenString, purpose string) (string, error) {
	claims, err := i.ParseClaims(tokenString, purpose)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseClaims is Parse returning every claim of the token.
func (i *Issuer) ParseClaims(tokenString, purpose string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject claim not found", ErrInvalidToken)
	}
	return &claims, nil
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}
