package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims identify a browser session and the anonymous user behind it
type SessionClaims struct {
	SessionID string    `json:"sid"`
	UserID    uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

// JWTService signs and validates session cookies
type JWTService struct {
	secret []byte
	maxAge time.Duration
}

func NewJWTService(secret string, maxAge time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), maxAge: maxAge}
}

// GenerateToken issues a signed token for a session
func (s *JWTService) GenerateToken(sessionID string, userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateToken parses a token and checks signature and expiry
func (s *JWTService) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.SessionID == "" || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// MaxAge is how long an issued session stays valid
func (s *JWTService) MaxAge() time.Duration {
	return s.maxAge
}
