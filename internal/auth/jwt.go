package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liveclass-backend/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidRole  = errors.New("token carries an unknown role")
)

// Identity is the verified identity of a connection. Resolved once from
// the credential handed to the coordinator; immutable afterwards.
type Identity struct {
	UserID      int64
	Role        model.Role
	DisplayName string
}

// Claims JWT claims issued by the auth service
type Claims struct {
	UserID      int64      `json:"user_id"`
	Role        model.Role `json:"role"`
	DisplayName string     `json:"display_name"`
	jwt.RegisteredClaims
}

// JWTManager verifies (and, for the auth service contract, issues) tokens.
type JWTManager struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewJWTManager creates a JWTManager.
func NewJWTManager(secretKey string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// GenerateAccessToken issues an access token.
func (m *JWTManager) GenerateAccessToken(userID int64, role model.Role, displayName string) (string, error) {
	claims := &Claims{
		UserID:      userID,
		Role:        role,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "liveclass-api",
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify validates a credential and resolves it to an Identity. This runs
// once per connection, before any protocol event is accepted.
func (m *JWTManager) Verify(credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrInvalidToken
	}

	claims, err := m.ValidateAccessToken(credential)
	if err != nil {
		return nil, err
	}

	if !claims.Role.Valid() {
		return nil, ErrInvalidRole
	}

	return &Identity{
		UserID:      claims.UserID,
		Role:        claims.Role,
		DisplayName: claims.DisplayName,
	}, nil
}

// ValidateAccessToken validates an access token and returns its claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
