package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const TokenExpireDuration = time.Hour * 24

// ErrEmptySecret is returned when a token would be signed or checked with an empty HMAC key.
var ErrEmptySecret = errors.New("jwt secret key is empty")

type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWTToken signs an HS256 token for caller. Tokens are normally minted by the
// account service; studioctl uses this for local and scripted access.
func GenerateJWTToken(caller *models.Caller, secretKey string, ttl time.Duration) (string, error) {
	if secretKey == "" {
		return "", ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = TokenExpireDuration
	}
	now := time.Now()
	claims := &Claims{
		UserID: caller.UserID.String(),
		Email:  caller.Email,
		Role:   caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

func ValidateToken(tokenString string, secretKey string) (*Claims, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Caller converts verified claims into the principal used by the run service.
func (c *Claims) Caller() (*models.Caller, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id claim: %w", err)
	}
	role := c.Role
	if role == "" {
		role = models.UserRole
	}
	return &models.Caller{UserID: id, Email: c.Email, Role: role}, nil
}
