package utils

import (
	"fmt"
	"time"

	"ecdar-gateway/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess = "access"

	DefaultAccessTokenTTL = 15 * time.Minute
)

// JWTService signs and validates HS256 access tokens
type JWTService struct {
	secretKey []byte
}

func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
	}
}

// GenerateAccessToken signs an access token for the user, valid for ttl
func (j *JWTService) GenerateAccessToken(userID int64, ttl time.Duration) (string, int64, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	now := time.Now()
	expiry := now.Add(ttl)

	claims := &models.TokenClaims{
		UserID: userID,
		Type:   TokenTypeAccess,
		ID:     uuid.NewString(),
		Exp:    expiry.Unix(),
		Iat:    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	return tokenString, expiry.Unix(), nil
}

// ValidateToken checks signature, method and expiry
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	if time.Now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return claims, nil
}

// ValidateAccessToken validates the token and requires the access type
func (j *JWTService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", TokenTypeAccess, claims.Type)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("token has no user")
	}

	return claims, nil
}
