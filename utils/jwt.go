package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Token purposes. A login token only ever buys a session token.
const (
	PurposeLogin   = "login"
	PurposeSession = "session"
)

const (
	LoginTokenTTL   = 15 * time.Minute
	SessionTokenTTL = 30 * 24 * time.Hour
)

type Claims struct {
	UserID    string `json:"user_id"`
	Purpose   string `json:"purpose"`
	EventSlug string `json:"event,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserObjectID() (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(c.UserID)
}

// GenerateToken signs a token for userID. eventSlug is carried by login tokens so
// the verify step knows which event to join.
func GenerateToken(secret string, userID primitive.ObjectID, purpose, eventSlug string, ttl time.Duration, now time.Time) (string, error) {
	claims := &Claims{
		UserID:    userID.Hex(),
		Purpose:   purpose,
		EventSlug: eventSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Purpose != purpose {
		return nil, errors.New("wrong token purpose")
	}
	return claims, nil
}
