package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTokenRoundTrip(t *testing.T) {
	userID := primitive.NewObjectID()
	tok, err := GenerateToken("secret", userID, PurposeLogin, "summer", LoginTokenTTL, time.Now())
	require.NoError(t, err)

	claims, err := ParseToken("secret", tok, PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, "summer", claims.EventSlug)

	id, err := claims.UserObjectID()
	require.NoError(t, err)
	assert.Equal(t, userID, id)
}

func TestParseTokenRejects(t *testing.T) {
	userID := primitive.NewObjectID()
	login, err := GenerateToken("secret", userID, PurposeLogin, "", LoginTokenTTL, time.Now())
	require.NoError(t, err)

	_, err = ParseToken("other", login, PurposeLogin)
	assert.Error(t, err, "bad signature")

	_, err = ParseToken("secret", login, PurposeSession)
	assert.Error(t, err, "login token used as session")

	expired, err := GenerateToken("secret", userID, PurposeSession, "", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseToken("secret", expired, PurposeSession)
	assert.Error(t, err, "expired")
}
