package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPublicID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1234567890/dreams/abc123.jpg", "dreams/abc123"},
		{"https://res.cloudinary.com/demo/image/upload/c_fill,w_400,h_300/v1234567890/dreams/abc123.jpg", "dreams/abc123"},
		{"https://res.cloudinary.com/demo/image/upload/abc123.png", "abc123"},
	}
	for _, tt := range tests {
		got, err := ExtractPublicID(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	_, err := ExtractPublicID("https://example.com/not/cloudinary.jpg")
	assert.Error(t, err)
}

func TestThumbnailURL(t *testing.T) {
	large := "https://res.cloudinary.com/demo/image/upload/v1/dreams/a.jpg"
	small := ThumbnailURL(large)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/c_fill,w_400,h_300/v1/dreams/a.jpg", small)

	// Both variants point at the same asset.
	a, err := ExtractPublicID(large)
	require.NoError(t, err)
	b, err := ExtractPublicID(small)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, "https://example.com/x.jpg", ThumbnailURL("https://example.com/x.jpg"))
}
