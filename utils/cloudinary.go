package utils

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/phillip/cobudget-go/models"
)

// smallTransform is the resize applied to the thumbnail URL of every upload.
const smallTransform = "c_fill,w_400,h_300"

var versionSegment = regexp.MustCompile(`^v\d+$`)

// Cloudinary stores dream images.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %v", err)
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

// UploadImage uploads file and returns the full-size URL together with a
// resized variant of the same asset.
func (c *Cloudinary) UploadImage(ctx context.Context, file multipart.File) (models.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	uploadResp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder: c.folder,
	})
	if err != nil {
		return models.Image{}, fmt.Errorf("upload error: %v", err)
	}
	if uploadResp.Error.Message != "" {
		return models.Image{}, fmt.Errorf("upload error: %s", uploadResp.Error.Message)
	}

	return models.Image{
		Small: ThumbnailURL(uploadResp.SecureURL),
		Large: uploadResp.SecureURL,
	}, nil
}

// DeleteImage removes the asset behind imageURL. Either variant URL works.
func (c *Cloudinary) DeleteImage(ctx context.Context, imageURL string) error {
	publicID, err := ExtractPublicID(imageURL)
	if err != nil {
		return fmt.Errorf("could not extract public ID: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	return nil
}

// ThumbnailURL inserts the small transformation right after /upload/.
func ThumbnailURL(secureURL string) string {
	const marker = "/upload/"
	i := strings.Index(secureURL, marker)
	if i < 0 {
		return secureURL
	}
	i += len(marker)
	return secureURL[:i] + smallTransform + "/" + secureURL[i:]
}

// ExtractPublicID turns
// https://res.cloudinary.com/demo/image/upload/c_fill,w_400/v1234567890/dreams/abc123.jpg
// into dreams/abc123.
func ExtractPublicID(imageURL string) (string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	start := -1
	for i, p := range parts {
		if p == "upload" {
			start = i + 1
			break
		}
	}
	if start < 0 || start >= len(parts) {
		return "", fmt.Errorf("invalid cloudinary URL format")
	}

	rest := parts[start:]
	// transformations contain commas; the version looks like v123
	for len(rest) > 1 && (strings.Contains(rest[0], ",") || versionSegment.MatchString(rest[0])) {
		rest = rest[1:]
	}

	joined := path.Join(rest...)
	return strings.TrimSuffix(joined, path.Ext(joined)), nil
}
