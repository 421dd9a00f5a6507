package controllers

import (
	"context"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/utils"
)

const maxImagesPerUpload = 10

// ImageUploader stores an uploaded picture and returns its URL pair.
type ImageUploader interface {
	UploadImage(ctx context.Context, file multipart.File) (models.Image, error)
}

// ---------------- UPLOAD ----------------
func UploadImages(uploader ImageUploader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uploader == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image uploads are not configured"})
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
			return
		}

		files := form.File["images"] // key must be "images"
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no images provided"})
			return
		}
		if len(files) > maxImagesPerUpload {
			c.JSON(http.StatusBadRequest, gin.H{"error": "too many images"})
			return
		}

		images := make([]models.Image, 0, len(files))
		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
				return
			}

			ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
			img, err := uploader.UploadImage(ctx, file)
			cancel()
			file.Close()
			if err != nil {
				utils.LogError("image_upload", err, map[string]interface{}{
					"file":    fileHeader.Filename,
					"user_id": c.GetString("user_id"),
				})
				c.JSON(http.StatusBadGateway, gin.H{
					"error": "image upload failed",
					"file":  fileHeader.Filename,
				})
				return
			}
			images = append(images, img)
		}

		c.JSON(http.StatusCreated, gin.H{"images": images})
	}
}
