// Package controllers holds the REST handlers that sit next to the GraphQL endpoint.
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/utils"
)

// respondError writes err as {"error", "code"}. Errors without a known kind are
// logged and reported as internal.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		utils.LogError("http_internal", err, map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": c.GetString("request_id"),
		})
		c.JSON(status, gin.H{"error": "internal error", "code": apperrors.KindInternal})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperrors.KindOf(err)})
}
