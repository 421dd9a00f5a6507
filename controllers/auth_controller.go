package controllers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/cobudget-go/config"
	"github.com/phillip/cobudget-go/services"
	"github.com/phillip/cobudget-go/utils"
)

// ---------------- VERIFY MAGIC LINK ----------------

// VerifyMagicLink is the target of emailed login links. It sets the session
// cookie and sends the browser to the event the link was issued for.
func VerifyMagicLink(cfg *config.Config, svc *services.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := svc.VerifyMagicLink(ctx, token)
		if err != nil {
			respondError(c, err)
			return
		}

		setSessionCookie(c, cfg, res.SessionToken, int(utils.SessionTokenTTL.Seconds()))

		target := cfg.AppURL + "/"
		if res.Event != nil {
			target += url.PathEscape(res.Event.Slug)
		}
		c.Redirect(http.StatusFound, target)
	}
}

// ---------------- LOGOUT ----------------
func Logout(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		setSessionCookie(c, cfg, "", -1)
		c.Status(http.StatusNoContent)
	}
}

func setSessionCookie(c *gin.Context, cfg *config.Config, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, value, maxAge, "/", "", cfg.CookieSecure, true)
}

// ---------------- HEALTH ----------------
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
