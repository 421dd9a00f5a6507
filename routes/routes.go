package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/phillip/cobudget-go/config"
	"github.com/phillip/cobudget-go/controllers"
	"github.com/phillip/cobudget-go/graph"
	"github.com/phillip/cobudget-go/middleware"
	"github.com/phillip/cobudget-go/services"
)

// SetupRoutes mounts every endpoint on r. uploader may be nil when no image
// storage is configured.
func SetupRoutes(r *gin.Engine, cfg *config.Config, svc *services.Service, uploader controllers.ImageUploader) {
	r.Use(
		middleware.RequestLogger(),
		gin.Recovery(),
		cors.New(corsConfig(cfg)),
		middleware.RequestTime(nil),
		middleware.AuthMiddleware(cfg, svc),
		middleware.EventContext(),
	)

	// public
	r.GET("/health", controllers.Health())
	r.GET("/auth/verify", controllers.VerifyMagicLink(cfg, svc))
	r.POST("/auth/logout", controllers.Logout(cfg))

	r.POST("/graphql", gin.WrapH(&relay.Handler{Schema: graph.NewSchema(svc)}))

	events := r.Group("/events")
	{
		events.GET("", controllers.ListEvents(svc))
		events.GET("/:slug", controllers.GetEvent(svc))
	}

	// protected
	uploads := r.Group("/uploads")
	uploads.Use(middleware.RequireAuth())
	{
		uploads.POST("/images", controllers.UploadImages(uploader))
	}
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.EventHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"ETag", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.CORSOrigins
	}
	return c
}
