package handler

import (
	"net/http"
	"time"

	"distill-client/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(cfg *config.Config, h *BridgeHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     cfg.CORS.AllowedHeaders,
			ExposeHeaders:    cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
			authGroup.POST("/signup", h.Signup)
			authGroup.POST("/logout", h.Logout)
		}

		api.GET("/state", h.GetState)
		api.GET("/events", h.Events)
		api.GET("/preferences", h.GetPreferences)
		api.PUT("/preferences", h.UpdatePreferences)

		protected := api.Group("", h.RequireAuth)
		{
			protected.POST("/sessions", h.CreateSession)
			protected.PUT("/sessions/:id", h.RenameSession)
			protected.DELETE("/sessions/:id", h.DeleteSession)
			protected.POST("/sessions/:id/activate", h.ActivateSession)
			protected.GET("/sessions/:id/messages", h.GetMessages)
			protected.POST("/chat", h.Chat)
			protected.GET("/handoff/:kind", h.TakeHandoff)
			protected.DELETE("/handoff/:kind", h.DismissHandoff)
		}
	}

	return router
}
