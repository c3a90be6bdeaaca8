package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/alakhotia160011/voxbharat-sub000/internal/api/handlers"
	"github.com/alakhotia160011/voxbharat-sub000/internal/api/middleware"
)

type Deps struct {
	Campaign *handlers.CampaignHandler
	Webhooks *handlers.TelephonyWebhookHandler
	Media    *handlers.MediaStreamHandler

	JWTSecret     string
	WebhookSecret string
	PublicBaseURL string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Telephony edge: provider-signed webhooks plus the media stream.
	hooks := r.Group("/webhooks/telephony")
	hooks.Use(middleware.WebhookSignature(d.WebhookSecret, d.PublicBaseURL))
	hooks.POST("/voice", d.Webhooks.Voice)
	hooks.POST("/status", d.Webhooks.Status)

	r.GET("/ws/media", d.Media.Stream)

	// Operator REST (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWTSecret))

	auth.POST("/campaigns", d.Campaign.Create)
	auth.GET("/campaigns/:campaign_id", d.Campaign.Get)
	auth.POST("/campaigns/:campaign_id/start", d.Campaign.Start)
	auth.POST("/campaigns/:campaign_id/pause", d.Campaign.Pause)
	auth.POST("/campaigns/:campaign_id/resume", d.Campaign.Resume)
	auth.POST("/campaigns/:campaign_id/cancel", d.Campaign.Cancel)
	auth.GET("/campaigns/:campaign_id/progress", d.Campaign.Progress)
	auth.GET("/campaigns/:campaign_id/calls", d.Campaign.ListCalls)
	auth.GET("/calls/:call_id", d.Campaign.GetCall)
}
