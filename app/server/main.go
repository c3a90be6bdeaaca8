package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/alakhotia160011/voxbharat-sub000/config"
	"github.com/alakhotia160011/voxbharat-sub000/internal/api/handlers"
	"github.com/alakhotia160011/voxbharat-sub000/internal/api/middleware"
	"github.com/alakhotia160011/voxbharat-sub000/internal/api/routes"
	"github.com/alakhotia160011/voxbharat-sub000/internal/cache"
	"github.com/alakhotia160011/voxbharat-sub000/internal/call"
	"github.com/alakhotia160011/voxbharat-sub000/internal/campaign"
	"github.com/alakhotia160011/voxbharat-sub000/internal/logger"
	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/convo"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/stt"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/telephony"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/tts"
	mongorepo "github.com/alakhotia160011/voxbharat-sub000/internal/repositories/mongo"
	"github.com/alakhotia160011/voxbharat-sub000/internal/repositories/postgres"
	"github.com/alakhotia160011/voxbharat-sub000/internal/services"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	if err := config.PostgresDB.AutoMigrate(&models.Campaign{}, &models.CampaignNumber{}); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	mongoName := os.Getenv("MONGO_DB")
	if mongoName == "" {
		mongoName = "voxbharat"
	}

	campaignRepo := postgres.NewCampaignRepo(config.PostgresDB)
	callRepo := mongorepo.NewCallRepo(config.MongoClient.Database(mongoName))
	redisCache := cache.NewRedisCache(config.RedisClient)

	archiveSvc := services.NewCallArchiveService(callRepo)
	registry := call.NewRegistry()
	quota := campaign.NewQuota(cfg.GlobalCallLimit)

	// scheduler and campaign service reference each other through
	// these variables; both exist before the server accepts traffic
	var sched *campaign.Scheduler
	var campaignSvc services.CampaignService

	baseDeps := call.Deps{
		TTS: tts.NewClient(cfg.TTSBaseURL, cfg.TTSAPIKey),
		ConnectRecognizer: func(ctx context.Context, language string) (call.Recognizer, error) {
			return stt.Connect(ctx, stt.Options{
				URL:      cfg.STTWSURL,
				APIKey:   cfg.STTAPIKey,
				Language: language,
				Logger:   log.WithField("component", "stt"),
			})
		},
		Greetings: redisCache,
		Archive:   archiveSvc.SaveCall,
		OnCompleted: func(callID, campaignID string, status models.CallStatus) {
			if campaignID == "" {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.OnCallCompleted(ctx, callID, campaignID, status)
		},
		Registry: registry,
		Logger:   log,
	}

	telClient := telephony.NewClient(cfg.TelephonyBaseURL, cfg.TelephonyAPIKey, cfg.TelephonyFromNumber)
	dialer := services.NewDialer(telClient, registry, baseDeps,
		func(systemPrompt, extractPrompt string) convo.Provider {
			return convo.NewOpenAIChat(cfg.OpenAIAPIKey, "", cfg.OpenAIModel, systemPrompt, extractPrompt)
		},
		cfg.PublicBaseURL, "hi-IN", log)

	sched = campaign.NewScheduler(campaignRepo, dialer.Initiate, quota, log, campaign.Options{
		Location: cfg.CampaignLocation,
		OnProgress: func(campaignID string, completed, failed int) {
			campaignSvc.PublishProgress(campaignID, completed, failed)
		},
	})
	campaignSvc = services.NewCampaignService(campaignRepo, sched, redisCache, log)

	// calls orphaned by an unclean shutdown cannot be resumed; park
	// their campaigns until an operator restarts them
	if err := campaignSvc.RecoverInterrupted(context.Background()); err != nil {
		log.WithError(err).Fatal("crash recovery error")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Campaign:      handlers.NewCampaignHandler(campaignSvc, archiveSvc),
		Webhooks:      handlers.NewTelephonyWebhookHandler(registry, cfg.PublicBaseURL, log),
		Media:         handlers.NewMediaStreamHandler(registry, telClient.EndCall, log),
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.TelephonyWebhookSecret,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
