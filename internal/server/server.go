package server

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tandemhq/tandem-api/internal/config"
	"github.com/tandemhq/tandem-api/internal/middleware"
	"github.com/tandemhq/tandem-api/internal/modules/broadcast"

	broadcastHttp "github.com/tandemhq/tandem-api/internal/modules/broadcast/delivery/http"

	gamificationHttp "github.com/tandemhq/tandem-api/internal/modules/gamification/delivery/http"
	gamificationRepo "github.com/tandemhq/tandem-api/internal/modules/gamification/repository"
	gamificationService "github.com/tandemhq/tandem-api/internal/modules/gamification/service"

	journeyHttp "github.com/tandemhq/tandem-api/internal/modules/journey/delivery/http"
	journeyRepo "github.com/tandemhq/tandem-api/internal/modules/journey/repository"
	journeyService "github.com/tandemhq/tandem-api/internal/modules/journey/service"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	broadcaster := broadcast.NewRedisBroadcaster(redisClient)

	gamRepo := gamificationRepo.NewGamificationRepository(db)
	gamSvc := gamificationService.NewGamificationService(gamRepo, broadcaster, cfg.StoreTimeout)
	gamHandler := gamificationHttp.NewGamificationHandler(gamSvc)

	jRepo := journeyRepo.NewJourneyRepository(db)
	jSvc := journeyService.NewJourneyService(jRepo, broadcaster, cfg.StoreTimeout)
	jHandler := journeyHttp.NewJourneyHandler(jSvc)

	updatesHandler := broadcastHttp.NewUpdatesHandler(redisClient)

	// Streak sweep: resets streaks whose owner skipped the prior day window
	go func() {
		ticker := time.NewTicker(cfg.StreakSweepInterval)
		defer ticker.Stop()

		for range ticker.C {
			reset, err := gamSvc.SweepStaleStreaks(context.Background())
			if err != nil {
				log.Printf("Streak sweep failed: %v", err)
				continue
			}
			if reset > 0 {
				log.Printf("Streak sweep reset %d stale streaks", reset)
			}
		}
	}()

	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	api := router.Group("/api")

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Gamification routes
		protected.POST("/activities", gamHandler.RecordActivity)
		protected.GET("/stats", gamHandler.GetStats)
		protected.GET("/badges", gamHandler.GetBadges)

		// Journey routes
		protected.POST("/journeys/:journey_id/start", jHandler.StartJourney)
		protected.GET("/journeys/:journey_id", jHandler.GetProgress)
		protected.POST("/journeys/:journey_id/days", jHandler.AdvanceDay)
		protected.POST("/journeys/:journey_id/ack", jHandler.AcknowledgeSync)

		// Live updates
		protected.GET("/updates/ws", updatesHandler.HandleWebSocket)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
	}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
