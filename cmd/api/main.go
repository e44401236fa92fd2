package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pollpulse/internal/config"
	"pollpulse/internal/engine"
	"pollpulse/internal/events"
	"pollpulse/internal/handler"
	"pollpulse/internal/middleware"
	"pollpulse/internal/presence"
	pollredis "pollpulse/internal/redis"
	"pollpulse/internal/repository"
	"pollpulse/internal/services"
	"pollpulse/internal/websocket"
	"pollpulse/pkg/database"
	"pollpulse/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.Server.Environment)
	logger.SetGlobalLogger(l)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.ApplyRawMigrations(db, "migrations"); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := pollredis.NewClient(pollredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	polls := repository.NewPollRepository(db)
	votes := repository.NewVoteStore(db)

	publisher := events.NewRedisPublisher(redisClient)
	stream := events.NewRedisStream(redisClient)
	joiner := presence.NewRedisBroker(redisClient, cfg.Engine.PresenceTTL)

	tallies := engine.NewTallyAggregator(polls, votes, stream, l, cfg.Engine.ReconcileInterval)
	tracker := engine.NewPresenceTracker(joiner, stream, l, cfg.Engine.PresenceAckTimeout)
	feeds := engine.NewFeedSynchronizer(polls, stream, l, cfg.Engine.FeedPageSize)

	pollService := services.NewPollService(polls, publisher, l)
	voteService := services.NewVoteService(polls, votes, publisher, l)

	limiter := pollredis.NewRateLimiter(redisClient, pollredis.DefaultRateLimitConfig())

	hub := websocket.NewHub()
	go hub.Run(context.Background())

	pollHandler := handler.NewPollHandler(pollService, tallies)
	voteHandler := handler.NewVoteHandler(voteService, tallies)
	wsHandler := websocket.NewHandler(hub, tallies, tracker, feeds, l)

	if cfg.Server.Environment == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(l))
	r.Use(middleware.ErrorHandler(l))
	r.Use(middleware.IdentityMiddleware(cfg.Auth.JWTSecret))

	v1 := r.Group("/v1")
	{
		v1.POST("/polls", middleware.PollCreationRateLimitMiddleware(limiter), pollHandler.Create)
		v1.GET("/polls", pollHandler.List)
		v1.GET("/polls/:id", pollHandler.Get)
		v1.DELETE("/polls/:id", pollHandler.Delete)
		v1.POST("/polls/:id/votes", middleware.VoteRateLimitMiddleware(limiter), voteHandler.Submit)
		v1.GET("/polls/:id/tally", voteHandler.Tally)
		v1.GET("/polls/:id/voted", voteHandler.HasVoted)
		v1.GET("/polls/:id/export/results.csv", pollHandler.ExportResults)
		v1.GET("/polls/:id/export/definition.csv", pollHandler.ExportDefinition)
		v1.GET("/ws", wsHandler.Connect)
	}

	l.Infof("Starting server on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
