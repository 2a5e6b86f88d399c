package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/polegion-api/internal/config"
	"github.com/yourusername/polegion-api/internal/domain/repository"
	"github.com/yourusername/polegion-api/internal/handler"
	"github.com/yourusername/polegion-api/internal/middleware"
	memoryRepo "github.com/yourusername/polegion-api/internal/repository/memory"
	pgRepo "github.com/yourusername/polegion-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/polegion-api/internal/repository/redis"
	"github.com/yourusername/polegion-api/internal/service"
	"github.com/yourusername/polegion-api/internal/service/competitionmanager"
	ws "github.com/yourusername/polegion-api/internal/websocket"
	"github.com/yourusername/polegion-api/pkg/auth"
	"github.com/yourusername/polegion-api/pkg/database"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env нужен только для локальной разработки
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Printf("Server stopped with error: %v", err)
		os.Exit(1)
	}
	log.Println("Server exited gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	isProduction := gin.Mode() == gin.ReleaseMode

	// --- Хранилища ---
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), isProduction)
	if err != nil {
		return err
	}
	sqlDB, err := database.GetSQLDB(db)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.MigrateDB(db, cfg.Database.MigrationsPath); err != nil {
		return err
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = database.NewUniversalRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		log.Println("Successfully connected to Redis")
	}

	competitionRepo := pgRepo.NewCompetitionRepo(db)
	problemRepo := pgRepo.NewCompetitionProblemRepo(db)
	roomRepo := pgRepo.NewRoomRepo(db)
	identityRepo := pgRepo.NewIdentityRepo(db)
	leaderboardRepo := pgRepo.NewLeaderboardRepo(db)

	var cacheRepo repository.CacheRepository
	switch cfg.Leaderboard.CacheBackend {
	case "redis":
		cacheRepo, err = redisRepo.NewCacheRepo(redisClient)
		if err != nil {
			return err
		}
	default:
		memCache := memoryRepo.NewCacheRepo()
		memCache.StartJanitor(ctx, time.Minute)
		cacheRepo = memCache
	}

	// --- WebSocket ---
	var pubSub ws.PubSubProvider = ws.NoOpPubSub{}
	if cfg.WebSocket.Cluster.Enabled {
		redisPubSub, err := ws.NewRedisPubSub(redisClient)
		if err != nil {
			return err
		}
		defer redisPubSub.Close()
		pubSub = redisPubSub
	}

	// --- Сервисы ---
	smConfig := &competitionmanager.Config{
		DefaultTimerSec:     cfg.Competition.DefaultTimerSec,
		AutoAdvanceInterval: time.Duration(cfg.Competition.AutoAdvanceIntervalSec) * time.Second,
	}
	leaderboardService := service.NewLeaderboardService(leaderboardRepo, identityRepo, cacheRepo, service.LeaderboardOptions{
		CacheTTL:      time.Duration(cfg.Leaderboard.CacheTTLSeconds) * time.Second,
		MaxXPPerAward: cfg.Competition.MaxXPPerAward,
	})
	sequencer := competitionmanager.NewSequencer(problemRepo, smConfig.DefaultTimerSec)
	competitionService := service.NewCompetitionService(competitionRepo, problemRepo, roomRepo, leaderboardService, sequencer)

	hub := ws.NewHub()
	defer hub.Close()
	wsManager := ws.NewManager(hub, pubSub, competitionService, ws.ManagerOptions{
		InstanceID:     cfg.WebSocket.Cluster.InstanceID,
		ClusterChannel: cfg.WebSocket.Cluster.BroadcastChannel,
	})
	log.Printf("WebSocket manager started as %s (cluster=%t)", wsManager.InstanceID(), cfg.WebSocket.Cluster.Enabled)

	stateMachine := competitionmanager.NewStateMachine(competitionmanager.Dependencies{
		CompetitionRepo: competitionRepo,
		ProblemRepo:     problemRepo,
		Broadcaster:     wsManager,
		Config:          smConfig,
	})
	competitionmanager.NewAutoAdvancer(stateMachine, competitionRepo, smConfig.AutoAdvanceInterval).Start(ctx)

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		rateLimiter = middleware.NewRateLimiter(redisClient)
	}

	// --- HTTP ---
	competitionHandler := handler.NewCompetitionHandler(competitionService, stateMachine)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService, competitionService)
	wsHandler := handler.NewWSHandler(wsManager, cfg.Server.AllowedOrigins, cfg.WebSocket.ClientSendBuffer)

	router := gin.Default()
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws/health", gin.WrapF(ws.WebSocketHealthCheckHandler(hub)))
	router.GET("/ws", authMiddleware.RequireAuthWS(), wsHandler.HandleConnection)

	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())
	{
		api.GET("/ws/metrics", gin.WrapF(ws.WebSocketMetricsHandler(hub)))

		rooms := api.Group("/rooms/:id")
		rooms.Use(middleware.ExtractUintParam("id", "roomID"))
		{
			rooms.POST("/competitions", competitionHandler.CreateCompetition)
			rooms.GET("/competitions", competitionHandler.ListCompetitions)
			rooms.GET("/leaderboard", leaderboardHandler.GetRoomLeaderboard)
			rooms.GET("/leaderboard/export", leaderboardHandler.ExportRoomLeaderboard)
			rooms.GET("/competition-leaderboards", leaderboardHandler.GetCompetitionLeaderboards)
		}

		competitions := api.Group("/competitions/:id")
		competitions.Use(middleware.ExtractUintParam("id", "competitionID"))
		{
			competitions.GET("", competitionHandler.GetCompetition)
			competitions.GET("/problems", competitionHandler.ListProblems)
			competitions.POST("/problems", competitionHandler.AttachProblem)
			competitions.POST("/xp", rateLimiter.Limit(middleware.XPAwardRateLimitConfig()), competitionHandler.AwardXP)

			control := competitions.Group("")
			control.Use(rateLimiter.Limit(middleware.ControlRateLimitConfig()))
			{
				control.POST("/start", competitionHandler.Start)
				control.POST("/next", competitionHandler.Next)
				control.POST("/pause", competitionHandler.Pause)
				control.POST("/resume", competitionHandler.Resume)
				control.POST("/auto-advance", competitionHandler.AutoAdvance)
			}
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.WebSocket.Cluster.Enabled {
		g.Go(func() error {
			return wsManager.RunClusterSubscriber(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
