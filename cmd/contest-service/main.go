package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena/internal/common/cache"
	"arena/internal/common/db"
	commonmw "arena/internal/common/http/middleware"
	"arena/internal/common/mq"
	"arena/internal/common/storage"
	"arena/internal/contest/controller"
	"arena/internal/contest/repository"
	"arena/internal/contest/service"
	"arena/internal/gateway"
	"arena/internal/judge/execclient"
	"arena/internal/judge/problem"
	judgeService "arena/internal/judge/service"
	"arena/internal/leaderboard"
	"arena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/contest_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaProducer(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	contestRepo := repository.NewContestRepository(mysqlDB, redisCache)
	registrationRepo := repository.NewRegistrationRepository(mysqlDB)
	submissionRepo := repository.NewSubmissionRepository(mysqlDB)

	board := leaderboard.NewStore()
	snapshots := leaderboard.NewSnapshotRepository(redisCache)

	hub, err := gateway.NewHub(gateway.HubConfig{
		Boards:    board,
		JWTSecret: []byte(appCfg.Gateway.JWTSecret),
		Heartbeat: appCfg.Gateway.Heartbeat,
		TopN:      appCfg.Gateway.TopN,
	})
	if err != nil {
		logger.Error(context.Background(), "init gateway hub failed", zap.Error(err))
		return
	}

	provider, err := problem.NewMinIOProvider(problem.MinIOProviderConfig{
		Storage: objStorage,
		Bucket:  appCfg.Judge.ProblemBucket,
	})
	if err != nil {
		logger.Error(context.Background(), "init problem provider failed", zap.Error(err))
		return
	}

	runner, err := execclient.NewClient(appCfg.Exec)
	if err != nil {
		logger.Error(context.Background(), "init exec client failed", zap.Error(err))
		return
	}

	lifecycle, err := service.NewLifecycleService(service.LifecycleConfig{
		ContestRepo:      contestRepo,
		RegistrationRepo: registrationRepo,
		Board:            board,
		Snapshots:        snapshots,
		Notifier:         hub,
		DB:               mysqlDB,
		MQ:               mqClient,
		EventTopic:       appCfg.EventTopic,
	})
	if err != nil {
		logger.Error(context.Background(), "init lifecycle service failed", zap.Error(err))
		return
	}

	registrations, err := service.NewRegistrationService(contestRepo, registrationRepo)
	if err != nil {
		logger.Error(context.Background(), "init registration service failed", zap.Error(err))
		return
	}

	queries, err := service.NewQueryService(contestRepo, registrationRepo, submissionRepo, board, snapshots)
	if err != nil {
		logger.Error(context.Background(), "init query service failed", zap.Error(err))
		return
	}

	orchestrator, err := judgeService.NewOrchestrator(judgeService.Config{
		ContestRepo:      contestRepo,
		RegistrationRepo: registrationRepo,
		SubmissionRepo:   submissionRepo,
		Provider:         provider,
		Runner:           runner,
		Board:            board,
		Notifier:         hub,
		DB:               mysqlDB,
		Cache:            redisCache,
		MQ:               mqClient,
		EventTopic:       appCfg.Judge.EventTopic,
		Workers:          appCfg.Judge.Workers,
		JudgeTimeout:     appCfg.Judge.JudgeTimeout,
		RateLimit: judgeService.RateLimitConfig{
			Max:    appCfg.Judge.RateLimitMax,
			Window: appCfg.Judge.RateLimitWindow,
		},
	})
	if err != nil {
		logger.Error(context.Background(), "init orchestrator failed", zap.Error(err))
		return
	}

	scheduler := service.NewScheduler(contestRepo, lifecycle, board, redisCache, appCfg.Scheduler.Tick)

	runCtx, stopBackground := context.WithCancel(context.Background())
	go scheduler.Run(runCtx)
	go hub.Run(runCtx)

	httpServer := buildHTTPServer(appCfg.Server, lifecycle, registrations, queries, orchestrator, hub)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		stopBackground()
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "contest http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	stopBackground()
	orchestrator.Wait()
}

func buildHTTPServer(
	cfg ServerConfig,
	lifecycle *service.LifecycleService,
	registrations *service.RegistrationService,
	queries *service.QueryService,
	orchestrator *judgeService.Orchestrator,
	hub *gateway.Hub,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	contestController := controller.NewContestController(lifecycle, registrations, queries, orchestrator)
	wsController := controller.NewWSController(hub)

	api := router.Group("/api/v1/contests")
	api.POST("", contestController.Create)
	api.GET("/:id", contestController.Get)
	api.POST("/:id/publish", contestController.Publish)
	api.POST("/:id/start", contestController.Start)
	api.POST("/:id/end", contestController.End)
	api.POST("/:id/cancel", contestController.Cancel)
	api.POST("/:id/disqualify", contestController.Disqualify)
	api.POST("/:id/announce", contestController.Announce)
	api.POST("/:id/registrations", contestController.Register)
	api.GET("/:id/registrations", contestController.ListRegistrations)
	api.POST("/:id/submissions", contestController.Submit)
	api.GET("/:id/submissions", contestController.ListSubmissions)
	api.GET("/:id/submissions/:sid", contestController.GetSubmission)
	api.GET("/:id/leaderboard", contestController.Leaderboard)

	router.GET("/ws", wsController.Serve)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
