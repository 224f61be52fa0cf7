package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"collab-service/internal/config"
	"collab-service/internal/db"
	"collab-service/internal/handlers"
	"collab-service/internal/identity"
	"collab-service/internal/middleware"
	"collab-service/internal/observability"
	"collab-service/internal/rabbitmq"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
	"collab-service/internal/ws"
)

const serviceName = "collab-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	if cfg.AMQPURL != "" {
		obsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("observability publisher unavailable", zap.Error(err))
		} else {
			observability.SetPublisher(obsPublisher)
			defer obsPublisher.Close()
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "audit.collab", serviceName, cfg.Environment, logger)

	userRepo := repositories.NewUserRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	taskRepo := repositories.NewTaskRepo(database)

	verifier := identity.NewVerifier(cfg.JWTSecret)

	hub := ws.NewHub(logger)
	wsHandler := ws.NewHandler(hub, groupRepo, messageRepo, userRepo, verifier, logger)

	groupHandler := handlers.NewGroupHandler(groupRepo, userRepo, audit)
	messageHandler := handlers.NewMessageHandler(groupRepo, messageRepo, audit)
	taskHandler := handlers.NewTaskHandler(taskRepo, groupRepo, userRepo, audit)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	auth := middleware.AuthMiddleware(verifier, userRepo, logger)

	router.POST("/groups", auth, groupHandler.CreateGroup)
	router.GET("/groups", auth, groupHandler.ListGroups)
	router.GET("/groups/:group_id", auth, groupHandler.GetGroup)
	router.POST("/groups/join/:invite_code", auth, groupHandler.JoinGroup)
	router.POST("/groups/:group_id/faculty", auth, groupHandler.AddFaculty)

	router.GET("/groups/:group_id/messages", auth, messageHandler.GetGroupMessages)
	router.GET("/groups/:group_id/messages/search", auth, messageHandler.SearchMessages)

	router.POST("/tasks", auth, taskHandler.CreateTask)
	router.GET("/tasks/my", auth, taskHandler.MyTasks)
	router.GET("/tasks/group/:group_id", auth, taskHandler.GroupTasks)
	router.GET("/tasks/stats/:group_id", auth, taskHandler.Stats)
	router.PATCH("/tasks/:task_id/status", auth, taskHandler.UpdateStatus)
	router.PATCH("/tasks/:task_id/feedback", auth, taskHandler.SubmitFeedback)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, cfg.Debug)

	logger.Info("starting collab service", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
