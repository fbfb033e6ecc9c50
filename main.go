package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/grpcserver"
	"messaging-service/internal/handlers"
	"messaging-service/internal/media"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("amqp publisher: mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	eventBus := observability.NewEventBus(publisher, cfg.ServiceName)
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	store, err := media.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("failed to prepare upload dir: %v", err)
	}

	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	favoriteRepo := repositories.NewFavoriteRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub()
	delivery := services.NewDelivery(hub, convRepo, eventBus)
	ledger := services.NewLedger(convRepo, messageRepo, delivery)
	directory := services.NewDirectory(convRepo, favoriteRepo, userRepo, cfg.PhoneRegion)

	validator := auth.NewJWTValidator(cfg.JWTSecret)

	conversationHandler := handlers.NewConversationHandler(directory, ledger, auditEmitter)
	messageHandler := handlers.NewMessageHandler(ledger)
	uploadHandler := handlers.NewUploadHandler(ledger, store, cfg.MaxUploadFiles, cfg.MaxUploadBytes)
	favoriteHandler := handlers.NewFavoriteHandler(directory)
	socketHandler := ws.NewSocketHandler(hub, validator, ledger, delivery, eventBus, cfg.StrictRoomJoin)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", cfg.UploadDir)
	router.GET("/ws", socketHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(validator)
	api := router.Group("/", authMiddleware)

	api.GET("/conversations", conversationHandler.ListConversations)
	api.POST("/conversations", conversationHandler.CreateConversation)
	api.POST("/conversations/by-phone", conversationHandler.CreateConversationByPhone)
	api.DELETE("/conversations/:conversation_id", conversationHandler.DeleteConversation)
	api.POST("/conversations/:conversation_id/members", conversationHandler.AddMembers)
	api.POST("/conversations/:conversation_id/read", conversationHandler.MarkRead)
	api.GET("/conversations/:conversation_id/messages", messageHandler.ListMessages)
	api.POST("/conversations/:conversation_id/messages", messageHandler.PostMessage)
	api.POST("/conversations/:conversation_id/uploads", uploadHandler.Upload)

	api.GET("/conversation-favorites", favoriteHandler.ListFavorites)
	api.POST("/conversation-favorites", favoriteHandler.AddFavorite)
	api.POST("/conversation-favorites/:conversation_id/toggle", favoriteHandler.ToggleFavorite)
	api.DELETE("/conversation-favorites/:conversation_id", favoriteHandler.RemoveFavorite)

	handlers.RegisterDebugRoutes(router, auditEmitter, hub, cfg.DebugRoutes)

	healthServer := grpcserver.New(cfg.ServiceName, database)
	healthServer.Refresh(ctx)
	go func() {
		if err := healthServer.Serve(":" + cfg.GRPCPort); err != nil {
			log.Printf("grpc server stopped: %v", err)
		}
	}()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				healthServer.Refresh(ctx)
			}
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("messaging-service listening: http=%s grpc=%s", cfg.Port, cfg.GRPCPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	healthServer.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("tracer shutdown: %v", err)
	}
}
