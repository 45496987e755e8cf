package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatline/infrastructure/db"
	"chatline/infrastructure/ws"
	httpDelivery "chatline/internal/delivery/http"
	wsDelivery "chatline/internal/delivery/websocket"
	"chatline/internal/metrics"
	"chatline/internal/notify"
	"chatline/internal/presence"
	"chatline/internal/repository"
	"chatline/internal/transcription"
	"chatline/internal/usecase"
	"chatline/pkg/jwt"
	"chatline/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("godotenv: error loading .env file")
	}
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoUri := os.Getenv("MONGODB_URI")
	mongoDbName := os.Getenv("MONGODB_DATABASE")
	mongoDb, err := db.NewMongoStore(ctx, mongoUri, mongoDbName)
	if err != nil {
		logger.Log.Error("mongodb connect failed", "err", err)
		os.Exit(1)
	}
	defer mongoDb.Close(context.Background())

	if err := mongoDb.EnsureIndexes(ctx); err != nil {
		logger.Log.Error("mongodb index creation failed", "err", err)
		os.Exit(1)
	}

	logger.Log.Info("connected to mongodb", "database", mongoDbName)

	messageRepo := repository.NewMessageRepository(*mongoDb.DB)
	memberRepo := repository.NewMemberRepository(*mongoDb.DB)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-this-in-production" // Default for development
		logger.Log.Warn("using default JWT secret, set JWT_SECRET in .env for production")
	}
	jwtManager := jwt.NewManager(jwtSecret)

	// Redis, when configured, backs both cross-instance fanout and the
	// shared presence registry.
	redisAddr := os.Getenv("REDIS_ADDR")
	var redisClient *redis.Client
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Log.Error("redis connect failed", "addr", redisAddr, "err", err)
			os.Exit(1)
		}
	}

	var hub ws.IHub
	var presenceStore presence.Store
	if redisClient != nil {
		serverID := os.Getenv("SERVER_ID")
		if serverID == "" {
			serverID = "server-1" // Default
		}
		logger.Log.Info("using redis hub", "addr", redisAddr, "server", serverID)
		hub = ws.NewRedisHub(redisClient, serverID)
		presenceStore = presence.NewRedisStore(redisClient)
	} else {
		logger.Log.Info("using in-memory hub (single server)")
		hub = ws.NewHub()
		presenceStore = presence.NewMemoryStore()
	}

	notifier := notify.NewHubNotifier(hub, memberRepo)

	recognizerBin := os.Getenv("RECOGNIZER_BIN")
	if recognizerBin == "" {
		recognizerBin = "whisper"
	}
	recognizerLang := os.Getenv("RECOGNIZER_LANG")
	if recognizerLang == "" {
		recognizerLang = "ru"
	}
	transcribeDir := os.Getenv("TRANSCRIBE_DIR")
	if transcribeDir == "" {
		transcribeDir = os.TempDir()
	}

	queue := transcription.NewMemoryQueue()
	recognizer := transcription.NewCLIRecognizer(recognizerBin, recognizerLang, transcribeDir)
	pipeline := transcription.NewPipeline(queue, recognizer, messageRepo, notifier)

	messageUc := usecase.NewMessageUsecase(messageRepo, notifier, pipeline)
	readUc := usecase.NewReadUsecase(messageRepo, memberRepo, notifier)
	memberUc := usecase.NewMemberUsecase(memberRepo, presenceStore)

	websocketH := wsDelivery.NewWebsocketHandler(hub, jwtManager, presenceStore, messageUc, readUc)
	hub.SetOnClientUnregister(websocketH.HandleClientDisconnect)

	go hub.Run()
	go pipeline.Run(ctx)

	metrics.RegisterOnlineUsers(presenceStore.OnlineCount)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	httpH := httpDelivery.NewHttpHandler(messageUc, readUc, memberUc, pipeline)
	authMiddleware := httpDelivery.NewAuthMiddleware(jwtManager)
	httpDelivery.MapHttpRoutes(router, httpH, websocketH, authMiddleware)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Log.Info("http server is running", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("http shutdown failed", "err", err)
	}
	queue.Close()
}
