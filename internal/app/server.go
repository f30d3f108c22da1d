// internal/app/server.go
package app

import (
	"fmt"
	"log"

	"chargecast-service/internal/config"
	"chargecast-service/internal/db"
	activityHandler "chargecast-service/internal/handlers/activity"
	reconcileHandler "chargecast-service/internal/handlers/reconcile"
	"chargecast-service/internal/middleware"
	"chargecast-service/internal/pkg/apns"
	"chargecast-service/internal/repository/sessionstore"
	"chargecast-service/internal/service/delivery"
	"chargecast-service/internal/service/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- Session store -----
	var store sessionstore.Store
	switch s.cfg.SessionBackend {
	case "redis":
		redisClient, err := db.NewRedisClient(db.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			DB:       0,
			PoolSize: 10,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Println("[REDIS] ✅ Connected successfully")
		store = sessionstore.NewRedisStore(redisClient)
	default:
		logger.Warn("using in-memory session store; sessions will not survive a restart")
		store = sessionstore.NewMemoryStore()
	}

	// ----- Push channels -----
	apnsClient, err := apns.NewClient(s.cfg.APNS)
	if err != nil {
		// Provider-only operation is still viable.
		logger.Warn("direct push channel disabled", zap.Error(err))
	}
	providerClient := provider.NewClient(s.cfg.Provider, logger)

	if !apnsClient.Configured() && !providerClient.Configured() {
		logger.Warn("no push channel configured; reconcile cycles will only prune sessions")
	}

	// ----- Reconciler -----
	reconciler := delivery.NewReconciler(store, apnsClient, providerClient, delivery.Config{
		StaleAfter:    s.cfg.StaleAfter,
		MaxConcurrent: s.cfg.MaxConcurrent,
	}, logger)

	// ----- Handlers -----
	activityHandlerInst := activityHandler.NewActivityHandler(store, providerClient, logger)
	reconcileHandlerInst := reconcileHandler.NewReconcileHandler(reconciler, logger)

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		ActivityHandler:  activityHandlerInst,
		ReconcileHandler: reconcileHandlerInst,
	}
	SetupRouter(s.engine, s.cfg.RelaySecret, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
