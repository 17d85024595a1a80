// Command fsmserver runs the FSM engine's HTTP replay/control surface (§6.6)
// over the demo Order entity, wiring configuration, storage, queueing,
// logging, metrics and the event bus the way the teacher's cmd/main.go
// wired its own application server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"apexfsm/internal/fsmapi"
	"apexfsm/internal/fsmbus"
	"apexfsm/internal/fsmconfig"
	"apexfsm/internal/fsmdb"
	"apexfsm/internal/fsmengine"
	"apexfsm/internal/fsmeventlog"
	"apexfsm/internal/fsmhost"
	"apexfsm/internal/fsmlog"
	"apexfsm/internal/fsmmetrics"
	"apexfsm/internal/fsmqueue"
	"apexfsm/internal/fsmregistry"
	"apexfsm/internal/logging"
	"apexfsm/internal/middleware"
	"apexfsm/pkg/models"
)

func main() {
	cfg, err := fsmconfig.Load()
	if err != nil {
		log.Fatalf("fsmserver: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fsmserver: invalid config: %v", err)
	}

	logging.Init()
	defer logging.Sync()
	zl := logging.L()

	driver := "sqlite"
	dsn := cfg.DatabaseURL
	if dsn != "" {
		driver = "postgres"
	}
	db, err := fsmdb.Open(fsmdb.Config{Driver: driver, DSN: dsn, LogLevel: gormlogger.Warn})
	if err != nil {
		zl.Fatal("connect database", zap.Error(err))
	}
	if err := fsmdb.Migrate(db); err != nil {
		zl.Fatal("migrate log tables", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Order{}); err != nil {
		zl.Fatal("migrate demo entity", zap.Error(err))
	}

	registry := fsmregistry.New()
	if err := registry.Register(orderDefinition()); err != nil {
		zl.Fatal("register order fsm definition", zap.Error(err))
	}

	container := fsmengine.NewMapContainer()
	registerDemoCallables(container)

	eventBus := fsmbus.New()
	hub := fsmbus.NewLiveHub()
	go hub.Run()
	eventBus.Subscribe(fsmbus.StateTransitioned, func(ev fsmbus.Event) {
		modelType, modelID := "", ""
		if entity, ok := ev.Model.(fsmhost.Entity); ok {
			modelType = entity.GetMorphClass()
			modelID = toModelID(entity.GetKey())
		}
		hub.PublishStateTransitioned(ev, modelType, modelID)
	})

	var queue *fsmqueue.Adapter
	if cfg.RedisURL != "" {
		redisClient, err := fsmqueue.NewRedisClient(fsmqueue.RedisConfigFromEnv(), zl)
		if err != nil {
			zl.Warn("redis unavailable, queued callables disabled", zap.Error(err))
		} else {
			queue = fsmqueue.NewAdapter(redisClient)
		}
	}

	actorResolver := fsmhost.ActorResolver(fsmhost.NoopActorResolver{})
	if cfg.JWTSecret != "" {
		actorResolver = fsmhost.NewJWTActorResolver([]byte(cfg.JWTSecret))
	}

	logger := fsmlog.New(db, zl, fsmlog.Config{
		Enabled:                 cfg.Logging.Enabled,
		LogFailures:             cfg.Logging.LogFailures,
		Structured:              cfg.Logging.Structured,
		Channel:                 cfg.Logging.Channel,
		ExcludedContextProperties: cfg.Logging.ExcludedContextProperties,
		ExceptionCharacterLimit: cfg.Logging.ExceptionCharacterLimit,
	})
	eventWriter := fsmeventlog.NewWriter(db, cfg.EventLogging.Enabled)

	engine := fsmengine.New(fsmengine.Options{
		Registry:        registry,
		Logger:          logger,
		EventWriter:     eventWriter,
		Metrics:         fsmmetrics.Get(),
		Bus:             eventBus,
		Actor:           actorResolver,
		Container:       container,
		Queue:           queue,
		DB:              db,
		UseTransactions: cfg.UseTransactions,
		LogUserSubject:  cfg.Verbs.LogUserSubject,
		ZapLogger:       zl,
	})

	loaders := fsmapi.NewLoaderRegistry()
	loaders.Register("Order", loadOrder)

	router := fsmapi.NewRouter(db, engine, registry, loaders)

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestID(), middleware.Logger(), middleware.Security())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Timeout(10 * time.Second))

	r.GET("/live", hub.HandleWebSocket)
	api := r.Group("/api/v1")
	router.Register(api)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		zl.Info("fsmserver listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	hub.Shutdown()
}

func loadOrder(db *gorm.DB, modelID string) (fsmhost.Entity, error) {
	var order models.Order
	if err := db.First(&order, "id = ?", modelID).Error; err != nil {
		return nil, err
	}
	return order.Entity(db), nil
}

func toModelID(key any) string {
	return fmt.Sprintf("%v", key)
}
