package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/controller"
	"coder_edu_quiz/internal/repository"
	"coder_edu_quiz/internal/service"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/configwatcher"
	"coder_edu_quiz/pkg/database"
	"coder_edu_quiz/pkg/logger"
	"coder_edu_quiz/pkg/monitoring"
	"coder_edu_quiz/pkg/security"
	"coder_edu_quiz/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)

	limiter        *security.Limiter
	tracerProvider *sdktrace.TracerProvider
	publisher      *service.AMQPPublisher
	cancel         context.CancelFunc
}

type repositories struct {
	quiz    *repository.QuizRepository
	attempt *repository.AttemptRepository
}

type services struct {
	storage     *service.StorageService
	definitions *service.QuizDefinitionService
	sessions    *service.QuizSessionService
	hub         *service.SessionHub
}

type controllers struct {
	quiz    *controller.QuizController
	catalog *controller.CatalogController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) reloadConfig(cfg *config.Config) {
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		quiz:    repository.NewQuizRepository(db),
		attempt: repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(&cfg.Storage)
	s.definitions = service.NewQuizDefinitionService(repos.quiz, rdb, cfg.Quiz.DefinitionCacheTTL)
	s.hub = service.NewSessionHub()

	var publisher service.EventPublisher = service.LogPublisher{}
	if cfg.Events.Enabled {
		p, err := service.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			// 消息队列不可用不影响答题，只是下游收不到事件
			logger.Log.Error("Failed to connect rabbitmq, attempt events will only be logged", zap.Error(err))
		} else {
			a.publisher = p
			publisher = p
		}
	}

	s.sessions = service.NewQuizSessionService(s.definitions, repos.attempt, cfg.Quiz,
		service.WithArchiver(s.storage),
		service.WithEventPublisher(publisher),
		service.WithLivePusher(s.hub),
	)

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		if err := s.sessions.ApplyConfig(newCfg.Quiz); err != nil {
			logger.Log.Error("Rejected quiz config", zap.Error(err))
			return
		}
		s.definitions.SetTTL(newCfg.Quiz.DefinitionCacheTTL)
	})

	return s
}

func (a *App) initControllers(repos *repositories, s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		quiz:    controller.NewQuizController(s.sessions, s.definitions, s.hub),
		catalog: controller.NewCatalogController(repos.quiz, repos.attempt),
		health:  controller.NewHealthController(db, rdb, s.sessions),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests*10, time.Minute)) // 按IP的总量限制

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())

	// 按用户限流，挂在认证之后
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	a.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, window, security.ByContextKey(util.ContextUserIDKey))
}

func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	go s.hub.Run(ctx)
	go s.sessions.Run(ctx)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := a.limiter.Cleanup(); removed > 0 {
					logger.Log.Debug("Rate limiter entries cleaned", zap.Int("removed", removed))
				}
			}
		}
	}()

	if a.Config.ConfigDir != "" {
		go configwatcher.WatchConfig(ctx, filepath.Join(a.Config.ConfigDir, "config.yaml"), a.reloadConfig)
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(logger.Options{Mode: cfg.Server.Mode})
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.ForceMigrate || cfg.Server.Mode != "release"
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 只做定义缓存，连不上时直接读库
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, quiz definitions will not be cached", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	// 监控初始化
	monitoring.Init()

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(repos, services, db, rdb)

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.startBackgroundTasks(ctx, services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 停止计时与推送，等待已完成作答写入
	a.cancel()
	if err := a.services.sessions.Wait(ctx); err != nil {
		logger.Log.Warn("Pending quiz attempts not persisted before shutdown", zap.Error(err))
	}

	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	log.Println("Server exiting")
}
