package app

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/controller"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/pkg/configwatcher"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/security"
	"exam_prep_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)

	ctx    context.Context
	cancel context.CancelFunc
}

type repositories struct {
	test      *repository.TestRepository
	attempt   *repository.AttemptRepository
	profile   *repository.StudentProfileRepository
	weakTopic *repository.WeakTopicRepository
	scoring   *repository.ScoringRepository
}

type services struct {
	scoring        *service.ScoringService
	profile        *service.StudentProfileService
	weakTopic      *service.WeakTopicService
	attempt        *service.AttemptService
	recommendation *service.RecommendationService
	test           *service.TestService
}

type controllers struct {
	scoring *controller.ScoringController
	student *controller.StudentController
	test    *controller.TestController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// reloadConfig 配置热更新，只有注册过回调的部分会生效
func (a *App) reloadConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	tests := repository.NewTestRepository(db, repository.NewTestCache(rdb, cfg.Scoring.CacheTTL))
	attempts := repository.NewAttemptRepository(db)
	topics := repository.NewWeakTopicRepository(db)
	return &repositories{
		test:      tests,
		attempt:   attempts,
		profile:   repository.NewStudentProfileRepository(db),
		weakTopic: topics,
		scoring:   repository.NewScoringRepository(db, tests, attempts, topics, cfg.Scoring.MaxSaveRetries),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	// 多实例部署时用 Redis 锁，单机退化为进程内锁
	var locker service.StudentLocker
	if rdb != nil {
		locker = repository.NewRedisStudentLocker(rdb, cfg.Scoring.LockTTL, cfg.Scoring.LockTTL)
	} else {
		locker = repository.NewLocalStudentLocker(cfg.Scoring.LockTTL)
	}

	s := &services{
		scoring:        service.NewScoringService(repos.scoring, locker, cfg.Scoring.IRTSettings()),
		profile:        service.NewStudentProfileService(repos.profile),
		weakTopic:      service.NewWeakTopicService(repos.weakTopic),
		attempt:        service.NewAttemptService(repos.attempt),
		recommendation: service.NewRecommendationService(repos.profile, repos.test),
		test:           service.NewTestService(repos.test),
	}

	a.RegisterConfigCallback(func(c *config.Config) {
		s.scoring.UpdateSettings(c.Scoring.IRTSettings())
		logger.Log.Info("Scoring settings updated",
			zap.Int("maxIterations", c.Scoring.MaxIterations),
			zap.Float64("tolerance", c.Scoring.Tolerance),
			zap.Float64("smoothingAlpha", c.Scoring.SmoothingAlpha))
	})
	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		scoring: controller.NewScoringController(s.scoring),
		student: controller.NewStudentController(s.profile, s.weakTopic, s.attempt, s.recommendation),
		test:    controller.NewTestController(s.test),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// Build 组装路由和依赖，不建立外部连接。rdb 可为 nil。
func Build(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		ConfigDir: "configs",
		DB:        db,
		Redis:     rdb,
		ctx:       ctx,
		cancel:    cancel,
	}

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)
	return app
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	app := Build(cfg, db, rdb)
	app.ConfigDir = configDir

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-prep-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}
	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		if err := configwatcher.Watch(a.ctx, a.ConfigDir, a.reloadConfig); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.Close(ctx)

	logger.Log.Info("Server exiting")
}

// Close 停止后台协程并释放连接
func (a *App) Close(ctx context.Context) {
	a.cancel()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
