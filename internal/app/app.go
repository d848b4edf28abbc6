package app

import (
	"context"
	"learnbridge_backend/internal/apiclient"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/controller"
	"learnbridge_backend/internal/realtime"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/service"
	"learnbridge_backend/pkg/configwatcher"
	"learnbridge_backend/pkg/database"
	"learnbridge_backend/pkg/logger"
	"learnbridge_backend/pkg/monitoring"
	"learnbridge_backend/pkg/security"
	"learnbridge_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configFile = "configs/config.yaml"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Hub             *realtime.Hub
	services        *services
	configCallbacks []func(*config.Config)
	closers         []func(context.Context) error
	cancel          context.CancelFunc
}

type repositories struct {
	user         *repository.UserRepository
	activity     *repository.ActivityRepository
	achievement  *repository.AchievementRepository
	notification *repository.NotificationRepository
	doctor       *repository.DoctorPatientRepository
}

type services struct {
	settings     *service.ProgressSettings
	access       *service.AccessPolicy
	auth         *service.AuthService
	storage      *service.StorageService
	achievement  *service.AchievementService
	notification *service.NotificationService
	activity     *service.ActivityService
	doctor       *service.DoctorService
	dashboard    *service.DashboardService
	assist       *service.AssistService
	jobs         *service.JobService
}

type controllers struct {
	auth         *controller.AuthController
	activity     *controller.ActivityController
	achievement  *controller.AchievementController
	notification *controller.NotificationController
	doctor       *controller.DoctorController
	dashboard    *controller.DashboardController
	assist       *controller.AssistController
	realtime     *controller.RealtimeController
	health       *controller.HealthController
}

// RegisterConfigCallback 配置热更新后依次回调
func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		activity:     repository.NewActivityRepository(db),
		achievement:  repository.NewAchievementRepository(db),
		notification: repository.NewNotificationRepository(db),
		doctor:       repository.NewDoctorPatientRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.settings = service.NewProgressSettings(cfg.Progress)
	a.RegisterConfigCallback(func(c *config.Config) {
		if err := c.Progress.Validate(); err != nil {
			logger.Log.Warn("Ignoring invalid progress config", zap.Error(err))
			return
		}
		s.settings.Apply(c.Progress)
	})

	api := apiclient.New(cfg.API)
	var email service.EmailSender
	if cfg.API.EmailEnabled {
		email = api
	}

	s.access = service.NewAccessPolicy(repos.user, repos.doctor)
	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.achievement = service.NewAchievementService(repos.achievement, repos.activity, repos.user, s.settings)
	s.notification = service.NewNotificationService(repos.notification, repos.doctor, repos.user, s.settings, email)
	s.activity = service.NewActivityService(repos.activity, repos.user, s.achievement, s.notification, s.settings)
	s.doctor = service.NewDoctorService(repos.doctor, repos.user)
	s.dashboard = service.NewDashboardService(repos.user, repos.activity, repos.achievement, repos.notification, repos.doctor, api)
	if a.Hub != nil {
		s.dashboard.Presence = a.Hub
	}
	s.assist = service.NewAssistService(api, s.storage, s.access)
	s.jobs = service.NewJobService(s.notification, cfg.Jobs)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		activity:     controller.NewActivityController(s.activity),
		achievement:  controller.NewAchievementController(s.achievement),
		notification: controller.NewNotificationController(s.notification),
		doctor:       controller.NewDoctorController(s.doctor),
		dashboard:    controller.NewDashboardController(s.dashboard),
		assist:       controller.NewAssistController(s.assist),
		realtime:     controller.NewRealtimeController(a.Hub, s.access),
		health:       controller.NewHealthController(a.DB, a.Redis, a.Hub),
	}
}

// initRealtime bus=redis 且 Redis 可用时跨实例分发，否则退化为进程内总线；bus=none 关闭实时功能
func (a *App) initRealtime(cfg *config.Config) {
	var hub *realtime.Hub
	switch {
	case cfg.Realtime.Bus == "none":
		logger.Log.Warn("Realtime disabled by config")
		return
	case cfg.Realtime.Bus == "redis" && a.Redis != nil:
		hub = realtime.NewHub(
			realtime.NewRedisBus(a.Redis, cfg.Realtime.Channel),
			realtime.WithPresenceStore(a.Redis),
			realtime.WithQueueSize(cfg.Realtime.QueueSize),
		)
	default:
		if cfg.Realtime.Bus == "redis" {
			logger.Log.Warn("Redis unavailable, realtime falls back to local bus")
		}
		hub = realtime.NewHub(realtime.NewLocalBus(), realtime.WithQueueSize(cfg.Realtime.QueueSize))
	}

	if err := hub.Start(); err != nil {
		logger.Log.Error("Failed to start realtime hub", zap.Error(err))
		return
	}
	if err := a.DB.Use(realtime.NewChangeFeed(hub)); err != nil {
		logger.Log.Error("Failed to register change feed", zap.Error(err))
	}
	a.Hub = hub
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config, done <-chan struct{}) {
	router.Use(func(c *gin.Context) {
		c.Set("config", a.Config)
		c.Next()
	})
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	limiter := security.NewKeyedLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	go limiter.Run(done)
	router.Use(security.RateLimiter(limiter))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("/metrics", "/health", "/api/realtime/ws"))
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{Config: cfg, DB: db}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 仅用于实时总线与在线状态，不可用时降级
		logger.Log.Warn("Redis unavailable", zap.Error(err))
	} else {
		app.Redis = rdb
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.initRealtime(cfg)

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg, ctx.Done())

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer("learnbridge", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.closers = append(app.closers, shutdown)
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	if err := app.services.jobs.Start(); err != nil {
		logger.Log.Fatal("Failed to schedule background jobs", zap.Error(err))
	}

	if err := configwatcher.Watch(ctx, filepath.Clean(configFile), app.applyConfig); err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.Error(err))
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

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

// Close 停止定时任务，一次性清理全部实时订阅，再关闭外部连接
func (a *App) Close(ctx context.Context) {
	if a.services != nil {
		a.services.jobs.Stop()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(ctx); err != nil {
			logger.Log.Error("Failed to close component", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
