package app

import (
	"learnbridge_backend/docs"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/middleware"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/pkg/monitoring"
	"learnbridge_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// 每个 IP 每分钟最多建立的 WebSocket 连接数
const wsConnectsPerMinute = 30

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 访客可用：无令牌时不做任何持久化
	optional := router.Group("/api")
	optional.Use(middleware.TryAuthMiddleware())
	{
		optional.POST("/activities/attempts", c.activity.RecordAttempt)
	}

	// 3. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(), middleware.ActivityMiddleware(repos.user))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerSupervisorRoutes(authGroup, c)
		a.registerAdminRoutes(authGroup, c)
	}

	// 4. 实时订阅
	wsLimiter := security.NewKeyedLimiter(wsConnectsPerMinute, time.Minute)
	realtime := router.Group("/api/realtime")
	realtime.Use(security.RateLimiter(wsLimiter), middleware.AuthMiddleware())
	{
		realtime.GET("/ws", c.realtime.Serve)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.GET("/catalog", c.activity.Catalog)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.Profile)

	activities := rg.Group("/activities")
	{
		activities.GET("/attempts", c.activity.ListAttempts)
		activities.GET("/history", c.activity.ListHistory)
	}

	rg.GET("/achievements", c.achievement.GetUserAchievements)
	rg.GET("/leaderboard", c.achievement.GetLeaderboard)

	notifications := rg.Group("/notifications")
	{
		notifications.GET("", c.notification.List)
		notifications.GET("/unread-count", c.notification.UnreadCount)
		notifications.PATCH("/read-all", c.notification.MarkAllRead)
		notifications.PATCH("/:id/read", c.notification.MarkRead)
	}

	dashboard := rg.Group("/dashboard")
	{
		dashboard.GET("/student", middleware.RoleMiddleware(model.Child), c.dashboard.Student)
		dashboard.GET("/parent", middleware.RoleMiddleware(model.Parent), c.dashboard.Parent)
		dashboard.GET("/doctor", middleware.RoleMiddleware(model.Doctor), c.dashboard.Doctor)
	}

	assist := rg.Group("/assist")
	{
		assist.POST("/simplify-text", c.assist.SimplifyText)
		assist.POST("/handwriting", c.assist.AnalyzeHandwriting)
		assist.POST("/movement", c.assist.AnalyzeMovement)
	}
}

// registerSupervisorRoutes 医生与家长使用的接口
func (a *App) registerSupervisorRoutes(rg *gin.RouterGroup, c *controllers) {
	doctor := rg.Group("/doctor")
	doctor.Use(middleware.RoleMiddleware(model.Doctor))
	{
		doctor.POST("/patients", c.doctor.LinkPatient)
		doctor.GET("/patients", c.doctor.ListPatients)
		doctor.DELETE("/patients/:patientId", c.doctor.UnlinkPatient)
	}

	// 访问范围由服务层按关联关系校验
	rg.GET("/reports/students/:id/pdf", c.assist.StudentReport)
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/stats", c.dashboard.AdminStats)
	}
}
