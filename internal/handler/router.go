package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, mode, adminToken string, log *logrus.Logger) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		user := api.Group("/user")
		{
			user.POST("/signup", h.SignUp)
			user.POST("/password", h.ChangePassword)
			user.POST("/gold/transfer", h.TransferGold)
			user.GET("/gold/released", h.ReleasedGold)
			user.GET("/ledger", h.Ledger)
			user.GET("/team", h.Team)
		}

		order := api.Group("/order")
		{
			order.POST("/received", h.Received)
		}

		admin := api.Group("/admin", AdminMiddleware(adminToken))
		{
			admin.GET("/properties", h.Properties)
			admin.POST("/properties/reload", h.ReloadProperties)
			admin.POST("/user/role", h.AssignRole)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
