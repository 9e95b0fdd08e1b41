package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"timeronline/backend/internal/handler"
	"timeronline/backend/internal/middleware"
	"timeronline/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	timerHandler *handler.TimerHandler,
	liveHandler *handler.LiveHandler,
	shareHandler *handler.ShareHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/guest", authHandler.Guest)

	api.GET("/decode", shareHandler.Decode)
	api.GET("/preview", shareHandler.Preview)
	api.GET("/share", shareHandler.Redirect)

	timers := api.Group("/timers")
	timers.Use(middleware.Auth(authService))
	timers.GET("", timerHandler.List)
	timers.POST("", timerHandler.Create)
	timers.POST("/import", timerHandler.Import)
	timers.GET("/:id", timerHandler.Get)
	timers.DELETE("/:id", timerHandler.Delete)
	timers.POST("/:id/toggle", timerHandler.Toggle)
	timers.POST("/:id/reset", timerHandler.Reset)
	timers.POST("/:id/target", timerHandler.ChangeTarget)
	timers.PUT("/:id/display", timerHandler.SetDisplayMode)
	timers.GET("/:id/share", timerHandler.Share)
	timers.GET("/:id/live", liveHandler.Stream)

	return engine
}
