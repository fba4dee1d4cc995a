package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/common"
	"github.com/suPer8Hu/codemate/internal/config"
	"github.com/suPer8Hu/codemate/internal/httpapi/handlers"
	"github.com/suPer8Hu/codemate/internal/httpapi/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, deps handlers.Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, deps)
	limit := middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware()

	r.GET("/ping", h.Ping)

	// public batch relay
	r.POST("/chat", limit, h.Ask)

	// users
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	// shared conversations
	r.GET("/shared/:token", h.GetSharedChat)
	r.GET("/shared/:token/view", h.ViewSharedChat)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/users/:id", h.GetUserByID)

	// conversations
	authGroup.POST("/chats", h.CreateChat)
	authGroup.GET("/chats", h.ListChats)
	authGroup.POST("/chats/rename", h.RenameChat)
	authGroup.POST("/chats/delete", h.DeleteChat)
	authGroup.POST("/chats/share", h.ShareChat)
	authGroup.GET("/chats/:chat_id/messages", h.ListChatMessages)

	// chat (JWT required)
	authGroup.POST("/chat/stream", limit, h.SendChatMessageStream)
	authGroup.POST("/chat/async", limit, h.SendChatMessageAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetChatJob)
	authGroup.POST("/interview/end", h.EndInterview)

	authGroup.POST("/run", limit, h.RunCode)
	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, handlers.PersistStatusTrailer},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}
