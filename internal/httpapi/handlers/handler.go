package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/common"
	"github.com/suPer8Hu/codemate/internal/config"
	"github.com/suPer8Hu/codemate/internal/httpapi/middleware"
	"github.com/suPer8Hu/codemate/internal/render"
	"github.com/suPer8Hu/codemate/internal/sandbox"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobPublisher enqueues async chat jobs for cmd/worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	ChatSvc  *chat.Service
	Runner   sandbox.Runner
	Jobs     JobPublisher
	Markdown *render.Renderer
	Log      *zap.Logger
}

type Deps struct {
	ChatSvc *chat.Service
	Runner  sandbox.Runner
	// Jobs may be nil; async chat then answers 503.
	Jobs JobPublisher
	Log  *zap.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, deps Deps) *Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		ChatSvc:  deps.ChatSvc,
		Runner:   deps.Runner,
		Jobs:     deps.Jobs,
		Markdown: render.New(),
		Log:      log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) logger(c *gin.Context) *zap.Logger {
	l := h.Log.With(zap.String("request_id", c.GetString(middleware.RequestIDKey)))
	if uid, ok := middleware.UserID(c); ok {
		l = l.With(zap.Uint64("user_id", uid))
	}
	return l
}

// internalError answers 500. Storage failures get their own code so they
// are never mistaken for a normal reply.
func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger(c).Error(op, zap.Error(err))
	if chat.IsStorageError(err) {
		common.Fail(c, http.StatusInternalServerError, 50001, "storage error")
		return
	}
	common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
}

func currentUser(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}
