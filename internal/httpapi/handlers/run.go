package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/common"
	"go.uber.org/zap"
)

type runReq struct {
	Code string `json:"code"`
}

// RunCode executes the snippet in the sandbox. Timeouts and launch failures
// come back as output text with a 200.
func (h *Handler) RunCode(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	if h.Runner == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50302, "sandbox disabled")
		return
	}
	var req runReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusOK, gin.H{"output": "No code received.", "truncated": false})
		return
	}

	res := h.Runner.Run(c.Request.Context(), req.Code)
	h.logger(c).Info("sandbox run",
		zap.Duration("duration", res.Duration),
		zap.Bool("timed_out", res.TimedOut),
		zap.Bool("truncated", res.Truncated),
	)
	c.JSON(http.StatusOK, gin.H{
		"output":    res.Output,
		"truncated": res.Truncated,
		"timed_out": res.TimedOut,
	})
}
