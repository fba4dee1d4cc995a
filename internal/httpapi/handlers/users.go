package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/auth"
	"github.com/suPer8Hu/codemate/internal/common"
	"github.com/suPer8Hu/codemate/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *credentialsReq) normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// issueToken starts a new login session. The sid claim scopes the
// interview topic to this login.
func (h *Handler) issueToken(userID uint64) (string, error) {
	sid, err := common.NewULID()
	if err != nil {
		return "", err
	}
	return auth.SignJWT(userID, sid, h.Cfg.JWTSecret, h.Cfg.JWTTTL)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.normalize()
	if req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "username and password required")
		return
	}
	if len(req.Username) > 64 {
		common.Fail(c, http.StatusBadRequest, 10004, "username too long")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		common.Fail(c, http.StatusBadRequest, 10005, "password too long")
		return
	}
	if err != nil {
		h.internalError(c, "hash password", err)
		return
	}

	ctx := c.Request.Context()
	var cnt int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).Where("username = ?", req.Username).Count(&cnt).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "storage error")
		h.logger(c).Error("check username", zap.Error(err))
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusConflict, 10003, "username already exists")
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		// lost a race on the unique index
		common.Fail(c, http.StatusConflict, 10003, "failed to create user (maybe username already exists)")
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		h.internalError(c, "sign token", err)
		return
	}

	common.OK(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"token":    token,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.normalize()
	if req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "username and password required")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("username = ?", req.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusInternalServerError, 50001, "storage error")
		h.logger(c).Error("load user", zap.Error(err))
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid username or password")
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		h.internalError(c, "sign token", err)
		return
	}
	common.OK(c, gin.H{"token": token})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	h.writeUser(c, uid)
}

func (h *Handler) GetUserByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}
	h.writeUser(c, id)
}

func (h *Handler) writeUser(c *gin.Context, id uint64) {
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "storage error")
		h.logger(c).Error("load user", zap.Error(err))
		return
	}

	common.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}
