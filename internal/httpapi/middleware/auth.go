package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/auth"
	"github.com/suPer8Hu/codemate/internal/common"
)

const (
	UserIDKey    = "user_id"
	SessionIDKey = "session_id"
)

// AuthRequired checks the Bearer token and stores the user id and login
// session id on the context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			common.Abort(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}

		uid, sid, err := auth.ParseJWT(strings.TrimSpace(token), secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}

		c.Set(UserIDKey, uid)
		c.Set(SessionIDKey, sid)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func SessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}
