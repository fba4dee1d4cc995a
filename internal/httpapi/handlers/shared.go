package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/common"
	"go.uber.org/zap"
)

var sharedPage = template.Must(template.New("shared").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}
.msg{border-radius:8px;padding:.75rem 1rem;margin:.75rem 0}
.user{background:#eef3ff}
.assistant{background:#f5f5f5}
.role{font-size:.75rem;color:#666;text-transform:uppercase}
pre{overflow-x:auto;background:#272822;color:#f8f8f2;padding:.75rem;border-radius:6px}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="msg {{.Role}}"><div class="role">{{.Role}}</div>{{.HTML}}</div>
{{end}}</body>
</html>
`))

type sharedMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) loadShared(c *gin.Context) (*chat.Conversation, []chat.Message, bool) {
	conv, msgs, err := h.ChatSvc.SharedConversation(c.Request.Context(), c.Param("token"))
	if errors.Is(err, chat.ErrConversationNotFound) {
		common.Fail(c, http.StatusNotFound, 40404, "shared chat not found")
		return nil, nil, false
	}
	if err != nil {
		h.internalError(c, "load shared conversation", err)
		return nil, nil, false
	}
	return conv, msgs, true
}

// GetSharedChat is the unauthenticated read of a public conversation.
func (h *Handler) GetSharedChat(c *gin.Context) {
	conv, msgs, ok := h.loadShared(c)
	if !ok {
		return
	}
	out := make([]sharedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, sharedMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	c.JSON(http.StatusOK, gin.H{"title": conv.Title, "messages": out})
}

// ViewSharedChat renders a public conversation as a read-only page.
func (h *Handler) ViewSharedChat(c *gin.Context) {
	conv, msgs, ok := h.loadShared(c)
	if !ok {
		return
	}

	type row struct {
		Role string
		HTML template.HTML
	}
	rows := make([]row, 0, len(msgs))
	for _, m := range msgs {
		body, err := h.Markdown.Markdown(m.Content)
		if err != nil {
			h.logger(c).Warn("render message", zap.Uint64("message_id", m.ID), zap.Error(err))
			body = template.HTML(template.HTMLEscapeString(m.Content))
		}
		rows = append(rows, row{Role: m.Role, HTML: body})
	}

	var buf bytes.Buffer
	if err := sharedPage.Execute(&buf, struct {
		Title    string
		Messages []row
	}{conv.Title, rows}); err != nil {
		h.internalError(c, "render shared page", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
