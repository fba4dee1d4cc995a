package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/common"
	"github.com/suPer8Hu/codemate/internal/httpapi/middleware"
	"go.uber.org/zap"
)

// PersistStatusTrailer reports, after a plain-text stream, whether the reply
// was stored ("ok" or "error").
const PersistStatusTrailer = "X-Persist-Status"

// chatID accepts 12 and "12"; null or "" decode as 0 (no chat selected).
type chatID uint64

func (id *chatID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q", s)
	}
	*id = chatID(n)
	return nil
}

type askReq struct {
	Message string `json:"message"`
}

// Ask is the public batch endpoint. Every outcome is a 200 {"reply": ...}.
func (h *Handler) Ask(c *gin.Context) {
	var req askReq
	_ = c.ShouldBindJSON(&req) // bad json reads as no message
	c.JSON(http.StatusOK, gin.H{"reply": h.ChatSvc.Ask(c.Request.Context(), req.Message)})
}

type createChatReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req createChatReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	conv, err := h.ChatSvc.CreateConversation(c.Request.Context(), uid, req.Title)
	if err != nil {
		h.internalError(c, "create conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": conv.ID, "title": conv.Title})
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), uid)
	if err != nil {
		h.internalError(c, "list conversations", err)
		return
	}

	out := make([]gin.H, 0, len(convs))
	for _, cv := range convs {
		out = append(out, gin.H{
			"id":         cv.ID,
			"title":      cv.Title,
			"is_public":  cv.IsPublic,
			"created_at": cv.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"chats": out})
}

type chatActionReq struct {
	ChatID chatID `json:"chat_id"`
	Title  string `json:"title"`
}

func (h *Handler) bindChatAction(c *gin.Context) (uint64, chatActionReq, bool) {
	uid, ok := currentUser(c)
	if !ok {
		return 0, chatActionReq{}, false
	}
	var req chatActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return 0, req, false
	}
	if req.ChatID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "chat_id required")
		return 0, req, false
	}
	return uid, req, true
}

func actionStatus(done bool) gin.H {
	if done {
		return gin.H{"status": "ok"}
	}
	return gin.H{"status": "noop"}
}

func (h *Handler) RenameChat(c *gin.Context) {
	uid, req, ok := h.bindChatAction(c)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "title required")
		return
	}
	done, err := h.ChatSvc.RenameConversation(c.Request.Context(), uid, uint64(req.ChatID), req.Title)
	if err != nil {
		h.internalError(c, "rename conversation", err)
		return
	}
	c.JSON(http.StatusOK, actionStatus(done))
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, req, ok := h.bindChatAction(c)
	if !ok {
		return
	}
	done, err := h.ChatSvc.DeleteConversation(c.Request.Context(), uid, uint64(req.ChatID))
	if err != nil {
		h.internalError(c, "delete conversation", err)
		return
	}
	c.JSON(http.StatusOK, actionStatus(done))
}

func (h *Handler) ShareChat(c *gin.Context) {
	uid, req, ok := h.bindChatAction(c)
	if !ok {
		return
	}
	token, err := h.ChatSvc.ShareConversation(c.Request.Context(), uid, uint64(req.ChatID))
	if err != nil {
		h.internalError(c, "share conversation", err)
		return
	}
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"share_url": "", "status": "noop"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"share_url": h.Cfg.PublicBaseURL + "/shared/" + token,
		"status":    "ok",
	})
}

// ListChatMessages answers [[role, content], ...].
func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("chat_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid chat id")
		return
	}

	msgs, err := h.ChatSvc.ConversationMessages(c.Request.Context(), uid, id)
	if err != nil {
		h.internalError(c, "list messages", err)
		return
	}
	out := make([][2]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, [2]string{m.Role, m.Content})
	}
	c.JSON(http.StatusOK, out)
}

type sendMessageReq struct {
	Message        string `json:"message"`
	ConversationID chatID `json:"conversation_id"`
	Mode           string `json:"mode"`
}

func (h *Handler) bindSend(c *gin.Context) (chat.StreamRequest, bool) {
	uid, ok := currentUser(c)
	if !ok {
		return chat.StreamRequest{}, false
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return chat.StreamRequest{}, false
	}
	return chat.StreamRequest{
		UserID:         uid,
		SessionID:      middleware.SessionID(c),
		ConversationID: uint64(req.ConversationID),
		Mode:           req.Mode,
		Message:        req.Message,
	}, true
}

// SendChatMessageStream relays the reply as plain-text chunks, or as SSE
// events when the client asks for text/event-stream.
func (h *Handler) SendChatMessageStream(c *gin.Context) {
	req, ok := h.bindSend(c)
	if !ok {
		return
	}
	if req.ConversationID == 0 {
		c.String(http.StatusOK, chat.ReplySelectChat)
		return
	}

	ctx := c.Request.Context()
	st, err := h.ChatSvc.StartStream(ctx, req)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.String(http.StatusOK, chat.ReplyNoMessage)
		return
	case errors.Is(err, chat.ErrConversationNotFound):
		c.String(http.StatusOK, chat.ReplySelectChat)
		return
	case err != nil:
		h.internalError(c, "start stream", err)
		return
	}

	sse := strings.Contains(c.GetHeader("Accept"), "text/event-stream")
	if sse {
		h.writeSSE(c, st)
	} else {
		h.writePlain(c, st)
	}
}

func (h *Handler) writePlain(c *gin.Context, st *chat.Stream) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Trailer", PersistStatusTrailer)
	c.Status(http.StatusOK)

	for chunk := range st.Chunks() {
		// write errors mean the client left; the service sees the cancelled
		// context and wraps up
		_, _ = c.Writer.WriteString(chunk)
		c.Writer.Flush()
	}

	msgID, err := st.Wait()
	if err != nil {
		h.logger(c).Error("persist streamed reply", zap.Error(err))
		c.Writer.Header().Set(PersistStatusTrailer, "error")
		return
	}
	h.logger(c).Debug("stream complete", zap.Uint64("message_id", msgID))
	c.Writer.Header().Set(PersistStatusTrailer, "ok")
}

func (h *Handler) writeSSE(c *gin.Context, st *chat.Stream) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		c.Writer.Flush()
	}

	// heartbeat ticker (keeps proxies from closing idle streams)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	chunks := st.Chunks()
	for chunks != nil {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeEvent("chunk", gin.H{"type": "chunk", "delta": ch})
		case <-ticker.C:
			writeEvent("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})
		}
	}

	msgID, err := st.Wait()
	if err != nil {
		h.logger(c).Error("persist streamed reply", zap.Error(err))
		writeEvent("error", gin.H{"type": "error", "message": "storage error"})
		return
	}
	writeEvent("done", gin.H{"type": "done", "message_id": msgID})
}

func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	req, ok := h.bindSend(c)
	if !ok {
		return
	}
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async chat disabled")
		return
	}

	// read idempotency key
	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	ctx := c.Request.Context()
	j, created, err := h.ChatSvc.EnqueueJob(ctx, req, idempoKey)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10002, chat.ReplyNoMessage)
		return
	case errors.Is(err, chat.ErrConversationNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "conversation not found")
		return
	case err != nil:
		h.internalError(c, "enqueue job", err)
		return
	}

	// Enqueue only when a new job was created
	if created {
		if err := h.Jobs.PublishJob(ctx, j.ID); err != nil {
			h.logger(c).Error("publish job", zap.String("job_id", j.ID), zap.Error(err))
			if ferr := h.ChatSvc.FailJob(ctx, j.ID, "enqueue failed: "+err.Error()); ferr != nil {
				h.logger(c).Error("mark job failed", zap.String("job_id", j.ID), zap.Error(ferr))
			}
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), uid, jobID)
	if errors.Is(err, chat.ErrJobNotFound) {
		common.Fail(c, http.StatusNotFound, 40403, "job not found")
		return
	}
	if err != nil {
		h.internalError(c, "get job", err)
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"conversation_id":   j.ConversationID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}

// EndInterview clears the interview topic of the caller's login session.
func (h *Handler) EndInterview(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	if err := h.ChatSvc.EndInterview(c.Request.Context(), middleware.SessionID(c)); err != nil {
		h.internalError(c, "end interview", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
