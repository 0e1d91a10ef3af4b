package api

import (
	"io"
	"net/http"

	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NoticeHandler struct {
	bus    *event.Bus
	logger *zap.Logger
}

func NewNoticeHandler(bus *event.Bus, logger *zap.Logger) *NoticeHandler {
	return &NoticeHandler{bus: bus, logger: utils.OrNop(logger).Named("notices")}
}

// Stream pushes notices to the shell as server-sent events until the client goes away.
func (h *NoticeHandler) Stream(c *gin.Context) {
	notices, err := h.bus.Subscribe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notice stream unavailable", "details": err.Error()})
		return
	}
	h.logger.Debug("notice stream opened", zap.String("client", c.ClientIP()))
	defer h.logger.Debug("notice stream closed", zap.String("client", c.ClientIP()))

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		n, ok := <-notices
		if !ok {
			return false
		}
		c.SSEvent(string(n.Kind), n)
		return true
	})
}
