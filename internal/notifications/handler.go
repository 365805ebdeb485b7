package notifications

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the outbound queue over HTTP.
type Handler struct {
	queue  *Queue
	logger *zap.Logger
}

func NewHandler(queue *Queue, logger *zap.Logger) *Handler {
	return &Handler{
		queue:  queue,
		logger: logger,
	}
}

// RegisterRoutes registers queue routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	queue := router.Group("/queue")
	{
		queue.GET("", h.getQueue)
		queue.POST("", h.enqueue)
		queue.POST("/flush", h.flush)
		queue.POST("/send", h.sendImmediate)
	}
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

// getQueue handles GET /queue
func (h *Handler) getQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Status())
}

// enqueue handles POST /queue
func (h *Handler) enqueue(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	h.queue.Enqueue(req.Text)
	c.JSON(http.StatusAccepted, gin.H{"pending": h.queue.Len()})
}

// flush handles POST /queue/flush
func (h *Handler) flush(c *gin.Context) {
	if err := h.queue.Flush(c.Request.Context()); err != nil {
		h.logger.Warn("Manual flush failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "pending": h.queue.Len()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": h.queue.Len(), "enabled": h.queue.Enabled()})
}

// sendImmediate handles POST /queue/send
func (h *Handler) sendImmediate(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.queue.SendImmediate(c.Request.Context(), req.Text) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "notification not delivered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}
