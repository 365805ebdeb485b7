package verification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes verification records over HTTP.
type Handler struct {
	repo     Repository
	audit    AuditLog
	backuper *Backuper
	logger   *zap.Logger
}

// NewHandler creates a verification handler. backuper may be nil.
func NewHandler(repo Repository, audit AuditLog, backuper *Backuper, logger *zap.Logger) *Handler {
	return &Handler{
		repo:     repo,
		audit:    audit,
		backuper: backuper,
		logger:   logger,
	}
}

// RegisterRoutes registers verification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	verifications := router.Group("/verifications")
	{
		verifications.GET("", h.listVerifications)
		verifications.GET("/:memberId", h.getVerification)
		verifications.GET("/:memberId/history", h.getHistory)
		verifications.POST("/backup", h.backup)
	}
}

// listVerifications handles GET /verifications
func (h *Handler) listVerifications(c *gin.Context) {
	records := h.repo.List()
	if status := c.Query("status"); status != "" {
		filtered := records[:0:0]
		for _, r := range records {
			if r.EffectiveStatus() == status {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	c.JSON(http.StatusOK, gin.H{"verifications": records, "count": len(records)})
}

// getVerification handles GET /verifications/:memberId
func (h *Handler) getVerification(c *gin.Context) {
	record, ok := h.repo.Get(c.Param("memberId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// getHistory handles GET /verifications/:memberId/history
func (h *Handler) getHistory(c *gin.Context) {
	entries, err := h.audit.History(c.Request.Context(), c.Param("memberId"))
	if err != nil {
		h.logger.Error("Failed to load decision history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// backup handles POST /verifications/backup
func (h *Handler) backup(c *gin.Context) {
	if h.backuper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backups not configured"})
		return
	}
	result, err := h.backuper.Backup(c.Request.Context())
	if err != nil {
		h.logger.Error("Backup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
