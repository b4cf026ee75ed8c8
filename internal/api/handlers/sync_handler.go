package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/rollstats/internal/pipeline"
	"github.com/andresuchdata/rollstats/internal/service"
)

const defaultHistoryLimit = 10

type SyncHandler struct {
	service *service.SyncService
}

func NewSyncHandler(service *service.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

func (h *SyncHandler) GetFiles(c *gin.Context) {
	files := h.service.Files()
	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"total": len(files),
	})
}

func (h *SyncHandler) DeleteFile(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file id is required"})
		return
	}

	if err := h.service.RemoveFile(id); err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove file"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SyncHandler) RunSync(c *gin.Context) {
	if err := h.service.RunNow(); err != nil {
		if errors.Is(err, pipeline.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sync"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
}

func (h *SyncHandler) GetStatus(c *gin.Context) {
	limit := defaultHistoryLimit
	if n, err := strconv.Atoi(c.DefaultQuery("history", strconv.Itoa(defaultHistoryLimit))); err == nil && n > 0 {
		limit = n
	}

	status, err := h.service.Status(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch sync status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *SyncHandler) GetReports(c *gin.Context) {
	images, err := h.service.Images()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list images"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reports": h.service.Reports(),
		"images":  images,
	})
}
