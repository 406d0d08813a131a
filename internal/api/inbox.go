package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
	"trainflow/internal/report"
)

func (h *Handler) listNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	unread := c.Query("unread") == "true"
	list, err := h.d.Notifications.List(c.Request.Context(), actor(c).ID, unread, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) unreadCount(c *gin.Context) {
	n, err := h.d.Notifications.UnreadCount(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) markRead(c *gin.Context) {
	n, err := h.d.Notifications.MarkRead(c.Request.Context(), actor(c).ID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) markAllRead(c *gin.Context) {
	n, err := h.d.Notifications.MarkAllRead(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) listAuditLogs(c *gin.Context) {
	var f model.AuditFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		h.fail(c, apperr.BadRequest("invalid query: "+err.Error()))
		return
	}
	page, err := h.d.Audit.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) entityAuditLogs(c *gin.Context) {
	logs, err := h.d.Audit.ForEntity(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) downloadReport(c *gin.Context) {
	ctx, id := c.Request.Context(), c.Param("trainingId")
	var (
		f   report.File
		err error
	)
	switch c.Param("kind") {
	case report.KindAttendance:
		f, err = h.d.Reports.Attendance(ctx, id)
	case report.KindCompletion:
		f, err = h.d.Reports.Completion(ctx, id)
	case report.KindFeedback:
		f, err = h.d.Reports.Feedback(ctx, id)
	default:
		err = apperr.NotFound("Unknown report: " + c.Param("kind"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.Data(http.StatusOK, report.ContentType, f.Data)
}
