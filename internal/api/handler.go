package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"trainflow/internal/account"
	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/auth"
	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/notify"
	"trainflow/internal/report"
	"trainflow/internal/training"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) bool
}

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Trainings     *training.Service
	Accounts      *account.Service
	Notifications *notify.Service
	Audit         *audit.Query
	Reports       *report.Service
	Health        []HealthCheck
	SigningKey    string
	Issuer        string
}

// Handler serves the REST API.
type Handler struct {
	d   Deps
	log *logger.Logger
}

func New(d Deps, log *logger.Logger) *Handler {
	return &Handler{d: d, log: log.With("service", "API")}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	api := r.Group("/api", requestMeta())

	public := api.Group("/auth")
	public.POST("/register", h.register)
	public.POST("/login", h.login)
	public.POST("/refresh", h.refresh)
	public.POST("/forgot-password", h.forgotPassword)
	public.POST("/reset-password", h.resetPassword)

	authed := api.Group("", auth.Authenticate(h.d.SigningKey, h.d.Issuer))
	staff := auth.RequireRole(model.RoleAdmin, model.RoleTrainer)
	admin := auth.RequireRole(model.RoleAdmin)

	authed.GET("/auth/me", h.me)
	authed.POST("/auth/change-password", h.changePassword)
	authed.GET("/users", staff, h.listUsers)
	authed.POST("/users", admin, h.createUser)

	authed.GET("/trainings", h.listTrainings)
	authed.POST("/trainings", guard(training.OpCreateTraining), h.createTraining)
	authed.POST("/trainings/bulk", guard(training.OpBulkTrainings), h.bulkTrainings)
	authed.GET("/trainings/:id", h.getTraining)
	authed.PATCH("/trainings/:id", h.updateTraining)
	authed.POST("/trainings/:id/status", h.transitionTraining)
	authed.DELETE("/trainings/:id", guard(training.OpDeleteTraining), h.deleteTraining)
	authed.GET("/trainings/:id/stats", staff, h.trainingStats)

	authed.POST("/trainings/:id/enroll", h.enrollSelf)
	authed.GET("/trainings/:id/enrollments", staff, h.listEnrollments)
	authed.POST("/trainings/:id/enrollments/bulk", guard(training.OpManageEnrollments), h.bulkEnroll)
	authed.POST("/trainings/:id/enrollments/import", guard(training.OpManageEnrollments), h.importEnrollments)
	authed.POST("/trainings/:id/enrollments/:userId/complete", guard(training.OpManageEnrollments), h.completeEnrollment)
	authed.DELETE("/trainings/:id/enrollments/:userId", guard(training.OpManageEnrollments), h.removeEnrollment)
	authed.POST("/trainings/:id/prework/complete", h.completePreWork)
	authed.GET("/enrollments/me", h.myEnrollments)

	authed.POST("/trainings/:id/attendance", guard(training.OpMarkAttendance), h.markAttendance)
	authed.POST("/trainings/:id/attendance/check-in", h.checkIn)
	authed.GET("/trainings/:id/attendance", guard(training.OpViewAttendance), h.listAttendance)
	authed.GET("/trainings/:id/attendance/rate", h.attendanceRate)
	authed.GET("/trainings/:id/certificate-eligibility", h.eligibility)

	authed.POST("/trainings/:id/feedback", h.submitFeedback)
	authed.GET("/trainings/:id/feedback", guard(training.OpViewAnalytics), h.listFeedback)
	authed.GET("/trainings/:id/feedback/analytics", guard(training.OpViewAnalytics), h.feedbackAnalytics)

	authed.POST("/trainings/:id/materials", guard(training.OpCreateMaterial), h.createMaterial)
	authed.GET("/trainings/:id/materials", h.listMaterials)
	authed.DELETE("/materials/:id", guard(training.OpDeleteMaterial), h.deleteMaterial)

	authed.GET("/templates", h.listTemplates)
	authed.POST("/templates", guard(training.OpCreateTemplate), h.createTemplate)
	authed.GET("/templates/:id", h.getTemplate)
	authed.PUT("/templates/:id", guard(training.OpManageTemplate), h.updateTemplate)
	authed.DELETE("/templates/:id", guard(training.OpManageTemplate), h.deleteTemplate)
	authed.POST("/templates/:id/trainings", guard(training.OpCreateTraining), h.trainingFromTemplate)

	authed.GET("/trainings/:id/comments", h.listComments)
	authed.POST("/trainings/:id/comments", h.addComment)
	authed.PUT("/comments/:id", h.editComment)
	authed.DELETE("/comments/:id", h.deleteComment)

	authed.GET("/notifications", h.listNotifications)
	authed.GET("/notifications/unread-count", h.unreadCount)
	authed.PATCH("/notifications/read-all", h.markAllRead)
	authed.PATCH("/notifications/:id/read", h.markRead)

	authed.GET("/audit-logs", admin, h.listAuditLogs)
	authed.GET("/audit-logs/:entityType/:entityId", admin, h.entityAuditLogs)

	authed.GET("/reports/:kind/:trainingId", guard(training.OpViewReports), h.downloadReport)
}

// guard lets through the roles that may perform op on some resource.
// Ownership is checked by the service.
func guard(op training.Operation) gin.HandlerFunc {
	return auth.RequireRole(training.Roles(op)...)
}

// requestMeta makes the caller's address available to audit records.
func requestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithRequestMeta(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actor(c *gin.Context) training.Actor {
	claims, _ := auth.ClaimsFrom(c)
	return training.Actor{ID: claims.Subject, Role: model.Role(claims.Role)}
}

// fail writes err as a JSON error. Untyped errors become a 500 without
// leaking their message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.StatusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": apperr.CodeOf(err)})
}

// bind decodes the JSON body into dst. An empty body leaves dst untouched.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.BadRequest("invalid request body: " + err.Error())
	}
	return nil
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for _, hc := range h.d.Health {
		ok := hc.Check(c.Request.Context())
		body[hc.Name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
