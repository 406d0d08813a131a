package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
	"trainflow/internal/report"
	"trainflow/internal/training"
)

func (h *Handler) enrollSelf(c *gin.Context) {
	e, err := h.d.Trainings.Enroll(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) listEnrollments(c *gin.Context) {
	list, err := h.d.Trainings.ListEnrollments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) bulkEnroll(c *gin.Context) {
	var in struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	if len(in.UserIDs) == 0 {
		h.fail(c, apperr.BadRequest("user_ids is required"))
		return
	}
	list, err := h.d.Trainings.BulkEnroll(c.Request.Context(), c.Param("id"), in.UserIDs, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrolled": len(list), "enrollments": list})
}

func (h *Handler) importEnrollments(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.fail(c, apperr.BadRequest("file field required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	emails, err := report.ParseEmails(f)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.d.Trainings.ImportEnrollments(c.Request.Context(), c.Param("id"), emails, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": len(emails), "enrolled": len(list), "enrollments": list})
}

func (h *Handler) completeEnrollment(c *gin.Context) {
	e, err := h.d.Trainings.MarkComplete(c.Request.Context(), c.Param("id"), c.Param("userId"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) removeEnrollment(c *gin.Context) {
	if err := h.d.Trainings.RemoveEnrollment(c.Request.Context(), c.Param("id"), c.Param("userId"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Enrollment removed successfully"})
}

func (h *Handler) completePreWork(c *gin.Context) {
	e, err := h.d.Trainings.CompletePreWork(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) myEnrollments(c *gin.Context) {
	list, err := h.d.Trainings.UserEnrollments(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) markAttendance(c *gin.Context) {
	var in training.AttendanceInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	a, err := h.d.Trainings.MarkAttendance(c.Request.Context(), c.Param("id"), in, actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) checkIn(c *gin.Context) {
	a, err := h.d.Trainings.SelfCheckIn(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) listAttendance(c *gin.Context) {
	list, err := h.d.Trainings.ListAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) attendanceRate(c *gin.Context) {
	rate, err := h.d.Trainings.AttendanceRate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance_rate": rate})
}

// eligibility answers for the caller. Staff may ask about any user.
func (h *Handler) eligibility(c *gin.Context) {
	a := actor(c)
	userID := a.ID
	if q := c.Query("user_id"); q != "" && q != a.ID {
		if a.Role == model.RoleParticipant {
			h.fail(c, apperr.Forbidden("You can only check your own eligibility"))
			return
		}
		userID = q
	}
	el, err := h.d.Trainings.CertificateEligibility(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, el)
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var in training.FeedbackInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	f, err := h.d.Trainings.SubmitFeedback(c.Request.Context(), c.Param("id"), actor(c).ID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) listFeedback(c *gin.Context) {
	list, err := h.d.Trainings.ListFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) feedbackAnalytics(c *gin.Context) {
	a, err := h.d.Trainings.Analytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// createMaterial accepts JSON, or multipart with the fields as form values
// and an optional "file" part.
func (h *Handler) createMaterial(c *gin.Context) {
	var in training.MaterialInput
	var upload *training.Upload
	if c.ContentType() == "multipart/form-data" {
		in.Name = c.PostForm("name")
		in.Description = c.PostForm("description")
		in.Type = model.MaterialType(c.PostForm("type"))
		in.ExternalLink = c.PostForm("external_link")
		if v := c.PostForm("is_required"); v != "" {
			req, err := strconv.ParseBool(v)
			if err != nil {
				h.fail(c, apperr.BadRequest("is_required must be a boolean"))
				return
			}
			in.IsRequired = &req
		}
		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				h.fail(c, err)
				return
			}
			defer f.Close()
			upload = &training.Upload{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Body: f}
		}
	} else if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	m, err := h.d.Trainings.CreateMaterial(c.Request.Context(), c.Param("id"), in, upload, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) listMaterials(c *gin.Context) {
	list, err := h.d.Trainings.ListMaterials(c.Request.Context(), c.Param("id"), model.MaterialType(c.Query("type")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) deleteMaterial(c *gin.Context) {
	if err := h.d.Trainings.RemoveMaterial(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Material deleted successfully"})
}
