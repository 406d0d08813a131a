package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
	"trainflow/internal/training"
)

func (h *Handler) listTrainings(c *gin.Context) {
	var f model.TrainingFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		h.fail(c, apperr.BadRequest("invalid query: "+err.Error()))
		return
	}
	page, err := h.d.Trainings.FindAll(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getTraining(c *gin.Context) {
	t, err := h.d.Trainings.FindOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) createTraining(c *gin.Context) {
	var in training.CreateInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.d.Trainings.Create(c.Request.Context(), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) updateTraining(c *gin.Context) {
	var in training.UpdateInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.d.Trainings.Update(c.Request.Context(), c.Param("id"), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) transitionTraining(c *gin.Context) {
	var in struct {
		Status model.TrainingStatus `json:"status"`
	}
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	if in.Status == "" {
		h.fail(c, apperr.BadRequest("status is required"))
		return
	}
	t, err := h.d.Trainings.Transition(c.Request.Context(), c.Param("id"), in.Status, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) deleteTraining(c *gin.Context) {
	if err := h.d.Trainings.Remove(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Training deleted successfully"})
}

func (h *Handler) trainingStats(c *gin.Context) {
	stats, err := h.d.Trainings.GetStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) bulkTrainings(c *gin.Context) {
	var in training.BulkInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.d.Trainings.BulkOperation(c.Request.Context(), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
