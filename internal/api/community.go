package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
	"trainflow/internal/training"
)

func (h *Handler) listTemplates(c *gin.Context) {
	var f model.TemplateFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		h.fail(c, apperr.BadRequest("invalid query: "+err.Error()))
		return
	}
	list, err := h.d.Trainings.ListTemplates(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createTemplate(c *gin.Context) {
	var in training.TemplateInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.d.Trainings.CreateTemplate(c.Request.Context(), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) getTemplate(c *gin.Context) {
	t, err := h.d.Trainings.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) updateTemplate(c *gin.Context) {
	var in training.TemplateInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.d.Trainings.UpdateTemplate(c.Request.Context(), c.Param("id"), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) deleteTemplate(c *gin.Context) {
	if err := h.d.Trainings.DeleteTemplate(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}

func (h *Handler) trainingFromTemplate(c *gin.Context) {
	var in training.FromTemplateInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.d.Trainings.CreateFromTemplate(c.Request.Context(), c.Param("id"), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) listComments(c *gin.Context) {
	list, err := h.d.Trainings.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) addComment(c *gin.Context) {
	var in training.CommentInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	cm, err := h.d.Trainings.AddComment(c.Request.Context(), c.Param("id"), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *Handler) editComment(c *gin.Context) {
	var in training.CommentEdit
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	cm, err := h.d.Trainings.EditComment(c.Request.Context(), c.Param("id"), in, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (h *Handler) deleteComment(c *gin.Context) {
	if err := h.d.Trainings.DeleteComment(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}
