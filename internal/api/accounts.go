package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trainflow/internal/account"
	"trainflow/internal/apperr"
	"trainflow/internal/model"
)

func (h *Handler) register(c *gin.Context) {
	var in account.RegisterInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.d.Accounts.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) login(c *gin.Context) {
	var in account.LoginInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.d.Accounts.Login(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) refresh(c *gin.Context) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	if in.RefreshToken == "" {
		h.fail(c, apperr.BadRequest("refresh_token is required"))
		return
	}
	s, err := h.d.Accounts.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
	}
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	if in.Email != "" {
		h.d.Accounts.ForgotPassword(c.Request.Context(), in.Email)
	}
	c.JSON(http.StatusOK, gin.H{"message": "If an account exists with this email, a password reset link has been sent."})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.d.Accounts.ResetPassword(c.Request.Context(), in.Token, in.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.d.Accounts.Me(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) changePassword(c *gin.Context) {
	var in struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.d.Accounts.ChangePassword(c.Request.Context(), actor(c).ID, in.CurrentPassword, in.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.d.Accounts.ListUsers(c.Request.Context(), model.Role(c.Query("role")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) createUser(c *gin.Context) {
	var in account.CreateUserInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	u, err := h.d.Accounts.CreateUser(c.Request.Context(), in, actor(c).Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}
