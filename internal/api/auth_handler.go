package api

import (
	"errors"
	"net/http"

	"IELTS-Exam-Runtime/internal/auth"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthHandler struct {
	authService *auth.AuthService
	exam        *ExamHandler
}

func NewAuthHandler(authService *auth.AuthService, exam *ExamHandler) *AuthHandler {
	return &AuthHandler{authService: authService, exam: exam}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.authService.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrMissingCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		h.exam.handleError(c, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout()
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": h.authService.Authenticated()})
}
