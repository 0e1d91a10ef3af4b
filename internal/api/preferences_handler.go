package api

import (
	"net/http"

	"IELTS-Exam-Runtime/internal/repository"

	"github.com/gin-gonic/gin"
)

type ThemeRequest struct {
	Theme string `json:"theme" binding:"required,oneof=light dark"`
}

type FontSizeRequest struct {
	Index *int `json:"index" binding:"required"`
}

type PreferencesHandler struct {
	theme    *repository.ThemeRepository
	fontSize *repository.FontSizeRepository
}

func NewPreferencesHandler(theme *repository.ThemeRepository, fontSize *repository.FontSizeRepository) *PreferencesHandler {
	return &PreferencesHandler{theme: theme, fontSize: fontSize}
}

func (h *PreferencesHandler) view() gin.H {
	i := h.fontSize.Get()
	return gin.H{
		"theme":           h.theme.Get(),
		"font_size_index": i,
		"font_size":       repository.FontSizes[i],
	}
}

func (h *PreferencesHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.view())
}

func (h *PreferencesHandler) SetTheme(c *gin.Context) {
	var req ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	h.theme.Set(req.Theme)
	c.JSON(http.StatusOK, h.view())
}

func (h *PreferencesHandler) ToggleTheme(c *gin.Context) {
	h.theme.Toggle()
	c.JSON(http.StatusOK, h.view())
}

func (h *PreferencesHandler) SetFontSize(c *gin.Context) {
	var req FontSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	h.fontSize.Set(*req.Index)
	c.JSON(http.StatusOK, h.view())
}
