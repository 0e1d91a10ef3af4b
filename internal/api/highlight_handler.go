package api

import (
	"net/http"

	"IELTS-Exam-Runtime/internal/highlight"

	"github.com/gin-gonic/gin"
)

type AddHighlightRequest struct {
	SectionKey string   `json:"section_key" binding:"required"`
	HTML       string   `json:"html" binding:"required"`
	Text       string   `json:"text" binding:"required"`
	ColorIndex int      `json:"color_index" binding:"gte=0"`
	Formats    []string `json:"formats" binding:"dive,oneof=bold italic underline"`
}

type RestoreHighlightsRequest struct {
	SectionKey string `json:"section_key" binding:"required"`
	HTML       string `json:"html" binding:"required"`
}

func (h *ExamHandler) highlighter(c *gin.Context, sectionKey string) (*highlight.Highlighter, bool) {
	a, ok := h.active(c)
	if !ok {
		return nil, false
	}
	return highlight.NewHighlighter(h.runtime.Highlights(), a.AttemptID(), sectionKey, h.logger), true
}

func (h *ExamHandler) ListHighlights(c *gin.Context) {
	hl, ok := h.highlighter(c, sectionFromQuery(c))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlights": hl.Records()})
}

func (h *ExamHandler) AddHighlight(c *gin.Context) {
	var req AddHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	hl, ok := h.highlighter(c, req.SectionKey)
	if !ok {
		return
	}
	surface, err := highlight.NewHTMLSurface(req.HTML)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable html"})
		return
	}
	rec, err := hl.Add(surface, req.Text, req.ColorIndex, req.Formats)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "cannot highlight selection", "details": err.Error()})
		return
	}
	out, err := surface.HTML()
	if err != nil {
		h.handleError(c, err, "cannot render highlighted html")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"highlight": rec, "html": out})
}

func (h *ExamHandler) RestoreHighlights(c *gin.Context) {
	var req RestoreHighlightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	hl, ok := h.highlighter(c, req.SectionKey)
	if !ok {
		return
	}
	surface, err := highlight.NewHTMLSurface(req.HTML)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable html"})
		return
	}
	n, err := hl.Restore(c.Request.Context(), surface)
	if err != nil {
		h.handleError(c, err, "highlight restore interrupted")
		return
	}
	out, err := surface.HTML()
	if err != nil {
		h.handleError(c, err, "cannot render highlighted html")
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": n, "html": out})
}

func (h *ExamHandler) ClearHighlights(c *gin.Context) {
	hl, ok := h.highlighter(c, sectionFromQuery(c))
	if !ok {
		return
	}
	hl.Clear(nil)
	c.Status(http.StatusNoContent)
}
