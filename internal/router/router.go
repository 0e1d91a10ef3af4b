package router

import (
	"net/http"

	"IELTS-Exam-Runtime/internal/api"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Exam        *api.ExamHandler
	Auth        *api.AuthHandler
	Preferences *api.PreferencesHandler
	Notices     *api.NoticeHandler
}

func SetupRouter(h Handlers, allowedOrigins []string) *gin.Engine {
	r := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowHeaders = append(config.AllowHeaders, "Content-Type")
	r.Use(cors.New(config))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "UP"})
		})

		apiV1.POST("/auth/login", h.Auth.Login)
		apiV1.POST("/auth/logout", h.Auth.Logout)
		apiV1.GET("/auth/status", h.Auth.Status)

		apiV1.GET("/preferences", h.Preferences.Get)
		apiV1.PUT("/preferences/theme", h.Preferences.SetTheme)
		apiV1.POST("/preferences/theme/toggle", h.Preferences.ToggleTheme)
		apiV1.PUT("/preferences/font-size", h.Preferences.SetFontSize)

		apiV1.GET("/blobs/:id", h.Exam.GetBlob)
	}

	session := apiV1.Group("/session")
	{
		session.POST("", h.Exam.OpenSession)
		session.GET("", h.Exam.GetSession)
		session.DELETE("", h.Exam.CloseSession)
		session.GET("/notices", h.Notices.Stream)

		session.POST("/system-check", h.Exam.RunSystemCheck)
		session.POST("/microphone", h.Exam.ReportMicrophone)
		session.POST("/proceed", h.Exam.Proceed)
		session.POST("/load", h.Exam.LoadSection)
		session.POST("/start", h.Exam.StartSection)
		session.POST("/answers", h.Exam.SubmitAnswer)
		session.POST("/answers/toggle", h.Exam.ToggleOption)
		session.POST("/next", h.Exam.NextSection)
		session.POST("/submit", h.Exam.SubmitTest)
		session.POST("/exit", h.Exam.Exit)

		session.GET("/dialog", h.Exam.GetDialog)
		session.POST("/dialog", h.Exam.ResolveDialog)

		session.GET("/preload", h.Exam.PreloadState)
		session.GET("/listening", h.Exam.ListeningView)
		session.POST("/listening/part", h.Exam.SelectPart)
		session.POST("/listening/playback", h.Exam.UpdatePlayback)
		session.POST("/listening/ended", h.Exam.AudioEnded)

		session.GET("/writing/:task", h.Exam.WritingStatus)
		session.PUT("/writing/:task", h.Exam.SetWritingText)
		session.POST("/writing/select", h.Exam.SelectTask)

		session.POST("/speaking/run", h.Exam.RunSpeaking)
		session.GET("/speaking", h.Exam.SpeakingStatus)
		session.POST("/speaking/prompt-ended", h.Exam.PromptEnded)
		session.POST("/speaking/answer", h.Exam.SpeakingAnswer)

		session.GET("/highlights", h.Exam.ListHighlights)
		session.POST("/highlights", h.Exam.AddHighlight)
		session.POST("/highlights/restore", h.Exam.RestoreHighlights)
		session.DELETE("/highlights", h.Exam.ClearHighlights)
	}

	return r
}
