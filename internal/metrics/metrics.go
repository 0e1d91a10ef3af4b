package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_client_backend_requests_total",
		Help: "Requests sent to the exam backend by outcome.",
	}, []string{"method", "outcome"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_client_token_refreshes_total",
		Help: "Credential refresh attempts by outcome.",
	}, []string{"outcome"})

	Autosaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_client_autosaves_total",
		Help: "Background saves by kind and result.",
	}, []string{"kind", "result"})

	PreloadedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_client_audio_preload_files_total",
		Help: "Audio files processed by the preload cache by result.",
	}, []string{"result"})

	SectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_client_section_transitions_total",
		Help: "Section advance attempts by result.",
	}, []string{"result"})
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)
