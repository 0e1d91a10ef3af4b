package service

import (
	"context"
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

type ConnectivityStatus string

const (
	ConnectivityChecking ConnectivityStatus = "checking"
	ConnectivityGood     ConnectivityStatus = "good"
	ConnectivityPoor     ConnectivityStatus = "poor"
)

const DefaultPoorLatency = 1500 * time.Millisecond

type MicrophoneProbe interface {
	RequestMicrophone(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) (*model.PingResult, error)
}

type SystemCheckState struct {
	MicrophoneGranted   bool               `json:"microphone_granted"`
	MicrophoneError     string             `json:"microphone_error,omitempty"`
	FullscreenSupported bool               `json:"fullscreen_supported"`
	Connectivity        ConnectivityStatus `json:"connectivity"`
	LatencyMS           int64              `json:"latency_ms"`
	Ready               bool               `json:"ready"`
}

// SystemCheck gates the exam until the microphone is granted and the
// connectivity probe has finished, whatever its verdict.
type SystemCheck struct {
	pinger      Pinger
	mic         MicrophoneProbe
	display     Display
	poorLatency time.Duration
	logger      *zap.Logger

	mu    sync.Mutex
	state SystemCheckState
}

func NewSystemCheck(pinger Pinger, mic MicrophoneProbe, display Display, poorLatency time.Duration, logger *zap.Logger) *SystemCheck {
	if poorLatency <= 0 {
		poorLatency = DefaultPoorLatency
	}
	return &SystemCheck{
		pinger:      pinger,
		mic:         mic,
		display:     display,
		poorLatency: poorLatency,
		logger:      utils.OrNop(logger).Named("system_check"),
		state:       SystemCheckState{Connectivity: ConnectivityChecking},
	}
}

// Run probes every capability it has a handle for. A microphone the shell
// reports later through ReportMicrophone is kept.
func (c *SystemCheck) Run(ctx context.Context) SystemCheckState {
	c.mu.Lock()
	c.state.Connectivity = ConnectivityChecking
	c.mu.Unlock()

	if c.display != nil {
		supported := c.display.FullscreenSupported()
		c.mu.Lock()
		c.state.FullscreenSupported = supported
		c.mu.Unlock()
	}

	if c.mic != nil {
		if err := c.mic.RequestMicrophone(ctx); err != nil {
			c.ReportMicrophone(false, err.Error())
		} else {
			c.ReportMicrophone(true, "")
		}
	}

	status, latency := c.ping(ctx)
	c.mu.Lock()
	c.state.Connectivity = status
	c.state.LatencyMS = latency.Milliseconds()
	c.refreshReadyLocked()
	state := c.state
	c.mu.Unlock()

	c.logger.Info("system check finished",
		zap.Bool("microphone", state.MicrophoneGranted),
		zap.String("connectivity", string(state.Connectivity)),
		zap.Int64("latency_ms", state.LatencyMS),
		zap.Bool("ready", state.Ready))
	return state
}

func (c *SystemCheck) ping(ctx context.Context) (ConnectivityStatus, time.Duration) {
	if c.pinger == nil {
		return ConnectivityPoor, 0
	}
	start := time.Now()
	res, err := c.pinger.Ping(ctx)
	latency := time.Since(start)
	if err != nil || res == nil || !res.Success {
		c.logger.Warn("connectivity probe failed", zap.Duration("latency", latency), zap.Error(err))
		return ConnectivityPoor, latency
	}
	if latency > c.poorLatency {
		return ConnectivityPoor, latency
	}
	return ConnectivityGood, latency
}

// ReportMicrophone records the permission outcome the shell observed.
func (c *SystemCheck) ReportMicrophone(granted bool, errMsg string) SystemCheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.MicrophoneGranted = granted
	if granted {
		c.state.MicrophoneError = ""
	} else {
		c.state.MicrophoneError = errMsg
	}
	c.refreshReadyLocked()
	return c.state
}

func (c *SystemCheck) refreshReadyLocked() {
	c.state.Ready = c.state.MicrophoneGranted && c.state.Connectivity != ConnectivityChecking
}

func (c *SystemCheck) State() SystemCheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
