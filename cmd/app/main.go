package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"IELTS-Exam-Runtime/internal/api"
	"IELTS-Exam-Runtime/internal/auth"
	"IELTS-Exam-Runtime/internal/client"
	"IELTS-Exam-Runtime/internal/config"
	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/repository"
	"IELTS-Exam-Runtime/internal/router"
	"IELTS-Exam-Runtime/internal/service"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

func newBackend(cfg config.StorageConfig, logger *zap.Logger) (repository.Backend, func(), error) {
	switch cfg.Driver {
	case "memory":
		return repository.NewMemoryBackend(), func() {}, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisBackend(rdb, "ielts:"), func() { rdb.Close() }, nil
	default:
		b, err := repository.NewFileBackend(cfg.FilePath, logger)
		return b, func() {}, err
	}
}

func main() {
	cfg, warnings, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to build logger: %s", err)
	}
	defer logger.Sync()
	for _, w := range warnings {
		logger.Warn(w)
	}

	backend, closeBackend, err := newBackend(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open local storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeBackend()
	store := repository.NewStore(backend, logger)

	bus := event.NewBus(logger)
	defer bus.Close()

	var rt *service.Runtime
	tokens := auth.NewTokenStore(store)
	apiClient := client.NewApiClient(client.Config{
		BaseURL: cfg.ExamAPI.BaseURL,
		Timeout: cfg.ExamAPI.Timeout(),
	}, tokens, client.Handlers{
		Notifier: bus,
		OnLogout: func() {
			if rt != nil {
				rt.CloseSession()
			}
		},
	}, logger)
	examAPI := client.NewExamApi(apiClient)
	authService := auth.NewAuthService(examAPI, tokens, apiClient, logger)

	rt = service.NewRuntime(
		examAPI,
		client.NewAudioDownloader(cfg.ExamAPI.BaseURL, cfg.ExamAPI.Timeout()),
		service.NewBlobRegistry(),
		service.NewDialogBroker(),
		bus,
		repository.NewHighlightRepository(store),
		repository.NewListeningProgressRepository(store),
		service.RuntimeConfig{
			AnswerDebounce:  cfg.Session.AnswerDebounce(),
			WritingDebounce: cfg.Session.WritingDebounce(),
			RequestTimeout:  cfg.ExamAPI.Timeout(),
			PoorLatency:     cfg.Session.PoorLatency(),
			Listening: service.ListeningConfig{
				SaveInterval:  cfg.Session.ListeningSaveInterval(),
				AutoplayDelay: cfg.Session.AutoplayDelay(),
			},
			Speaking: service.SpeakingConfig{
				CountdownSeconds: cfg.Session.SpeakingCountdownSeconds,
			},
			SpeakingMaxPrompt: cfg.Session.SpeakingMaxPrompt(),
		},
		logger,
	)
	defer rt.CloseSession()

	examHandler := api.NewExamHandler(rt, logger)
	r := router.SetupRouter(router.Handlers{
		Exam:        examHandler,
		Auth:        api.NewAuthHandler(authService, examHandler),
		Preferences: api.NewPreferencesHandler(repository.NewThemeRepository(store), repository.NewFontSizeRepository(store)),
		Notices:     api.NewNoticeHandler(bus, logger),
	}, cfg.Cors.AllowedOrigins)

	fmt.Printf("exam runtime listening on http://localhost%s\n", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
