package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-index/internal/web/handlers"
	"github.com/kozaktomas/face-index/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}

	if s.deps.Bot != nil {
		telegramHandler := handlers.NewTelegramHandler(s.deps.Bot)
		s.router.With(middleware.RequireSecretToken(s.config.Telegram.WebhookSecret)).
			Post("/telegram/webhook", telegramHandler.Webhook)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.deps.Dispatcher != nil || s.deps.Worker != nil {
			triggers := handlers.NewTriggersHandler(s.deps.Dispatcher, s.deps.Worker, s.deps.Credential)
			r.Post("/triggers/upload", triggers.Upload)
			r.Post("/triggers/face-task", triggers.FaceTask)
		}

		if s.deps.Index != nil && s.deps.Crops != nil {
			facesHandler := handlers.NewFacesHandler(s.deps.Index, s.deps.Crops, s.config.Storage.MediaLinkTTL)
			r.Get("/faces/{faceKey}", facesHandler.Get)
		}
	})
}
