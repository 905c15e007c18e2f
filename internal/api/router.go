package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/models/load", app.LoadModelsHandler)

		r.Route("/monitor", func(r chi.Router) {
			r.Get("/status", app.StatusHandler)
			r.Get("/config", app.GetConfigHandler)
			r.Put("/config", app.UpdateConfigHandler)
			r.Get("/history", app.HistoryHandler)
			r.Get("/last", app.LastResultHandler)
			r.Get("/requests", app.RequestsStreamHandler)
			r.Post("/result", app.RecordResultHandler)
			r.Post("/skip", app.SkipHandler)
			r.Post("/analyze", app.AnalyzeClipHandler)
		})
	})

	return r
}
