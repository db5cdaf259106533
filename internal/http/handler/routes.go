package handler

import (
	"github.com/gofiber/fiber/v2"

	"pdfdrop/internal/config"
	"pdfdrop/internal/http/middleware"
	"pdfdrop/internal/registry"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app. Handlers are
// thin wrappers around the injected registry; no business logic lives here.
func RegisterRoutes(app *fiber.App, svc registry.Service, cfg *config.AppConfig, metrics *middleware.PrometheusMiddleware) {
	app.Get("/healthz", LivenessProbe())

	app.Post("/documents", UploadDocument(svc, cfg, metrics))
	app.Get("/view/:token", ViewDocument(svc))
	app.Get("/qr/:token", QRImage(svc))

	admin := app.Group("/admin", middleware.BasicAuth(cfg.Admin))
	admin.Get("/documents", ListDocuments(svc))
	admin.Delete("/documents/:token", DeleteDocument(svc))
	admin.Post("/purge", TriggerPurge(svc, metrics))
	admin.Post("/reindex", TriggerReindex(svc))
}
