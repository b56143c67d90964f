package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ordersync/shopify-fishbowl-bridge/app/controllers"
)

type HttpRouter struct {
	webhook *controllers.WebhookController
}

func NewHttpRouter(webhook *controllers.WebhookController) *HttpRouter {
	return &HttpRouter{webhook: webhook}
}

func (h *HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.webhook.HandleHealth)
	app.Post("/webhooks/shopify", h.webhook.HandleShopifyWebhook)
}
