package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ordersync/shopify-fishbowl-bridge/app/controllers"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/bridge"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/config"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/database"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/env"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/fishbowl"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/ledger"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/mail"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/notify"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/router"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/shopify"
)

func main() {
	app, cfg := NewApplication()
	err := app.Listen(fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *config.Config) {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if err := database.SetupDatabase(cfg.DataDir); err != nil {
		log.Fatal(err)
	}

	store := ledger.New(database.GetDB())

	// Live vs. simulated order status source, chosen once here. Call sites
	// only ever see the OrderStatusProvider interface.
	var orders shopify.OrderStatusProvider
	if cfg.ShopifyMode == config.ShopifyModeMock {
		orders = shopify.NewMockClient(cfg.ShopifyMockFulfillmentStatus)
	} else {
		orders = shopify.NewClient(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken, cfg.ShopifyAPIVersion)
	}

	importer := bridge.NewFishbowlImporter(fishbowl.NewClient(
		cfg.FishbowlBaseURL,
		cfg.FishbowlUsername,
		cfg.FishbowlPassword,
		cfg.FishbowlAppName,
		cfg.FishbowlAppDescription,
		cfg.FishbowlAppID,
	))

	notifier := notify.NewEmailNotifier(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
	}, cfg.AlertFromEmail, cfg.AlertToEmail)

	service, err := bridge.NewService(
		orders,
		importer,
		store,
		notifier,
		cfg.FishbowlImportName,
		cfg.FishbowlImportHeaders,
		cfg.FishbowlImportRowTemplate,
	)
	if err != nil {
		log.Fatal(err)
	}

	webhook := controllers.NewWebhookController(cfg.ShopifyWebhookSecret, cfg.AppVersion, store, service)

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024,
	})
	app.Use(recover.New(), fiberlogger.New())
	app.Hooks().OnShutdown(func() error {
		return database.CloseDatabase()
	})

	router.InstallRouter(app, webhook)

	return app, cfg
}
