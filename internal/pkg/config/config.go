package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/env"
)

const (
	ShopifyModeReal = "real"
	ShopifyModeMock = "mock"
)

// Config is the validated runtime configuration of the bridge. It mirrors the
// environment surface documented in the README; values are read once at
// startup and passed down explicitly.
type Config struct {
	Port       int    `validate:"gt=0"`
	AppVersion string
	DataDir    string `validate:"required"`

	ShopifyShopDomain            string `validate:"required"`
	ShopifyAccessToken           string `validate:"required"`
	ShopifyWebhookSecret         string `validate:"required"`
	ShopifyAPIVersion            string
	ShopifyMode                  string `validate:"oneof=real mock"`
	ShopifyMockFulfillmentStatus string

	FishbowlBaseURL        string `validate:"required"`
	FishbowlUsername       string `validate:"required"`
	FishbowlPassword       string `validate:"required"`
	FishbowlAppName        string
	FishbowlAppDescription string
	FishbowlAppID          int

	FishbowlImportName        string `validate:"required"`
	FishbowlImportHeaders     string `validate:"required"`
	FishbowlImportRowTemplate string `validate:"required"`

	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	AlertToEmail   string `validate:"omitempty,email"`
	AlertFromEmail string `validate:"omitempty,email"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       intEnv("PORT", 3000),
		AppVersion: env.GetEnv("APP_VERSION", "dev"),
		DataDir:    env.GetEnv("DATA_DIR", "./data"),

		ShopifyShopDomain:            strings.TrimSpace(env.GetEnv("SHOPIFY_SHOP_DOMAIN", "")),
		ShopifyAccessToken:           strings.TrimSpace(env.GetEnv("SHOPIFY_ACCESS_TOKEN", "")),
		ShopifyWebhookSecret:         strings.TrimSpace(env.GetEnv("SHOPIFY_WEBHOOK_SECRET", "")),
		ShopifyAPIVersion:            env.GetEnv("SHOPIFY_API_VERSION", "2025-10"),
		ShopifyMode:                  env.GetEnv("SHOPIFY_MODE", ShopifyModeReal),
		ShopifyMockFulfillmentStatus: env.GetEnv("SHOPIFY_MOCK_DEFAULT_FULFILLMENT_STATUS", "FULFILLED"),

		FishbowlBaseURL:        strings.TrimSpace(env.GetEnv("FISHBOWL_BASE_URL", "")),
		FishbowlUsername:       strings.TrimSpace(env.GetEnv("FISHBOWL_USERNAME", "")),
		FishbowlPassword:       env.GetEnv("FISHBOWL_PASSWORD", ""),
		FishbowlAppName:        env.GetEnv("FISHBOWL_APP_NAME", "Shopify Fishbowl Fulfillment Bridge"),
		FishbowlAppDescription: env.GetEnv("FISHBOWL_APP_DESCRIPTION", "Bridges Shopify fulfillment events to Fishbowl Advanced."),
		FishbowlAppID:          intEnv("FISHBOWL_APP_ID", 9001),

		FishbowlImportName:        strings.TrimSpace(env.GetEnv("FISHBOWL_FULFILLMENT_IMPORT_NAME", "")),
		FishbowlImportHeaders:     env.GetEnv("FISHBOWL_IMPORT_HEADERS", ""),
		FishbowlImportRowTemplate: env.GetEnv("FISHBOWL_IMPORT_ROW_TEMPLATE", ""),

		SMTPHost:       strings.TrimSpace(env.GetEnv("SMTP_HOST", "")),
		SMTPPort:       intEnv("SMTP_PORT", 0),
		SMTPUser:       env.GetEnv("SMTP_USER", ""),
		SMTPPass:       env.GetEnv("SMTP_PASS", ""),
		AlertToEmail:   strings.TrimSpace(env.GetEnv("ALERT_TO_EMAIL", "")),
		AlertFromEmail: strings.TrimSpace(env.GetEnv("ALERT_FROM_EMAIL", "")),
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Field(), fe.Tag()))
			}
			return nil, fmt.Errorf("invalid environment configuration:\n%s", strings.Join(msgs, "\n"))
		}
		return nil, err
	}

	return cfg, nil
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
