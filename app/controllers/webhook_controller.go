package controllers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ordersync/shopify-fishbowl-bridge/app/models"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/bridge"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/ledger"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/shopify"
)

// WebhookController owns the webhook intake pipeline: signature check, JSON
// parse, identity derivation, reservation, workflow dispatch and the
// acknowledgement policy.
type WebhookController struct {
	webhookSecret string
	version       string
	store         ledger.Store
	service       *bridge.Service
}

func NewWebhookController(webhookSecret, version string, store ledger.Store, service *bridge.Service) *WebhookController {
	return &WebhookController{
		webhookSecret: webhookSecret,
		version:       version,
		store:         store,
		service:       service,
	}
}

// shopifyOrderPayload covers the payload fields the bridge reads. Shopify
// sends many more; everything else is ignored.
type shopifyOrderPayload struct {
	ID                int64  `json:"id"`
	OrderID           int64  `json:"order_id"`
	OrderNumber       int64  `json:"order_number"`
	AdminGraphqlAPIID string `json:"admin_graphql_api_id"`
	TrackingNumber    string `json:"tracking_number"`
	TrackingCompany   string `json:"tracking_company"`
}

func (p *shopifyOrderPayload) orderID() int64 {
	if p.OrderID > 0 {
		return p.OrderID
	}
	return p.ID
}

func (p *shopifyOrderPayload) orderNumber() string {
	switch {
	case p.OrderNumber > 0:
		return strconv.FormatInt(p.OrderNumber, 10)
	case p.orderID() > 0:
		return strconv.FormatInt(p.orderID(), 10)
	default:
		return ""
	}
}

// fallbackSeed is the order/graph identifier used for event identity when
// the upstream omits the event id header.
func (p *shopifyOrderPayload) fallbackSeed() string {
	if p.AdminGraphqlAPIID != "" {
		return p.AdminGraphqlAPIID
	}
	if id := p.orderID(); id > 0 {
		return strconv.FormatInt(id, 10)
	}
	return ""
}

// HandleShopifyWebhook processes one delivery. Authenticated deliveries are
// always acknowledged with 200: the ledger has absorbed duplicate
// suppression, so a non-2xx would only provoke futile upstream redelivery
// against an unhealthy downstream. Failures are surfaced out-of-band.
func (wc *WebhookController) HandleShopifyWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Shopify-Hmac-Sha256"))
	topic := strings.TrimSpace(c.Get("X-Shopify-Topic"))
	shopDomain := strings.TrimSpace(c.Get("X-Shopify-Shop-Domain"))
	headerEventID := firstHeaderValue(c, "X-Shopify-Event-Id", "X-Shopify-Webhook-Id")

	// Verification runs on the exact raw bytes, before any JSON parsing.
	if !shopify.VerifyWebhookSignature(rawBody, signature, wc.webhookSecret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	var payload shopifyOrderPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}

	eventID := shopify.DeriveEventID(headerEventID, topic, shopDomain, rawBody, payload.fallbackSeed())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := wc.store.Reserve(ctx, ledger.ReserveInput{
		EventID:     eventID,
		Topic:       topic,
		ShopDomain:  shopDomain,
		OrderNumber: payload.orderNumber(),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_unavailable"})
	}
	if !res.Reserved {
		return c.Status(fiber.StatusOK).JSON(duplicateResponse(res.Existing))
	}

	resp, procErr := wc.service.ProcessEvent(ctx, bridge.Event{
		EventID:     eventID,
		Topic:       topic,
		ShopDomain:  shopDomain,
		OrderNumber: payload.orderNumber(),
		OrderRef: shopify.OrderRef{
			OrderID:  payload.orderID(),
			OrderGID: payload.AdminGraphqlAPIID,
		},
		TrackingNumber:  payload.TrackingNumber,
		TrackingCompany: payload.TrackingCompany,
	})
	if procErr != nil {
		// Contained failure: reservation is marked failed and the alert is
		// out; acknowledge so Shopify stops redelivering.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "error": procErr.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// duplicateResponse replays the cached outcome for an already-reserved
// event identity.
func duplicateResponse(existing *models.WebhookEvent) fiber.Map {
	resp := fiber.Map{
		"ok":     true,
		"dedup":  true,
		"status": models.WebhookStatusProcessing,
	}
	if existing == nil {
		return resp
	}
	resp["status"] = existing.Status
	if existing.ResponseJSON != "" {
		var cached map[string]interface{}
		if err := json.Unmarshal([]byte(existing.ResponseJSON), &cached); err == nil {
			resp["result"] = cached
		}
	}
	if existing.Status == models.WebhookStatusFailed && existing.LastError != "" {
		resp["error"] = existing.LastError
	}
	return resp
}

// HandleHealth reports liveness and the build version.
func (wc *WebhookController) HandleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "version": wc.version})
}

func firstHeaderValue(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(c.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
