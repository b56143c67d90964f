package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ordersync/shopify-fishbowl-bridge/app/models"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/bridge"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/ledger"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/notify"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/shopify"
)

const testSecret = "shpss_test_secret"

type stubOrders struct {
	status string
}

func (s *stubOrders) GetOrderFulfillmentStatus(ctx context.Context, ref shopify.OrderRef) (*shopify.OrderFulfillmentStatus, error) {
	return &shopify.OrderFulfillmentStatus{GID: ref.GID(), DisplayFulfillmentStatus: s.status}, nil
}

// stubImporter fails imports whose first row value matches failOrderNumber,
// mirroring the mock Fishbowl server's behavior.
type stubImporter struct {
	failOrderNumber string
	imports         int
	logouts         int
}

func (s *stubImporter) Login(ctx context.Context) (bridge.ImportSession, error) {
	return &stubSession{importer: s}, nil
}

type stubSession struct {
	importer *stubImporter
}

func (s *stubSession) RunImportCSV(ctx context.Context, importName string, headers, row []string) (map[string]interface{}, error) {
	s.importer.imports++
	if len(row) > 0 && row[0] == s.importer.failOrderNumber {
		return nil, fmt.Errorf("fishbowl import failed (HTTP 500): Mock failure for order %s", row[0])
	}
	return map[string]interface{}{"ok": true, "importName": importName}, nil
}

func (s *stubSession) Logout(ctx context.Context) error {
	s.importer.logouts++
	return nil
}

type countingNotifier struct {
	calls []notify.FishbowlFailure
}

func (n *countingNotifier) NotifyFishbowlFailure(f notify.FishbowlFailure) {
	n.calls = append(n.calls, f)
}

type webhookFixture struct {
	app      *fiber.App
	db       *gorm.DB
	store    ledger.Store
	orders   *stubOrders
	importer *stubImporter
	notifier *countingNotifier
}

func newWebhookFixture(t *testing.T, importHeaders, rowTemplate string) *webhookFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.Join(t.TempDir(), "ledger.sqlite"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.WebhookEvent{}))
	t.Cleanup(func() { sqlDB.Close() })

	f := &webhookFixture{
		db:       db,
		store:    ledger.New(db),
		orders:   &stubOrders{status: "FULFILLED"},
		importer: &stubImporter{failOrderNumber: "9999"},
		notifier: &countingNotifier{},
	}

	service, err := bridge.NewService(f.orders, f.importer, f.store, f.notifier,
		"FulfillOrders", importHeaders, rowTemplate)
	require.NoError(t, err)

	wc := NewWebhookController(testSecret, "test", f.store, service)
	f.app = fiber.New()
	f.app.Get("/health", wc.HandleHealth)
	f.app.Post("/webhooks/shopify", wc.HandleShopifyWebhook)
	return f
}

func (f *webhookFixture) eventCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	return count
}

func orderPayload(orderNumber int64) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":                   orderNumber,
		"order_id":             orderNumber,
		"order_number":         orderNumber,
		"admin_graphql_api_id": fmt.Sprintf("gid://shopify/Order/%d", orderNumber),
		"tracking_number":      "1Z999AA10123456784",
		"tracking_company":     "UPS",
	})
	return body
}

func signedRequest(body []byte, eventID string) *http.Request {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Hmac-Sha256", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("X-Shopify-Topic", "orders/fulfilled")
	req.Header.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")
	if eventID != "" {
		req.Header.Set("X-Shopify-Event-Id", eventID)
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

const (
	fixtureHeaders  = "OrderNumber,TrackingNumber,Carrier,ShipDate"
	fixtureTemplate = "{{orderNumber}},{{trackingNumber}},{{trackingCompany}},{{shipDate}}"
)

func TestWebhook_FulfilledOrderSucceeds(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	resp, err := f.app.Test(signedRequest(orderPayload(1001), "evt-a"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])

	assert.EqualValues(t, 1, f.eventCount(t))
	row, err := f.store.Get(context.Background(), "evt-a")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusSucceeded, row.Status)
	assert.Equal(t, "1001", row.OrderNumber)
	assert.Equal(t, 1, f.importer.imports)
	assert.Equal(t, 1, f.importer.logouts)
}

func TestWebhook_ReplayIsDeduplicated(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	first, err := f.app.Test(signedRequest(orderPayload(1001), "evt-a"), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := f.app.Test(signedRequest(orderPayload(1001), "evt-a"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, second.StatusCode)

	body := decodeBody(t, second)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["dedup"])
	assert.Equal(t, models.WebhookStatusSucceeded, body["status"])
	require.NotNil(t, body["result"], "replay carries the cached outcome")

	// Ledger unchanged: still exactly one row, one import.
	assert.EqualValues(t, 1, f.eventCount(t))
	assert.Equal(t, 1, f.importer.imports)
}

func TestWebhook_ImportFailureIsContained(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	resp, err := f.app.Test(signedRequest(orderPayload(9999), "evt-fail"), -1)
	require.NoError(t, err)
	// Contained failure still acknowledges the delivery.
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body["error"], "Mock failure for order 9999")

	row, err := f.store.Get(context.Background(), "evt-fail")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, row.Status)
	assert.NotEmpty(t, row.LastError)
	assert.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "9999", f.notifier.calls[0].OrderNumber)
	assert.Equal(t, 1, f.importer.logouts)
}

func TestWebhook_FailedEventReplayStaysFailed(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	_, err := f.app.Test(signedRequest(orderPayload(9999), "evt-fail"), -1)
	require.NoError(t, err)

	replay, err := f.app.Test(signedRequest(orderPayload(9999), "evt-fail"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, replay.StatusCode)

	body := decodeBody(t, replay)
	assert.Equal(t, true, body["dedup"])
	assert.Equal(t, models.WebhookStatusFailed, body["status"])
	assert.NotEmpty(t, body["error"])

	// No automatic retry: the import ran once, the notifier fired once.
	assert.Equal(t, 1, f.importer.imports)
	assert.Len(t, f.notifier.calls, 1)
}

func TestWebhook_TamperedSignatureRejected(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	req := signedRequest(orderPayload(1001), "evt-a")
	req.Header.Set("X-Shopify-Hmac-Sha256", "dGFtcGVyZWQtc2lnbmF0dXJl")

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Rejected deliveries leave no dedup state behind.
	assert.EqualValues(t, 0, f.eventCount(t))
}

func TestWebhook_MalformedJSONRejected(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	resp, err := f.app.Test(signedRequest([]byte("{not json"), "evt-a"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 0, f.eventCount(t))
}

func TestWebhook_ColumnCountMismatch(t *testing.T) {
	// 4 configured headers, 3 rendered values.
	f := newWebhookFixture(t, fixtureHeaders, "{{orderNumber}},{{trackingNumber}},{{trackingCompany}}")

	resp, err := f.app.Test(signedRequest(orderPayload(1001), "evt-cfg"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	row, err := f.store.Get(context.Background(), "evt-cfg")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, row.Status)
	assert.Contains(t, row.LastError, "3 values")
	assert.Contains(t, row.LastError, "4 headers")
}

func TestWebhook_UnfulfilledOrderIgnored(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)
	f.orders.status = "UNFULFILLED"

	resp, err := f.app.Test(signedRequest(orderPayload(1001), "evt-a"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ignored"])
	assert.Zero(t, f.importer.imports)
}

func TestWebhook_MissingEventIDHeaderDerivesStableIdentity(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	first, err := f.app.Test(signedRequest(orderPayload(1001), ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, first.StatusCode)

	// Redelivery without an event id header must still dedup.
	second, err := f.app.Test(signedRequest(orderPayload(1001), ""), -1)
	require.NoError(t, err)
	body := decodeBody(t, second)
	assert.Equal(t, true, body["dedup"])
	assert.EqualValues(t, 1, f.eventCount(t))
}

func TestHandleHealth(t *testing.T) {
	f := newWebhookFixture(t, fixtureHeaders, fixtureTemplate)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "test", body["version"])
}
