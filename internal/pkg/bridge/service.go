package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/fishbowl"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/ledger"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/notify"
	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/shopify"
)

// ImportSession is one authenticated ERP session. Logout must run on every
// exit path.
type ImportSession interface {
	RunImportCSV(ctx context.Context, importName string, headers, row []string) (map[string]interface{}, error)
	Logout(ctx context.Context) error
}

// FulfillmentImporter acquires ERP sessions.
type FulfillmentImporter interface {
	Login(ctx context.Context) (ImportSession, error)
}

// FailureNotifier alerts operators out-of-band about failed pushes. Its own
// failures never surface to callers.
type FailureNotifier interface {
	NotifyFishbowlFailure(f notify.FishbowlFailure)
}

// Event is one authenticated, parsed, freshly reserved delivery.
type Event struct {
	EventID     string
	Topic       string
	ShopDomain  string
	OrderNumber string
	OrderRef    shopify.OrderRef

	TrackingNumber  string
	TrackingCompany string
}

// Service runs the downstream workflow for reserved deliveries: canonical
// status check, import row rendering, Fishbowl import, ledger marks and
// failure alerts.
type Service struct {
	orders   shopify.OrderStatusProvider
	importer FulfillmentImporter
	store    ledger.Store
	notifier FailureNotifier

	importName  string
	headers     []string
	rowTemplate string
}

// NewService wires the workflow. importHeaders is the configured CSV list of
// Fishbowl column names; rowTemplate the matching templated CSV row.
func NewService(
	orders shopify.OrderStatusProvider,
	importer FulfillmentImporter,
	store ledger.Store,
	notifier FailureNotifier,
	importName, importHeaders, rowTemplate string,
) (*Service, error) {
	headers, err := parseHeaderList(importHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid FISHBOWL_IMPORT_HEADERS: %w", err)
	}
	return &Service{
		orders:      orders,
		importer:    importer,
		store:       store,
		notifier:    notifier,
		importName:  importName,
		headers:     headers,
		rowTemplate: rowTemplate,
	}, nil
}

// ProcessEvent runs steps 2-6 of the pipeline for an event the caller has
// just reserved. On success the returned map is the response body to
// acknowledge with (and the cached replay outcome). On error the reservation
// is marked failed and the notifier invoked; the caller still acknowledges
// the delivery, surfacing the error text in the body only.
func (s *Service) ProcessEvent(ctx context.Context, evt Event) (map[string]interface{}, error) {
	status, err := s.orders.GetOrderFulfillmentStatus(ctx, evt.OrderRef)
	if err != nil {
		return nil, s.fail(ctx, evt, fmt.Errorf("shopify status query: %w", err))
	}

	// Premature or stale fulfillment events must not reach the ERP.
	if status.DisplayFulfillmentStatus != "FULFILLED" {
		resp := map[string]interface{}{
			"ok":                true,
			"ignored":           true,
			"fulfillmentStatus": status.DisplayFulfillmentStatus,
		}
		if err := s.markSucceeded(ctx, evt.EventID, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}

	row, err := s.renderImportRow(evt)
	if err != nil {
		return nil, s.fail(ctx, evt, err)
	}

	session, err := s.importer.Login(ctx)
	if err != nil {
		return nil, s.fail(ctx, evt, fmt.Errorf("fishbowl login: %w", err))
	}

	result, importErr := session.RunImportCSV(ctx, s.importName, s.headers, row)
	if logoutErr := session.Logout(ctx); logoutErr != nil {
		// Session release is best-effort; the token expires server-side.
		log.Printf("fishbowl logout failed for event %s: %v", evt.EventID, logoutErr)
	}
	if importErr != nil {
		return nil, s.fail(ctx, evt, fmt.Errorf("fishbowl import: %w", importErr))
	}

	resp := map[string]interface{}{
		"ok":     true,
		"result": result,
	}
	if err := s.markSucceeded(ctx, evt.EventID, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) markSucceeded(ctx context.Context, eventID string, resp map[string]interface{}) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.store.MarkSucceeded(ctx, eventID, string(encoded))
}

// fail marks the reservation failed and alerts operators. The original
// workflow error is returned so the handler can echo it in the 200 body.
func (s *Service) fail(ctx context.Context, evt Event, cause error) error {
	if err := s.store.MarkFailed(ctx, evt.EventID, cause.Error()); err != nil {
		log.Printf("failed to mark event %s failed: %v", evt.EventID, err)
	}
	if s.notifier != nil {
		s.notifier.NotifyFishbowlFailure(notify.FishbowlFailure{
			OrderNumber:  evt.OrderNumber,
			EventID:      evt.EventID,
			Topic:        evt.Topic,
			ShopDomain:   evt.ShopDomain,
			ErrorMessage: cause.Error(),
		})
	}
	return cause
}

// fishbowlImporter adapts *fishbowl.Client to the importer interface.
type fishbowlImporter struct {
	client *fishbowl.Client
}

// NewFishbowlImporter wraps a Fishbowl client as a FulfillmentImporter.
func NewFishbowlImporter(client *fishbowl.Client) FulfillmentImporter {
	return fishbowlImporter{client: client}
}

func (f fishbowlImporter) Login(ctx context.Context) (ImportSession, error) {
	session, err := f.client.Login(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}
