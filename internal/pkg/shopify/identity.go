package shopify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DeriveEventID computes the stable deduplication key for a delivery.
//
// Precedence:
//  1. the upstream X-Shopify-Event-Id header, when present;
//  2. "{topic}:{seed}" from an order/graph identifier in the payload;
//  3. "{shopDomain}:{topic}:sha256:{hex}" over the raw body bytes.
//
// The hash fallback makes byte-identical redeliveries collapse onto the same
// identity even when the upstream omits the id header.
func DeriveEventID(headerEventID, topic, shopDomain string, rawBody []byte, fallbackSeed string) string {
	if id := strings.TrimSpace(headerEventID); id != "" {
		return id
	}
	if seed := strings.TrimSpace(fallbackSeed); seed != "" {
		return fmt.Sprintf("%s:%s", topic, seed)
	}
	sum := sha256.Sum256(rawBody)
	return fmt.Sprintf("%s:%s:sha256:%s", shopDomain, topic, hex.EncodeToString(sum[:]))
}
