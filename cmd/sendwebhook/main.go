package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/env"
)

// sendwebhook signs and posts a test webhook the way Shopify would, so the
// bridge can be exercised locally without a real shop.
func main() {
	env.SetupEnvFile()

	defaultPort := env.GetEnv("PORT", "3000")
	defaultURL := env.GetEnv("WEBHOOK_URL", fmt.Sprintf("http://127.0.0.1:%s/webhooks/shopify", defaultPort))

	var (
		url         = flag.String("url", defaultURL, "webhook endpoint")
		topic       = flag.String("topic", "orders/fulfilled", "X-Shopify-Topic header")
		shop        = flag.String("shop", env.GetEnv("SHOPIFY_SHOP_DOMAIN", "demo.myshopify.com"), "X-Shopify-Shop-Domain header")
		eventID     = flag.String("eventId", "demo-event-"+uuid.NewString(), "X-Shopify-Event-Id header")
		orderNumber = flag.Int64("orderNumber", 1001, "order number for the generated payload")
		payloadFile = flag.String("payloadFile", "", "file with a JSON payload to send instead of the generated one")
		printOnly   = flag.Bool("print", false, "print the request before sending")
	)
	flag.Parse()

	secret := env.GetEnv("SHOPIFY_WEBHOOK_SECRET", "demo-secret")

	var body []byte
	if *payloadFile != "" {
		raw, err := os.ReadFile(*payloadFile)
		if err != nil {
			log.Fatal(err)
		}
		body = raw
	} else {
		var err error
		body, err = json.Marshal(map[string]interface{}{
			"id":                   *orderNumber,
			"order_id":             *orderNumber,
			"order_number":         *orderNumber,
			"admin_graphql_api_id": "gid://shopify/Order/" + strconv.FormatInt(*orderNumber, 10),
			"tracking_number":      "1Z999AA10123456784",
			"tracking_company":     "UPS",
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Hmac-Sha256", signature)
	req.Header.Set("X-Shopify-Topic", *topic)
	req.Header.Set("X-Shopify-Shop-Domain", *shop)
	req.Header.Set("X-Shopify-Event-Id", *eventID)

	if *printOnly {
		fmt.Println("POST", *url)
		for name, values := range req.Header {
			fmt.Printf("%s: %s\n", name, values[0])
		}
		fmt.Println(string(body))
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Printf("HTTP %d\n%s\n", resp.StatusCode, string(respBody))
}
