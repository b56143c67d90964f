package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"

	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/env"
)

// Mock Fishbowl Advanced server for local testing and demos. It records
// every login and import so tests can inspect what the bridge sent
// (GET /__mock/requests) and can be told to fail specific order numbers via
// FISHBOWL_MOCK_FAIL_ORDER_NUMBERS.

type loginRecord struct {
	At      string                 `json:"at"`
	Payload map[string]interface{} `json:"payload"`
}

type importRecord struct {
	At          string      `json:"at"`
	ImportName  string      `json:"importName"`
	ContentType string      `json:"contentType"`
	OrderNumber string      `json:"orderNumber"`
	Detail      interface{} `json:"detail"`
}

type mockState struct {
	mu      sync.Mutex
	logins  []loginRecord
	imports []importRecord
	token   string
}

func main() {
	env.SetupEnvFile()

	port := env.GetEnv("FISHBOWL_MOCK_PORT", "2456")
	host := env.GetEnv("FISHBOWL_MOCK_HOST", "127.0.0.1")

	failSet := map[string]bool{}
	for _, s := range strings.Split(env.GetEnv("FISHBOWL_MOCK_FAIL_ORDER_NUMBERS", ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			failSet[s] = true
		}
	}

	state := &mockState{token: uuid.NewString()}

	app := fiber.New()
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "mock": "fishbowl", "port": port})
	})

	app.Get("/__mock/requests", func(c *fiber.Ctx) error {
		state.mu.Lock()
		defer state.mu.Unlock()
		return c.JSON(fiber.Map{"logins": state.logins, "imports": state.imports})
	})

	app.Post("/api/login", func(c *fiber.Ctx) error {
		var payload map[string]interface{}
		_ = json.Unmarshal(c.Body(), &payload)

		state.mu.Lock()
		state.logins = append(state.logins, loginRecord{At: time.Now().UTC().Format(time.RFC3339), Payload: payload})
		token := state.token
		state.mu.Unlock()

		return c.JSON(fiber.Map{"token": token})
	})

	app.Post("/api/logout", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Post("/api/import/:name", func(c *fiber.Ctx) error {
		state.mu.Lock()
		token := state.token
		state.mu.Unlock()

		if bearerToken(c) != token {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthorized (mock)"})
		}

		importName := c.Params("name")
		contentType := c.Get("Content-Type")

		var orderNumber string
		var detail interface{}
		if strings.Contains(contentType, "text/csv") {
			csvText := string(c.Body())
			orderNumber = csvOrderNumber(csvText)
			detail = fiber.Map{"csv": csvText}
		} else {
			var rows [][]string
			_ = json.Unmarshal(c.Body(), &rows)
			if len(rows) >= 2 {
				orderNumber = rowOrderNumber(rows[0], rows[1])
			}
			detail = fiber.Map{"json": rows}
		}

		record := importRecord{
			At:          time.Now().UTC().Format(time.RFC3339),
			ImportName:  importName,
			ContentType: contentType,
			OrderNumber: orderNumber,
			Detail:      detail,
		}
		state.mu.Lock()
		state.imports = append(state.imports, record)
		state.mu.Unlock()

		if orderNumber != "" && failSet[orderNumber] {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": fmt.Sprintf("Mock failure for order %s", orderNumber),
			})
		}

		return c.JSON(fiber.Map{
			"ok":          true,
			"mock":        true,
			"importName":  importName,
			"orderNumber": orderNumber,
			"receivedAt":  record.At,
		})
	})

	log.Printf("Mock Fishbowl listening on %s:%s", host, port)
	log.Fatal(app.Listen(fmt.Sprintf("%s:%s", host, port)))
}

func bearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func csvOrderNumber(csvText string) string {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(csvText)))
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return ""
	}
	return rowOrderNumber(records[0], records[1])
}

func rowOrderNumber(headers, row []string) string {
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		if (name == "ordernumber" || name == "order_number") && i < len(row) {
			return strings.TrimSpace(row[i])
		}
	}
	if len(row) > 0 {
		return strings.TrimSpace(row[0])
	}
	return ""
}
