package notify

import (
	"fmt"
	"log"
	"strings"

	"github.com/ordersync/shopify-fishbowl-bridge/internal/pkg/mail"
)

// FishbowlFailure describes one failed fulfillment push.
type FishbowlFailure struct {
	OrderNumber  string
	EventID      string
	Topic        string
	ShopDomain   string
	ErrorMessage string
}

// EmailNotifier sends best-effort failure alerts over SMTP. Alerting is
// optional: with an incomplete SMTP configuration the notifier stays
// disabled and only logs. Notification errors are logged and swallowed, they
// never reach the webhook response path.
type EmailNotifier struct {
	smtp      mail.SMTPConfig
	fromEmail string
	toEmail   string
	enabled   bool

	send func(cfg mail.SMTPConfig, from, to, subject, body string) error
}

// NewEmailNotifier creates the notifier. Enabled only when host, port and
// both addresses are present.
func NewEmailNotifier(smtpCfg mail.SMTPConfig, fromEmail, toEmail string) *EmailNotifier {
	enabled := smtpCfg.Host != "" && smtpCfg.Port != 0 && fromEmail != "" && toEmail != ""
	return &EmailNotifier{
		smtp:      smtpCfg,
		fromEmail: fromEmail,
		toEmail:   toEmail,
		enabled:   enabled,
		send:      mail.SendMail,
	}
}

// Enabled reports whether alerts will actually be sent.
func (n *EmailNotifier) Enabled() bool {
	return n.enabled
}

// NotifyFishbowlFailure alerts operators about a failed fulfillment push.
// Best effort: it never returns an error to the caller.
func (n *EmailNotifier) NotifyFishbowlFailure(f FishbowlFailure) {
	if !n.enabled {
		log.Printf("email alerts disabled; skipping alert for order %s (event %s): %s",
			f.OrderNumber, f.EventID, f.ErrorMessage)
		return
	}

	subject := fmt.Sprintf("Fishbowl fulfillment FAILED for Shopify order %s", f.OrderNumber)
	body := strings.Join([]string{
		"Shopify -> Fishbowl fulfillment failed.",
		"",
		"Order: " + f.OrderNumber,
		"Shop: " + orUnknown(f.ShopDomain),
		"Topic: " + orUnknown(f.Topic),
		"Event ID: " + orUnknown(f.EventID),
		"",
		"Error:",
		orUnknown(f.ErrorMessage),
	}, "\n")

	if err := n.send(n.smtp, n.fromEmail, n.toEmail, subject, body); err != nil {
		log.Printf("failed to send failure alert for order %s: %v", f.OrderNumber, err)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
