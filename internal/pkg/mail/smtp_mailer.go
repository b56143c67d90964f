package mail

import (
	"fmt"
	"net/smtp"
)

// SMTPConfig carries the transport settings for outbound mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SendMail sends a plain-text email via SMTP.
func SendMail(cfg SMTPConfig, from, to, subject, body string) error {
	if cfg.Host == "" || cfg.Port == 0 {
		return fmt.Errorf("smtp transport is not configured")
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	return smtp.SendMail(addr, auth, from, []string{to}, msg)
}
