// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// Sentinel errors for unconfigured channels. Callers treat these as
// "skipped", not as delivery failures.
var (
	ErrEmailNotConfigured = errors.New("email notifications not configured")
	ErrSlackNotConfigured = errors.New("slack notifications not configured")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// NotifierConfig holds delivery channel settings.
type NotifierConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	// FromEmail is the envelope and header sender. Defaults to SMTPUser.
	FromEmail string

	SlackWebhookURL string
}

// NotifierConfigFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USER,
// SMTP_PASSWORD, ALERT_FROM_EMAIL, and SLACK_WEBHOOK_URL.
func NotifierConfigFromEnv() NotifierConfig {
	cfg := NotifierConfig{
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        587,
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		FromEmail:       os.Getenv("ALERT_FROM_EMAIL"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
	}
	if raw := os.Getenv("SMTP_PORT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.SMTPPort = n
		}
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}
	return cfg
}

// EmailConfigured reports whether every SMTP credential is present.
func (c NotifierConfig) EmailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPassword != ""
}

// SlackConfigured reports whether a webhook URL is present.
func (c NotifierConfig) SlackConfigured() bool {
	return c.SlackWebhookURL != ""
}

// -----------------------------------------------------------------------------
// Notifier
// -----------------------------------------------------------------------------

// Notifier delivers alert notifications over email and Slack. Methods
// are safe on a nil receiver and return the channel's not-configured
// sentinel.
type Notifier struct {
	cfg        NotifierConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier builds a Notifier from cfg.
func NewNotifier(cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// SendEmail delivers an HTML message via SMTP. The connection is
// upgraded with STARTTLS when the server offers it, and the context
// deadline bounds the whole conversation.
func (n *Notifier) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if n == nil || !n.cfg.EmailConfigured() {
		return ErrEmailNotConfigured
	}

	addr := net.JoinHostPort(n.cfg.SMTPHost, strconv.Itoa(n.cfg.SMTPPort))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(n.cfg.FromEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildEmail(n.cfg.FromEmail, to, subject, htmlBody)); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	n.logger.Debug("email notification sent", slog.String("to", to))
	return client.Quit()
}

type slackMessage struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

// SendSlack posts the message to the configured incoming webhook.
func (n *Notifier) SendSlack(ctx context.Context, message string) error {
	if n == nil || !n.cfg.SlackConfigured() {
		return ErrSlackNotConfigured
	}

	payload, err := json.Marshal(slackMessage{
		Text:      message,
		Username:  "Analytics Alert Bot",
		IconEmoji: ":warning:",
	})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.cfg.SlackWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug("slack notification sent")
	return nil
}

// -----------------------------------------------------------------------------
// Message formatting
// -----------------------------------------------------------------------------

// TriggerMessage renders the notification body for a triggered alert.
// The SQL preview is capped at 100 characters.
func TriggerMessage(alert *store.Alert, value float64, now time.Time) string {
	query := alert.SQLQuery
	if r := []rune(query); len(r) > 100 {
		query = string(r[:100])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 **Alert Triggered: %s**\n\n", alert.AlertName)
	fmt.Fprintf(&b, "**Metric:** %s\n", alert.Metric)
	fmt.Fprintf(&b, "**Current Value:** %s\n", formatMetric(value))
	fmt.Fprintf(&b, "**Threshold:** %s %s\n", alert.Condition, formatMetric(alert.ThresholdValue))
	fmt.Fprintf(&b, "**Time:** %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Query: %s...", query)
	return b.String()
}

// formatMetric renders values without scientific notation so large
// revenue sums stay readable in notifications.
func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// buildEmail assembles an RFC 5322 message with a single HTML part.
func buildEmail(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
