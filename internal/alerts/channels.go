package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// Handler delivers one alert over a notification channel. Handlers must be
// safe for concurrent use.
type Handler interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, alert models.Alert) error

// Notify calls f.
func (f HandlerFunc) Notify(ctx context.Context, alert models.Alert) error {
	return f(ctx, alert)
}

// ConsoleHandler prints alerts to the terminal, colored by severity.
type ConsoleHandler struct{}

// Notify prints one alert line.
func (ConsoleHandler) Notify(_ context.Context, alert models.Alert) error {
	paint := color.New(color.FgYellow)
	switch alert.Severity {
	case models.AlertHigh:
		paint = color.New(color.FgRed)
	case models.AlertCritical:
		paint = color.New(color.FgRed, color.Bold)
	case models.AlertLow:
		paint = color.New(color.FgCyan)
	}
	paint.Printf("[%s] %s: %s\n",
		strings.ToUpper(string(alert.Severity)), alert.Name, alert.Message)
	return nil
}

// EmailHandler sends alerts through an SMTP relay.
type EmailHandler struct {
	// Addr is the relay address, host:port.
	Addr string
	// From is the sender address.
	From string
	// To lists recipient addresses.
	To []string
}

// Notify sends one alert email.
func (h EmailHandler) Notify(_ context.Context, alert models.Alert) error {
	if h.Addr == "" || len(h.To) == 0 {
		return fmt.Errorf("email handler not configured")
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: [veritas %s] %s\r\n\r\n%s\r\nfired at %s\r\n",
		h.From, strings.Join(h.To, ", "), alert.Severity, alert.Name,
		alert.Message, alert.Timestamp.Format(time.RFC3339))
	if err := smtp.SendMail(h.Addr, nil, h.From, h.To, []byte(body)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

// WebhookHandler POSTs alerts as JSON to a configured URL.
type WebhookHandler struct {
	// URL is the webhook endpoint.
	URL string
	// Client overrides the HTTP client; nil uses a 10s-timeout default.
	Client *http.Client
}

// Notify delivers one alert payload.
func (h WebhookHandler) Notify(ctx context.Context, alert models.Alert) error {
	if h.URL == "" {
		return fmt.Errorf("webhook handler not configured")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
