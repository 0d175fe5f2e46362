// Package notify delivers expiry alerts as text messages. Delivery is best
// effort: failures are reported as a Result, never as an error.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/kitstok/internal/model"
)

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kitstok_notifications_total",
		Help: "Alert delivery attempts by outcome.",
	},
	[]string{"outcome"},
)

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	Delivered Outcome = "delivered"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
)

// Result describes what happened to a message.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Notifier sends one message to one destination.
type Notifier interface {
	Notify(ctx context.Context, message, destination string) Result
}

// TwilioConfig holds gateway credentials and the sender number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string // defaults to https://api.twilio.com
	Timeout    time.Duration
}

// Twilio sends SMS through the Twilio Messages API.
type Twilio struct {
	cfg        TwilioConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Notifier = (*Twilio)(nil)

// NewTwilio creates a Twilio notifier. Missing credentials are not an error:
// every Notify call then returns Skipped.
func NewTwilio(cfg TwilioConfig, logger *slog.Logger) *Twilio {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Twilio{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "notify")),
	}
}

// Configured reports whether the gateway credentials are complete.
func (t *Twilio) Configured() bool {
	return t.cfg.AccountSID != "" && t.cfg.AuthToken != "" && t.cfg.From != ""
}

// Notify makes at most one delivery attempt.
func (t *Twilio) Notify(ctx context.Context, message, destination string) Result {
	res := t.send(ctx, message, destination)
	notificationsTotal.WithLabelValues(string(res.Outcome)).Inc()

	switch res.Outcome {
	case Delivered:
		t.logger.Info("alert delivered", "to", destination)
	case Skipped:
		t.logger.Warn("alert skipped", "reason", res.Reason)
	default:
		t.logger.Error("alert delivery failed", "to", destination, "reason", res.Reason)
	}
	return res
}

func (t *Twilio) send(ctx context.Context, message, destination string) Result {
	if !t.Configured() {
		return Result{Outcome: Skipped, Reason: "messaging gateway not configured"}
	}
	if destination == "" {
		return Result{Outcome: Skipped, Reason: "no alert destination configured"}
	}

	form := url.Values{}
	form.Set("To", destination)
	form.Set("From", t.cfg.From)
	form.Set("Body", message)

	reqURL := strings.TrimRight(t.cfg.BaseURL, "/") +
		"/2010-04-01/Accounts/" + url.PathEscape(t.cfg.AccountSID) + "/Messages.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Outcome: Failed, Reason: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Result{Outcome: Failed, Reason: fmt.Sprintf("sending message: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{
			Outcome: Failed,
			Reason:  fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return Result{Outcome: Delivered}
}

// RenderAlert builds the alert text for a kit that expires in daysLeft days.
func RenderAlert(k model.Kit, daysLeft int) string {
	when := fmt.Sprintf("%d gün içinde", daysLeft)
	if daysLeft == 0 {
		when = "bugün"
	}
	return fmt.Sprintf("Uyarı: %s testi için %s lot numaralı kitin (%d test) son kullanma tarihi %s (%s).",
		k.TestName, k.LotNumber, k.Quantity, when, k.ExpiryText())
}
