package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// EventScrapeCompleted carries a models.ScrapeResult, successful or not.
	EventScrapeCompleted = "scrape.completed"

	// SignatureHeader holds "sha256=<hex>" when a secret is configured.
	SignatureHeader = "X-Pagescrape-Signature"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is a valid signature of body.
func Verify(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

// Sender delivers events. The zero value is not usable; call NewSender.
type Sender struct {
	client *http.Client

	// delays before each attempt; the first is normally zero.
	delays []time.Duration

	wg sync.WaitGroup
}

// NewSender returns a Sender with a 10s per-attempt timeout and retries
// after 1s, 5s and 30s.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func (s *Sender) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pagescrape-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends a webhook event in the background, retrying on failure.
func (s *Sender) DeliverAsync(url, secret string, event *Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetry(url, secret, event)
	}()
}

// Dispatch runs produce in the background and delivers the event it
// returns. Wait covers both the work and the delivery.
func (s *Sender) Dispatch(url, secret string, produce func() *Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetry(url, secret, produce())
	}()
}

func (s *Sender) deliverWithRetry(url, secret string, event *Event) {
	for attempt, delay := range s.delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
		err := s.Deliver(ctx, url, secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"id", event.ID,
				"attempt", attempt+1,
			)
			return
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"id", event.ID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"id", event.ID,
	)
}

// Wait blocks until every pending DeliverAsync and Dispatch has finished.
func (s *Sender) Wait() {
	s.wg.Wait()
}
