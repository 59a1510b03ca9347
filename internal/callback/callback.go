// Package callback delivers provisioning outcomes to caller-supplied URLs.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// ErrInvalidURL is returned by ValidateURL for URLs that cannot be delivered to.
var ErrInvalidURL = errors.New("invalid callback URL")

// Status values of a callback payload.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Payload is the JSON body posted to the callback URL.
type Payload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Domain  string `json:"domain"`
}

// ValidateURL accepts only absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// Notifier posts payloads. It never retries.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
	log     logr.Logger
}

// NewNotifier creates a notifier. A nil client selects a default one; a zero
// timeout selects DefaultTimeout.
func NewNotifier(log logr.Logger, client *http.Client, timeout time.Duration) *Notifier {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{client: client, timeout: timeout, log: log}
}

// Notify posts p to target as JSON. Any non-2xx response is an error.
func (n *Notifier) Notify(ctx context.Context, target string, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("callback: marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("callback: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback: POST %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback: POST %s returned status %d", target, resp.StatusCode)
	}
	n.log.V(1).Info("callback delivered", "url", target, "status", p.Status, "domain", p.Domain)
	return nil
}
