package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks JSON to the processor's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout},
	}
}

type intentRequest struct {
	BookingID   string `json:"booking_id"`
	AmountCents int64  `json:"amount_cents"`
}

func (c *HTTPClient) CreateIntent(ctx context.Context, bookingID string, amountCents int64) (Intent, error) {
	const op = "payment.HTTPClient.CreateIntent"

	var out Intent
	if err := c.post(ctx, "/intents", intentRequest{BookingID: bookingID, AmountCents: amountCents}, &out); err != nil {
		return Intent{}, fmt.Errorf("%s:%w", op, err)
	}
	if out.Handle == "" {
		return Intent{}, fmt.Errorf("%s: empty handle: %w", op, ErrUnavailable)
	}
	return out, nil
}

func (c *HTTPClient) RequestRefund(ctx context.Context, bookingID string, amountCents int64) error {
	const op = "payment.HTTPClient.RequestRefund"

	if err := c.post(ctx, "/refunds", intentRequest{BookingID: bookingID, AmountCents: amountCents}, nil); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
