package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to a Razorpay-style payment gateway. The gateway itself is an
// opaque collaborator: we create charge intents, verify the signatures it
// hands back, and consume its webhooks.
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
}

func NewClient(baseURL, keyID, keySecret, webhookSecret string) *Client {
	return &Client{
		baseURL:       baseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateIntent requests an authorized-but-unsettled charge for the given
// amount in minor units (paise).
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Intent, error) {
	payload := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		payload["notes"] = notes
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway: create intent failed with status %d", resp.StatusCode)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}
	return &intent, nil
}

// VerifySignature recomputes the payment proof the gateway signs on capture:
// HMAC-SHA256 over "<chargeIntentID>|<paymentID>" with the key secret.
func (c *Client) VerifySignature(chargeIntentID, paymentID, signature string) bool {
	expected := SignPayment(chargeIntentID, paymentID, c.keySecret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// VerifyWebhookSignature checks the signature the gateway puts on webhook
// deliveries: HMAC-SHA256 over the raw request body with the webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// SignPayment is exported for tests that act as the gateway side.
func SignPayment(chargeIntentID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", chargeIntentID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignWebhook is exported for tests that act as the gateway side.
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
