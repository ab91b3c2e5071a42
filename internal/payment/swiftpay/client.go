package swiftpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ticket-acquisition/utils"
)

type ClientConfig struct {
	BaseURL    string `json:"base_url" mapstructure:"base_url"`
	MerchantID string `json:"merchant_id" mapstructure:"merchant_id"`
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	HMACKey    string `json:"hmac_key" mapstructure:"hmac_key"`
}

type client struct {
	// baseURL is the base url of SwiftPay backend.
	baseURL string

	// merchantID is the merchant id of SwiftPay backend.
	merchantID string

	// apiKey authenticates requests to SwiftPay backend.
	apiKey string

	// hmacKey signs request bodies.
	hmacKey string

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *client {
	return &client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		apiKey:     c.APIKey,
		hmacKey:    c.HMACKey,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sessionReply struct {
	SessionID   string `json:"sessionId"`
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkoutUrl"`
}

// createSession opens a checkout session with SwiftPay. Amount is in minor
// currency units; that unit choice is SwiftPay's contract, not ours.
func (c *client) createSession(ctx context.Context, amountMinor int64, currency, payerEmail, referenceLabel string) (*sessionReply, error) {
	number, err := utils.RandomRequestNumber()
	if err != nil {
		return nil, fmt.Errorf("createSession: randomNumber: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"txnAmount":%d,"currency":%q,"payerEmail":%q,"referenceLabel":%q}`,
		number, c.merchantID, amountMinor, currency, payerEmail, referenceLabel)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/checkout/sessions"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("createSession: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("createSession: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("createSession: resp.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Data    sessionReply `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("createSession: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("createSession: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &reply.Data, nil
}
