package orberpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const grantTypeDefaultStr = "client_credentials"

type client struct {
	baseURL  string
	tokenURL string

	// clientID is the client id of OrberPay backend.
	clientID     string
	clientSecret string

	brandName string
	returnURL string

	// accessToken is used to authenticate with OrberPay backend.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, cfg *Config) *client {
	return &client{
		baseURL:      cfg.BaseURL,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		brandName:    cfg.BrandName,
		returnURL:    cfg.ReturnURL,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired do infinite loop with period of time
// to perform auto renew token from OrberPay backend with
// exponential backOff strategy.
func (c *client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)

				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken set access token to client.
func (c *client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

// getAccessToken get access token from client.
func (c *client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect makes http call to perform authentication with OrberPay backend.
func (c *client) connect(ctx context.Context) (string, error) {
	query := url.Values{"grant_type": []string{grantTypeDefaultStr}}
	body := strings.NewReader(query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, body)
	if err != nil {
		return "", fmt.Errorf("connectOrberPay: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.URL.User = url.UserPassword(c.clientID, c.clientSecret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectOrberPay: http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return "", errors.New("connectOrberPay: resp.StatusCode: 401 => Unauthorized")
	}

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("connectOrberPay: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connectOrberPay: json.Decode: %w", err)
	}

	return fmt.Sprintf("%s %s", reply.TokenType, reply.AccessToken), nil
}

// ClientConfig is the server-issued configuration the interactive checkout
// surface is keyed by.
type ClientConfig struct {
	ClientToken string `json:"clientToken"`
	MerchantID  string `json:"merchantId"`
	Currency    string `json:"currency"`
}

// fetchClientConfig gets the checkout surface configuration from OrberPay.
// It can fail independently of everything else; callers map that to the
// configuration-unavailable error class.
func (c *client) fetchClientConfig(ctx context.Context) (*ClientConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/client-config", nil)
	if err != nil {
		return nil, fmt.Errorf("fetchClientConfig: http.NewReq: %w", err)
	}
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchClientConfig: http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("fetchClientConfig: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetchClientConfig: resp.StatusCode: %d", resp.StatusCode)
	}

	var reply ClientConfig
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("fetchClientConfig: json.Decode: %w", err)
	}

	return &reply, nil
}

type orderReply struct {
	OrderID     string `json:"id"`
	Status      string `json:"status"`
	ApprovalURL string `json:"approvalUrl"`
}

// createOrder opens a remote order. Amounts are in major units with two
// decimals; that unit choice is OrberPay's contract, opposite to SwiftPay's.
func (c *client) createOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (*orderReply, error) {
	body := fmt.Sprintf(`{"intent":"CAPTURE","amount":{"value":%q,"currencyCode":%q},"description":%q,"brandName":%q,"returnUrl":%q}`,
		amount.StringFixed(2), currency, description, c.brandName, c.returnURL)
	bodyReader := bytes.NewReader([]byte(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bodyReader)
	if err != nil {
		return nil, fmt.Errorf("createOrder: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("createOrder: http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("createOrder: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("createOrder: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply orderReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("createOrder: json.Decode: %w", err)
	}

	return &reply, nil
}

type captureReply struct {
	OrderID   string `json:"id"`
	Status    string `json:"status"`
	CaptureID string `json:"captureId"`
	Currency  string `json:"currencyCode"`
}

// captureOrder settles an approved order.
func (c *client) captureOrder(ctx context.Context, orderID string) (*captureReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/orders/%s/capture", c.baseURL, orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("captureOrder: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("captureOrder: http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("captureOrder: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("captureOrder: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply captureReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("captureOrder: json.Decode: %w", err)
	}

	return &reply, nil
}
