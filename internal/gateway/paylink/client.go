package paylink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"ticket-marketplace/utils"
)

type ClientConfig struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`
}

type Client struct {
	// baseURL is the base url of the Paylink backend.
	baseURL string

	// merchantID identifies this marketplace at Paylink.
	merchantID string

	// clientID is the API client id.
	clientID string

	// clientKey is the API client key.
	clientKey string

	// hmacKey signs every request body.
	hmacKey string

	// accessToken is used to authenticate with the Paylink backend.
	accessToken string

	// mu guards accessToken.
	mu sync.Mutex

	// toggleTokenRefresher notifies the refresher loop after a 401.
	toggleTokenRefresher chan struct{}

	// breaker shields purchase requests from a failing provider.
	breaker *utils.CircuitBreaker

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		clientID:   c.ClientID,
		clientKey:  c.ClientKey,
		hmacKey:    c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		breaker: utils.NewCircuitBreaker("paylink"),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired runs an infinite loop that renews the access
// token periodically and whenever a request sees a 401, reconnecting
// with an exponential backOff strategy.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

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

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect performs authentication with the Paylink backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := requestID()
	if err != nil {
		return "", fmt.Errorf("connectPaylink: requestID: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"clientId":%q,"clientSecret":%q}`,
		number, c.merchantID, c.clientID, c.clientKey)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/v1/auth/token", body, false, &reply); err != nil {
		return "", fmt.Errorf("connectPaylink: %w", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connectPaylink: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// post sends a signed JSON request and decodes the reply. Authenticated
// calls go through the circuit breaker; a 401 toggles the token refresher.
func (c *Client) post(ctx context.Context, path, body string, authenticated bool, out any) error {
	do := func() (interface{}, error) {
		_baseURL, _ := url.Parse(c.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s%s", _baseURL.String(), path), bytes.NewReader([]byte(body)))
		if err != nil {
			return nil, fmt.Errorf("http.NewReq: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
		if authenticated {
			req.Header.Set("Authorization", c.getAccessToken())
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http.Do: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			select {
			case c.toggleTokenRefresher <- struct{}{}:
			default:
			}
			return nil, errors.New("resp.StatusCode: 401 => Unauthorized")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("resp.StatusCode: %d", resp.StatusCode)
		}

		dec := json.NewDecoder(resp.Body)
		if err := dec.Decode(out); err != nil {
			return nil, fmt.Errorf("json.Decode: %w", err)
		}
		return nil, nil
	}

	if !authenticated {
		_, err := do()
		return err
	}
	_, err := c.breaker.Execute(ctx, do)
	return err
}
