// Package scryfall is the client for api.scryfall.com.
//
// Scryfall asks for 50-100ms between requests (~10 req/s max). A single
// Client owns one rate limiter shared by every caller, so concurrent
// lookups queue on it in arrival order rather than overrunning the API.
package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.scryfall.com"
	rateLimitDelay = 100 * time.Millisecond // 100ms between requests (10 req/sec)
	requestTimeout = 15 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second

	// userAgent identifies the bot to Scryfall, per their API guidelines.
	userAgent = "MTGSignalBot/1.0 (github.com/jimsug/mtg-signal-bot)"
)

// Client is a Scryfall API client with rate limiting and retries.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a new Scryfall API client.
func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		// 1 request per 100ms = 10 req/sec
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDelay), 1),
	}
}

// GetCardNamed fetches a card by fuzzy name, optionally limited to a set.
func (c *Client) GetCardNamed(ctx context.Context, name, setCode string) (*Card, error) {
	params := url.Values{}
	params.Set("fuzzy", name)
	if setCode != "" {
		params.Set("set", strings.ToLower(setCode))
	}
	reqURL := fmt.Sprintf("%s/cards/named?%s", c.baseURL, params.Encode())

	var card Card
	if err := c.doRequest(ctx, reqURL, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GetCardBySetNumber fetches a specific printing by set code and
// collector number. This is the most precise lookup Scryfall offers.
func (c *Client) GetCardBySetNumber(ctx context.Context, setCode, collectorNumber string) (*Card, error) {
	reqURL := fmt.Sprintf("%s/cards/%s/%s",
		c.baseURL, url.PathEscape(strings.ToLower(setCode)), url.PathEscape(collectorNumber))

	var card Card
	if err := c.doRequest(ctx, reqURL, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GetRulings fetches Oracle rulings for a card by its Scryfall UUID.
func (c *Client) GetRulings(ctx context.Context, cardID string) ([]Ruling, error) {
	reqURL := fmt.Sprintf("%s/cards/%s/rulings", c.baseURL, url.PathEscape(cardID))

	var list RulingList
	if err := c.doRequest(ctx, reqURL, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// doRequest performs an HTTP GET with rate limiting and retry logic.
// Transient failures (network errors, 429, 5xx) are retried with capped
// exponential backoff; a 404 becomes a *NotFoundError.
func (c *Client) doRequest(ctx context.Context, reqURL string, result interface{}) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			if attempt < maxRetries && ctx.Err() == nil {
				if err := sleepCtx(ctx, backoff); err != nil {
					return lastErr
				}
				backoff = minDuration(backoff*2, maxBackoff)
				continue
			}
			return lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return fmt.Errorf("read response body: %w", readErr)
			}
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("parse JSON response: %w", err)
			}
			if card, ok := result.(*Card); ok {
				card.Raw = body
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			return notFoundFromBody(reqURL, body)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("scryfall returned HTTP %d", resp.StatusCode)
			if attempt < maxRetries {
				wait := backoff
				if ra := resp.Header.Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						wait = d
					}
				}
				if err := sleepCtx(ctx, wait); err != nil {
					return lastErr
				}
				backoff = minDuration(backoff*2, maxBackoff)
				continue
			}
			return lastErr

		default:
			var apiErr APIError
			if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Details != "" {
				return &apiErr
			}
			return fmt.Errorf("scryfall request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// notFoundFromBody builds a NotFoundError, keeping Scryfall's human
// readable detail ("No card found...") when the body carries one.
func notFoundFromBody(reqURL string, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Details != "" {
		return &NotFoundError{URL: reqURL, Details: apiErr.Details}
	}
	return &NotFoundError{URL: reqURL}
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
