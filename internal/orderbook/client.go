// Package orderbook reads outcome-token books from the CLOB REST API.
package orderbook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"main/internal/model"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const (
	_defaultClobBaseURL = "https://clob.polymarket.com"

	_fetchAttempts = 3
	_fetchTimeout  = 10 * time.Second
	_retryBackoff  = 300 * time.Millisecond
)

type Client struct {
	client  *http.Client
	baseURL string
}

func New(client *http.Client) *Client {
	return NewWithBaseURL(client, _defaultClobBaseURL)
}

func NewWithBaseURL(client *http.Client, baseURL string) *Client {
	return &Client{client: client, baseURL: baseURL}
}

// The API serializes every price and size as a decimal string.
type bookLevelPayload struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookPayload struct {
	AssetID string             `json:"asset_id"`
	Bids    []bookLevelPayload `json:"bids"`
	Asks    []bookLevelPayload `json:"asks"`
}

// Fetch reads one token's book. Levels with unparsable or non-positive
// prices are dropped rather than failing the whole book.
func (c *Client) Fetch(ctx context.Context, tokenID string) (model.OrderBook, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/book?token_id=%s", c.baseURL, tokenID))
	if err != nil {
		return model.OrderBook{}, err
	}

	var payload bookPayload
	if err := sonic.ConfigFastest.Unmarshal(body, &payload); err != nil {
		return model.OrderBook{}, errors.Wrapf(err, "decode book %s", tokenID)
	}

	book := model.OrderBook{
		TokenID: tokenID,
		Bids:    parseLevels(payload.Bids),
		Asks:    parseLevels(payload.Asks),
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book, nil
}

// FetchPair reads both outcome books concurrently.
func (c *Client) FetchPair(ctx context.Context, upTokenID, downTokenID string) (up, down model.OrderBook, err error) {
	var upErr, downErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		down, downErr = c.Fetch(ctx, downTokenID)
	}()
	up, upErr = c.Fetch(ctx, upTokenID)
	<-done

	if upErr != nil {
		return up, down, errors.Wrap(upErr, "up book")
	}
	if downErr != nil {
		return up, down, errors.Wrap(downErr, "down book")
	}
	return up, down, nil
}

func parseLevels(payload []bookLevelPayload) []model.BookLevel {
	levels := make([]model.BookLevel, 0, len(payload))
	for _, lvl := range payload {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil || size.IsNegative() {
			continue
		}
		levels = append(levels, model.BookLevel{
			Price: price.InexactFloat64(),
			Size:  size.InexactFloat64(),
		})
	}
	return levels
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < _fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(_retryBackoff << attempt):
			}
		}

		body, retryable, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// getOnce reports whether a failure is worth retrying: transport faults
// and 5xx are, 4xx is a caller bug.
func (c *Client) getOnce(ctx context.Context, url string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, _fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= http.StatusInternalServerError, errors.Errorf("book api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	return body, true, err
}
