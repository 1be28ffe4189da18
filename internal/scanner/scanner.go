// Package scanner discovers the short-lived BTC Up/Down markets by
// probing the deterministic 5-minute slot slugs on the events API.
package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_defaultGammaBaseURL = "https://gamma-api.polymarket.com"
	_slugPrefix          = "btc-updown-5m-"

	_slotInterval  = 5 * time.Minute
	_lookbackSlots = 2

	_fetchAttempts = 3
	_fetchTimeout  = 10 * time.Second
	_retryBackoff  = 500 * time.Millisecond
)

// A winner's reported outcome price sits at 1.0; tolerate API rounding.
const _winnerPriceFloor = 0.99

// Scanner tracks every market seen during the current run. Markets are
// only evicted explicitly, after their trades have settled.
type Scanner struct {
	client  *http.Client
	baseURL string

	mu      sync.RWMutex
	markets map[string]model.Market
}

func New(client *http.Client) *Scanner {
	return NewWithBaseURL(client, _defaultGammaBaseURL)
}

func NewWithBaseURL(client *http.Client, baseURL string) *Scanner {
	return &Scanner{
		client:  client,
		baseURL: baseURL,
		markets: make(map[string]model.Market),
	}
}

type gammaEvent struct {
	ID      string        `json:"id"`
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	ID              string `json:"id"`
	Question        string `json:"question"`
	Slug            string `json:"slug"`
	EndDate         string `json:"endDate"`
	Active          bool   `json:"active"`
	Closed          bool   `json:"closed"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	OutcomePrices   string `json:"outcomePrices"`
	ClobTokenIDs    string `json:"clobTokenIds"`
}

// ScanOnce probes the upcoming, current, and recent slot slugs and
// refreshes the tracked market set. It returns the full tracked set so
// the caller sees recently closed markets alongside active ones.
func (s *Scanner) ScanOnce(ctx context.Context) ([]model.Market, error) {
	var firstErr error
	for _, slug := range slotSlugs(time.Now()) {
		if err := s.Probe(ctx, slug); err != nil {
			logs.Errorf("scan %s failed: %v", slug, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	tracked := s.Markets()
	if len(tracked) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return tracked, nil
}

// Probe fetches a single slot slug and tracks whatever it returns.
// Startup reconciliation uses it to re-attach markets holding open
// trades after their slot fell out of the scan window.
func (s *Scanner) Probe(ctx context.Context, slug string) error {
	markets, err := s.fetchEvent(ctx, slug)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, mkt := range markets {
		s.markets[mkt.ID] = mkt
	}
	s.mu.Unlock()
	return nil
}

// Markets returns a copy of the tracked set.
func (s *Scanner) Markets() []model.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Market, 0, len(s.markets))
	for _, mkt := range s.markets {
		out = append(out, mkt)
	}
	return out
}

// Evict drops a market from tracking once the coordinator is done with
// it, or when its orderbooks have proven unusable.
func (s *Scanner) Evict(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markets, marketID)
}

func (s *Scanner) fetchEvent(ctx context.Context, slug string) ([]model.Market, error) {
	body, err := s.get(ctx, fmt.Sprintf("%s/events?slug=%s", s.baseURL, slug))
	if err != nil {
		return nil, err
	}

	var events []gammaEvent
	if err := sonic.ConfigFastest.Unmarshal(body, &events); err != nil {
		return nil, errors.Wrapf(err, "decode event %s", slug)
	}

	var markets []model.Market
	for _, event := range events {
		for _, raw := range event.Markets {
			mkt, err := parseMarket(raw)
			if err != nil {
				logs.Errorf("skip malformed market %s: %v", raw.ID, err)
				continue
			}
			markets = append(markets, mkt)
		}
	}
	return markets, nil
}

func (s *Scanner) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < _fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(_retryBackoff << attempt):
			}
		}

		body, err := s.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Scanner) getOnce(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, _fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("events api status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseMarket maps one raw market into the model, deriving lifecycle
// status and, for closed markets, the resolved outcome.
func parseMarket(raw gammaMarket) (model.Market, error) {
	var tokenIDs []string
	if err := sonic.ConfigFastest.UnmarshalFromString(raw.ClobTokenIDs, &tokenIDs); err != nil {
		return model.Market{}, errors.Wrap(err, "decode clobTokenIds")
	}
	if len(tokenIDs) != 2 {
		return model.Market{}, errors.Errorf("expected 2 outcome tokens, got %d", len(tokenIDs))
	}

	upPrice, downPrice, err := parseOutcomePrices(raw.OutcomePrices)
	if err != nil {
		return model.Market{}, err
	}

	endTime, err := time.Parse(time.RFC3339, raw.EndDate)
	if err != nil {
		return model.Market{}, errors.Wrap(err, "parse endDate")
	}

	mkt := model.Market{
		ID:          raw.ID,
		Slug:        raw.Slug,
		Question:    raw.Question,
		UpTokenID:   tokenIDs[0],
		DownTokenID: tokenIDs[1],
		EndTime:     endTime,
		UpPrice:     upPrice,
		DownPrice:   downPrice,
		Outcome:     enum.OutcomeUnknown,
	}

	switch {
	case !raw.Closed && raw.Active && raw.AcceptingOrders:
		mkt.Status = enum.MarketActive
	case !raw.Closed:
		mkt.Status = enum.MarketClosed
	default:
		mkt.Outcome = resolveOutcome(upPrice, downPrice)
		if mkt.Outcome == enum.OutcomeUnknown {
			mkt.Status = enum.MarketResolutionUnknown
		} else {
			mkt.Status = enum.MarketResolved
		}
	}
	return mkt, nil
}

func parseOutcomePrices(raw string) (up, down float64, err error) {
	if raw == "" {
		return 0, 0, nil
	}

	var prices []string
	if err := sonic.ConfigFastest.UnmarshalFromString(raw, &prices); err != nil {
		return 0, 0, errors.Wrap(err, "decode outcomePrices")
	}
	if len(prices) != 2 {
		return 0, 0, errors.Errorf("expected 2 outcome prices, got %d", len(prices))
	}

	up, err = strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "parse up price")
	}
	down, err = strconv.ParseFloat(prices[1], 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "parse down price")
	}
	return up, down, nil
}

// resolveOutcome reads the winner off the settled outcome prices. A
// closed market without a decisive price stays unknown and is retried
// on later scans.
func resolveOutcome(upPrice, downPrice float64) enum.Outcome {
	switch {
	case upPrice >= _winnerPriceFloor:
		return enum.OutcomeUp
	case downPrice >= _winnerPriceFloor:
		return enum.OutcomeDown
	default:
		return enum.OutcomeUnknown
	}
}

// slotSlugs lists the slot slugs worth probing: the next slot, the
// current one, and a couple behind for settlement.
func slotSlugs(now time.Time) []string {
	current := now.Truncate(_slotInterval)

	slugs := make([]string, 0, _lookbackSlots+2)
	for i := 1; i >= -_lookbackSlots; i-- {
		slot := current.Add(time.Duration(i) * _slotInterval)
		slugs = append(slugs, _slugPrefix+strconv.FormatInt(slot.Unix(), 10))
	}
	return slugs
}
