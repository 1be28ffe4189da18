// Package pricefeed maintains a rolling window of BTC spot closes from
// the Binance kline stream. The window feeds the momentum strategies.
package pricefeed

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const (
	_binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"

	_klineStream = "btcusdt@kline_1m"
)

type pricePoint struct {
	at    time.Time
	close float64
}

// Binance consumes the 1-minute kline stream and keeps only finalized
// closes inside the configured window.
type Binance struct {
	wss    *ws.WebSocket
	window time.Duration

	mu     sync.RWMutex
	points []pricePoint
}

func NewBinance(ctx context.Context, window time.Duration) *Binance {
	return &Binance{
		wss:    ws.New(ctx, _binanceBaseWsUrl),
		window: window,
	}
}

func (f *Binance) Close() {
	f.wss.Close()
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

type klineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	CloseTime int64  `json:"T"`
	Close     string `json:"c"`
	Final     bool   `json:"x"`
}

// Start connects, subscribes the kline stream, and begins recording
// finalized closes until the context or process shuts down.
func (f *Binance) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	if err := f.subscribe(ctx); err != nil {
		return err
	}

	f.observe(ctx)
	return nil
}

func (f *Binance) subscribe(ctx context.Context) error {
	appendIntoRegister := true
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{_klineStream},
				ID:     1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

func (f *Binance) observe(ctx context.Context) {
	ch, cancel := f.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				event, ok := ws.ReadMessage[klineEvent](m)
				if !ok || event.EventType != "kline" || !event.Kline.Final {
					continue
				}

				price, err := strconv.ParseFloat(event.Kline.Close, 64)
				if err != nil {
					logs.Errorf("parse kline close %q: %v", event.Kline.Close, err)
					continue
				}

				f.record(price, time.UnixMilli(event.Kline.CloseTime))
			}
		}
	}()
}

func (f *Binance) record(price float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.points = append(f.points, pricePoint{at: at, close: price})
	f.pruneLocked(at)
}

func (f *Binance) pruneLocked(now time.Time) {
	cutoff := now.Add(-f.window)
	drop := 0
	for drop < len(f.points) && f.points[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		f.points = append(f.points[:0], f.points[drop:]...)
	}
}

// History returns the windowed closes, oldest first.
func (f *Binance) History() []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]float64, len(f.points))
	for i, p := range f.points {
		out[i] = p.close
	}
	return out
}

// Latest returns the newest close, if any kline has finalized yet.
func (f *Binance) Latest() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.points) == 0 {
		return 0, false
	}
	return f.points[len(f.points)-1].close, true
}
