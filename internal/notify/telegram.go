// Package notify sends operator alerts and receives control commands
// over a Telegram bot. With no token configured it degrades to a no-op
// so the trading loop never depends on it.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"main/internal/bus"
	"main/internal/ops"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_telegramBaseURL = "https://api.telegram.org"

	_queueCapacity  = 64
	_pollTimeoutSec = 25
	_sendTimeout    = 10 * time.Second
)

// Commands is the control surface exposed to the operator. Replies are
// sent back to the chat verbatim.
type Commands interface {
	// Stop halts new entries until Resume.
	Stop() string
	// Resume clears the manual halt and asks the breaker to re-check.
	Resume() string
	// Status reports balance, pnl, and halt state.
	Status() string
	// Topup credits extra paper capital.
	Topup(amount float64) string
}

type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
	queue   *bus.Queue[string]
}

func NewTelegram(cfg ops.TelegramConfig, client *http.Client) *Telegram {
	return newTelegram(cfg, client, _telegramBaseURL)
}

func newTelegram(cfg ops.TelegramConfig, client *http.Client, baseURL string) *Telegram {
	return &Telegram{
		client:  client,
		baseURL: baseURL,
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		queue:   bus.NewQueue[string](_queueCapacity),
	}
}

// Enabled reports whether a bot token is configured.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// Notify queues a message without blocking. Messages are dropped when
// the notifier is disabled or the queue is saturated.
func (t *Telegram) Notify(text string) {
	if !t.Enabled() {
		return
	}
	if err := t.queue.TryPublish(text); err != nil {
		logs.Errorf("drop notification: %v", err)
	}
}

// Run starts the send worker and the command poll loop. It returns
// immediately; both goroutines stop with the context.
func (t *Telegram) Run(ctx context.Context, commands Commands) {
	if !t.Enabled() {
		logs.Info("telegram notifier disabled")
		return
	}

	go t.queue.Run(ctx, func(text string) {
		if err := t.sendMessage(ctx, text); err != nil {
			logs.Errorf("send telegram message: %v", err)
		}
	})
	go t.pollCommands(ctx, commands)
}

func (t *Telegram) Close() {
	t.queue.Close()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, _sendTimeout)
	defer cancel()

	payload, err := sonic.ConfigFastest.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("telegram status %d: %s", resp.StatusCode, body)
	}
	return nil
}

type updatesPayload struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID int64 `json:"update_id"`
		Message  struct {
			Text string `json:"text"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"result"`
}

func (t *Telegram) pollCommands(ctx context.Context, commands Commands) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Errorf("poll telegram updates: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates.Result {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if strconv.FormatInt(update.Message.Chat.ID, 10) != t.chatID {
				continue
			}

			if reply, handled := dispatch(commands, update.Message.Text); handled {
				t.Notify(reply)
			}
		}
	}
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) (updatesPayload, error) {
	var payload updatesPayload

	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d", t.baseURL, t.token, _pollTimeoutSec, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return payload, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return payload, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return payload, errors.Errorf("telegram status %d", resp.StatusCode)
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, errors.Wrap(err, "decode updates")
	}
	return payload, nil
}

// dispatch routes one chat message to its command handler. Unknown text
// is ignored so casual chatter does not produce replies.
func dispatch(commands Commands, text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "/stop":
		return commands.Stop(), true
	case "/resume":
		return commands.Resume(), true
	case "/status":
		return commands.Status(), true
	case "/topup":
		if len(fields) < 2 {
			return "usage: /topup <amount>", true
		}
		amount, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || amount <= 0 {
			return fmt.Sprintf("invalid topup amount: %s", fields[1]), true
		}
		return commands.Topup(amount), true
	default:
		return "", false
	}
}
