// Package notify pushes balance alerts and transaction updates to a
// Telegram chat. The bot token is read once at construction and never
// appears in logs or returned errors.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBase = "https://api.telegram.org"

var levelEmoji = map[string]string{
	"normal":   "\U0001F7E2", // green circle
	"low":      "\U0001F7E0", // orange circle
	"critical": "\U0001F534", // red circle
}

var statusEmoji = map[string]string{
	"sent":      "\U0001F4E4", // outbox
	"confirmed": "✅",     // check mark
	"failed":    "❌",     // cross mark
	"cancelled": "\U0001F6AB", // prohibited
}

// Notifier sends messages through the Telegram bot API. A notifier
// built without credentials is disabled: every method is a no-op, so
// callers can wire it unconditionally.
type Notifier struct {
	token  string
	chatID string
	base   string
	http   *http.Client
	log    zerolog.Logger
}

// New builds a notifier. Empty token or chat disables it.
func New(log zerolog.Logger, token, chatID string) *Notifier {
	n := &Notifier{
		token:  token,
		chatID: chatID,
		base:   defaultBase,
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	if !n.Enabled() {
		log.Debug().Msg("telegram notifications disabled")
	}
	return n
}

// WithBase overrides the API host, used by tests.
func (n *Notifier) WithBase(base string) *Notifier {
	n.base = strings.TrimRight(base, "/")
	return n
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.token != "" && n.chatID != ""
}

// Send delivers one message to the configured chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}
	q := url.Values{}
	q.Set("chat_id", n.chatID)
	q.Set("text", text)
	q.Set("parse_mode", "HTML")
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage?%s", n.base, n.token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.New("telegram: bad request")
	}
	resp, err := n.http.Do(req)
	if err != nil {
		// url.Error carries the full request URL, token included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	}
	return nil
}

// Alert forwards a balance level change. It satisfies the monitor's
// alert hook and swallows delivery errors with a warning.
func (n *Notifier) Alert(ctx context.Context, level, message string) {
	if !n.Enabled() {
		return
	}
	text := message
	if emoji, ok := levelEmoji[level]; ok {
		text = emoji + " " + message
	}
	if err := n.Send(ctx, text); err != nil {
		n.log.Warn().Err(err).Str("level", level).Msg("telegram alert failed")
	}
}

// TxUpdate forwards a transaction status change. It satisfies the
// engine's notifier hook.
func (n *Notifier) TxUpdate(ctx context.Context, kind, status, signature string, amountSOL float64) {
	if !n.Enabled() {
		return
	}
	var b strings.Builder
	if emoji, ok := statusEmoji[status]; ok {
		b.WriteString(emoji)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%s %s", kind, status)
	if amountSOL > 0 {
		fmt.Fprintf(&b, "\n%.4f SOL", amountSOL)
	}
	if signature != "" {
		fmt.Fprintf(&b, "\nhttps://solscan.io/tx/%s", signature)
	}
	if err := n.Send(ctx, b.String()); err != nil {
		n.log.Warn().Err(err).Str("kind", kind).Str("status", status).Msg("telegram update failed")
	}
}
