// Package notify implements the Notifier (C7): a deduplicated, best-effort
// outbound message sink shaped for a Telegram bot endpoint (spec.md §4.7).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ovhfleet/acquire/internal/telemetry"
)

// dedupWindow coalesces identical messages sent within this interval
// (spec.md §4.7: 10s).
const dedupWindow = 10 * time.Second

const sendTimeout = 10 * time.Second

// Notifier sends messages to a Telegram bot, never blocking its caller and
// never returning an error — failures are logged and dropped.
type Notifier struct {
	httpClient *http.Client
	apiBase    string // overridable in tests; defaults to Telegram's API root
	botToken   string
	chatID     string
	logger     *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

const telegramAPIBase = "https://api.telegram.org"

// New creates a Notifier. An empty botToken disables sending (Send becomes a
// no-op that still logs), matching the teacher's pattern of tolerating an
// unconfigured integration rather than failing startup.
func New(botToken, chatID string, logger *slog.Logger) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: sendTimeout},
		apiBase:    telegramAPIBase,
		botToken:   botToken,
		chatID:     chatID,
		logger:     logger,
		lastSent:   make(map[string]time.Time),
	}
}

// Send delivers text asynchronously, fire-and-forget. Concurrent calls carry
// no ordering guarantee (spec.md §4.7).
func (n *Notifier) Send(text string) {
	go n.send(text)
}

func (n *Notifier) send(text string) {
	if n.deduplicated(text) {
		telemetry.NotificationsSentTotal.WithLabelValues("deduplicated").Inc()
		return
	}

	if n.botToken == "" {
		telemetry.NotificationsSentTotal.WithLabelValues("disabled").Inc()
		n.logger.Debug("notification dropped: telegram not configured", "text", text)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := n.deliver(ctx, text); err != nil {
		telemetry.NotificationsSentTotal.WithLabelValues("failed").Inc()
		n.logger.Error("notification send failed", "error", err)
		return
	}
	telemetry.NotificationsSentTotal.WithLabelValues("sent").Inc()
}

func (n *Notifier) deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshalling telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling telegram: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) deduplicated(text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	for t, sentAt := range n.lastSent {
		if now.Sub(sentAt) > dedupWindow {
			delete(n.lastSent, t)
		}
	}

	if sentAt, ok := n.lastSent[text]; ok && now.Sub(sentAt) < dedupWindow {
		return true
	}
	n.lastSent[text] = now
	return false
}

// Enabled reports whether a Telegram bot token has been configured.
func (n *Notifier) Enabled() bool {
	return n.botToken != ""
}
