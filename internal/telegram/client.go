// Package telegram delivers forecast summaries through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/logger"
)

// CommandFunc answers a bot command. args is the text after the command.
// The returned text is sent verbatim as a plain message.
type CommandFunc func(ctx context.Context, args string) (string, error)

// Client sends forecast notifications to one chat.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands polls for updates in a goroutine and dispatches bot
// commands to handlers. "ping" is always answered. It returns immediately;
// the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, handlers map[string]CommandFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					reply := dispatch(ctx, handlers, update.Message.Command(), update.Message.CommandArguments())
					if reply == "" {
						continue
					}
					if _, err := c.bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, reply)); err != nil {
						logger.Warn("Failed to reply to /%s: %v", update.Message.Command(), err)
					}
				}
			}
		}
	}()
}

// dispatch returns the reply text for one command, or "" for unknown commands.
func dispatch(ctx context.Context, handlers map[string]CommandFunc, command, args string) string {
	if command == "ping" {
		return "Pong"
	}
	h, ok := handlers[command]
	if !ok {
		return ""
	}
	reply, err := h(ctx, strings.TrimSpace(args))
	if err != nil {
		logger.Warn("Command /%s failed: %v", command, err)
		return "Error: " + err.Error()
	}
	return reply
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError reports a failed forecast run.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Forecast run failed*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendForecastSummary sends the final-year value of every target and
// scenario, plus the year each first reaches target when target > 0.
func (c *Client) SendForecastSummary(res *forecast.Result, target float64) error {
	if res == nil {
		return fmt.Errorf("no forecast result to send")
	}
	return c.sendMarkdownV2(formatSummary(res, target))
}

func formatSummary(res *forecast.Result, target float64) string {
	var b strings.Builder
	b.WriteString("📊 *Indicator Forecasts*\n\n")
	if !res.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "📅 Generated: %s\n", escapeMarkdownV2(res.GeneratedAt.Format("2006-01-02 15:04:05")))
	}
	if n := len(res.Years); n > 0 {
		fmt.Fprintf(&b, "🗓 Horizon: %s\n", escapeMarkdownV2(fmt.Sprintf("%d–%d", res.Years[0], res.Years[n-1])))
	}
	b.WriteString("\n")

	lastYear := 0
	if n := len(res.Years); n > 0 {
		lastYear = res.Years[n-1]
	}

	for i, t := range res.Trends {
		fmt.Fprintf(&b, "%d\\. *%s* \\(%s, %d pts\\)\n", i+1, escapeMarkdownV2(t.Indicator), t.Method, t.Points)
		for _, s := range res.Scenarios {
			value, ok := valueAt(res, t.Indicator, s.Name, lastYear)
			if !ok {
				continue
			}
			line := fmt.Sprintf("   %s: %s", escapeMarkdownV2(s.Name), escapeMarkdownV2(fmt.Sprintf("%.1f%%", value)))
			if target > 0 {
				if year, hit := forecast.TargetCrossing(res.Rows, t.Indicator, s.Name, target); hit {
					line += " 🎯 " + escapeMarkdownV2(fmt.Sprint(year))
				}
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	if target > 0 {
		fmt.Fprintf(&b, "🎯 marks the first year at or above %s", escapeMarkdownV2(fmt.Sprintf("%.0f%%", target)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func valueAt(res *forecast.Result, indicator, scenario string, year int) (float64, bool) {
	for _, r := range res.Rows {
		if r.Indicator == indicator && r.Scenario == scenario && r.Year == year {
			return r.Value, true
		}
	}
	return 0, false
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
