package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"SignalDesk/internal/domain/models"
	"SignalDesk/pkg/logger"
)

// Sender is the part of tgbot.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Notifier posts new signals and error digests to one chat.
type Notifier struct {
	bot    Sender
	chatID int64
}

func New(token string, chatID int64) (*Notifier, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewWithSender(b, chatID), nil
}

func NewWithSender(bot Sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// PublishSignalEvent forwards signal.created. Status changes stay off the chat.
func (n *Notifier) PublishSignalEvent(_ context.Context, ev models.SignalEvent) error {
	if ev.Event != models.EventSignalCreated {
		return nil
	}
	_, err := n.bot.Send(tgbot.NewMessage(n.chatID, FormatSignal(ev.Signal)))
	return err
}

// SendDigest posts an aggregated error digest.
func (n *Notifier) SendDigest(_ context.Context, entries []logger.AggregatedLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := n.bot.Send(tgbot.NewMessage(n.chatID, FormatDigest(entries)))
	return err
}

func FormatSignal(s models.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", s.SignalType, s.Symbol, s.Timeframe)
	fmt.Fprintf(&b, "Entry: %.5f\nSL: %.5f\nTP: %.5f\n", s.EntryPrice, s.StopLoss, s.TakeProfit)
	fmt.Fprintf(&b, "R:R %.2f, confidence %.0f%%\n", s.RiskRewardRatio, s.Confidence*100)
	fmt.Fprintf(&b, "Algorithms: %s\n", strings.Join(s.AlgorithmsTriggered, ", "))
	fmt.Fprintf(&b, "Valid until %s", s.ValidUntil.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// FormatDigest renders at most 10 entries, most frequent first.
func FormatDigest(entries []logger.AggregatedLogEntry) string {
	const max = 10
	var b strings.Builder
	fmt.Fprintf(&b, "Error digest: %d distinct entries\n", len(entries))
	for i, e := range entries {
		if i == max {
			fmt.Fprintf(&b, "... and %d more", len(entries)-max)
			break
		}
		fmt.Fprintf(&b, "[%s] x%d %s (%s)\n", e.Level, e.Count, e.Message, e.Caller)
	}
	return strings.TrimRight(b.String(), "\n")
}
