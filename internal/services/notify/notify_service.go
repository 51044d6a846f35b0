package notify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/queue"
	"github.com/shopspring/decimal"
)

// MessageSender delivers a text message to a chat
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// NotifyService formats partner notifications and queues them for delivery.
// Delivery is decoupled through the outbox so a slow or failing bot API
// never blocks order processing.
type NotifyService struct {
	outbox *queue.Outbox
	sender MessageSender
}

// NewNotifyService creates a new notification service
func NewNotifyService(outbox *queue.Outbox, sender MessageSender) *NotifyService {
	return &NotifyService{outbox: outbox, sender: sender}
}

// CommissionAccrued queues a notification about a freshly accrued commission
func (s *NotifyService) CommissionAccrued(ctx context.Context, partner *models.Partner, amount decimal.Decimal, level int, orderRef string) error {
	chatID, err := chatIDOf(partner)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"💰 Commission accrued: <b>%s RUB</b>\nLevel %d, order %s",
		amount.StringFixed(2), level, orderRef,
	)
	return s.outbox.Push(ctx, queue.OutboundMessage{ChatID: chatID, Text: text})
}

// NewPartnerJoined queues a notification to a sponsor about a new signup
func (s *NotifyService) NewPartnerJoined(ctx context.Context, sponsor, newPartner *models.Partner) error {
	chatID, err := chatIDOf(sponsor)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🎉 New partner in your structure: <b>%s</b>", newPartner.FullName())
	return s.outbox.Push(ctx, queue.OutboundMessage{ChatID: chatID, Text: text})
}

// SubscriptionExpiring queues a reminder that a partner's subscription is
// about to lapse
func (s *NotifyService) SubscriptionExpiring(ctx context.Context, partner *models.Partner, daysLeft int) error {
	chatID, err := chatIDOf(partner)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"⚠️ Your partner status expires in %d day(s). Renew to keep earning commissions.",
		daysLeft,
	)
	return s.outbox.Push(ctx, queue.OutboundMessage{ChatID: chatID, Text: text})
}

// SubscriptionExpired queues a notification that the partner status lapsed
func (s *NotifyService) SubscriptionExpired(ctx context.Context, partner *models.Partner) error {
	chatID, err := chatIDOf(partner)
	if err != nil {
		return err
	}
	text := "❌ Your partner status has expired. Renew your subscription to restore it."
	return s.outbox.Push(ctx, queue.OutboundMessage{ChatID: chatID, Text: text})
}

// AdminSummary queues a free-form summary message to the admin chat
func (s *NotifyService) AdminSummary(ctx context.Context, adminChatID int64, text string) error {
	if adminChatID == 0 {
		return nil
	}
	return s.outbox.Push(ctx, queue.OutboundMessage{ChatID: adminChatID, Text: text})
}

// Run drains the outbox until the context is cancelled. Failed deliveries
// go back to the outbox with their attempt count bumped.
func (s *NotifyService) Run(ctx context.Context) {
	log.Printf("Notification worker started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("Notification worker stopped")
			return
		default:
		}

		msg, err := s.outbox.Pop(ctx, 5*time.Second)
		if err != nil {
			log.Printf("Error popping notification: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		if err := s.sender.SendMessage(ctx, msg.ChatID, msg.Text); err != nil {
			log.Printf("Failed to deliver notification to chat %d: %v", msg.ChatID, err)
			if err := s.outbox.Requeue(ctx, *msg); err != nil {
				log.Printf("Failed to requeue notification: %v", err)
			}
		}
	}
}

func chatIDOf(partner *models.Partner) (int64, error) {
	chatID, err := strconv.ParseInt(partner.TelegramID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("partner %s has invalid telegram id %q", partner.ID, partner.TelegramID)
	}
	return chatID, nil
}
