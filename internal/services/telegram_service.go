package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/models"
)

// Notifier receives order events after they are committed.
type Notifier interface {
	NotifyOrderPlaced(order models.Order, method models.PaymentMethod)
	NotifyPaymentCaptured(order models.Order, payment models.Payment)
	NotifyRefund(order models.Order, refund models.Refund)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) NotifyOrderPlaced(models.Order, models.PaymentMethod) {}
func (NopNotifier) NotifyPaymentCaptured(models.Order, models.Payment)   {}
func (NopNotifier) NotifyRefund(models.Order, models.Refund)             {}

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
	logger      *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, logger *zap.Logger) *TelegramService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.logger.Debug("telegram bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

func (s *TelegramService) dispatch(event, text string) {
	if s.botToken == "" || s.adminChatID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.SendToAdmin(ctx, strings.TrimSpace(text)); err != nil {
			s.logger.Warn("telegram notification failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

// FormatPrice formats an amount with thousand separators and currency.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	whole := amount.Truncate(0)
	str := whole.Abs().String()

	var result strings.Builder
	if amount.IsNegative() {
		result.WriteString("-")
	}
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	frac := amount.Sub(whole).Abs()
	if !frac.IsZero() {
		result.WriteString(strings.TrimPrefix(frac.StringFixed(2), "0"))
	}
	return result.String() + " " + currency
}

// NotifyOrderPlaced sends a new-order message to the admin chat.
func (s *TelegramService) NotifyOrderPlaced(order models.Order, method models.PaymentMethod) {
	var itemsList strings.Builder
	for i, item := range order.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b> (%s)\n   %d x %s = %s\n",
			i+1,
			item.ProductName,
			item.ProductType,
			item.Quantity,
			FormatPrice(item.UnitPrice, order.Currency),
			FormatPrice(item.LineTotal(), order.Currency),
		))
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER</b>
<b>📋 Order:</b> %s
<b>📦 Items:</b>
%s
<b>💰 Total:</b> %s
<b>💳 Payment:</b> %s
<b>📍 Status:</b> %s
━━━━━━━━━━━━━━━━━━`,
		order.OrderNumber,
		itemsList.String(),
		FormatPrice(order.Total, order.Currency),
		method,
		order.Status,
	)
	s.dispatch("order_placed", message)
}

// NotifyPaymentCaptured reports a payment that moved an order to PAID.
func (s *TelegramService) NotifyPaymentCaptured(order models.Order, payment models.Payment) {
	txn := ""
	if payment.TransactionID != nil {
		txn = *payment.TransactionID
	}
	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>📋 Order:</b> %s
<b>🔖 Transaction:</b> %s
<b>💰 Amount:</b> %s
━━━━━━━━━━━━━━━━━━`,
		order.OrderNumber,
		txn,
		FormatPrice(payment.Amount, payment.Currency),
	)
	s.dispatch("payment_captured", message)
}

// NotifyRefund reports refunds that need attention: manual payouts and failures.
func (s *TelegramService) NotifyRefund(order models.Order, refund models.Refund) {
	var title string
	switch refund.Status {
	case models.RefundStatusManual:
		title = "💸 MANUAL REFUND QUEUED"
	case models.RefundStatusFailed:
		title = "⚠️ REFUND FAILED"
	default:
		return
	}

	message := fmt.Sprintf(`<b>%s</b>
<b>📋 Order:</b> %s
<b>↩️ Scenario:</b> %s
<b>💰 Amount:</b> %s
<b>➖ Deduction:</b> %s
━━━━━━━━━━━━━━━━━━`,
		title,
		order.OrderNumber,
		refund.Scenario,
		FormatPrice(refund.Amount, order.Currency),
		FormatPrice(refund.Deduction, order.Currency),
	)
	s.dispatch("refund_"+strings.ToLower(string(refund.Status)), message)
}
