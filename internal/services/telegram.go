package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// TelegramService sends admin notifications about new orders. Failures are
// logged and never affect the order result.
type TelegramService struct {
	botToken    string
	adminChatID string
}

func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{botToken: botToken, adminChatID: adminChatID}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// OrderNotification carries the fields the admin message is built from.
type OrderNotification struct {
	OrderNumber   string
	TotalAmount   float64
	Currency      string
	PaymentMethod string
	ItemCount     int
	BuyerPhone    string
}

// NotifyNewOrder posts a new-order summary to the admin chat.
func (s *TelegramService) NotifyNewOrder(n OrderNotification) error {
	var sb strings.Builder
	sb.WriteString("<b>New order</b> ")
	sb.WriteString(n.OrderNumber)
	sb.WriteString(fmt.Sprintf("\nItems: %d", n.ItemCount))
	sb.WriteString(fmt.Sprintf("\nTotal: %.2f %s", n.TotalAmount, n.Currency))
	sb.WriteString("\nPayment: " + n.PaymentMethod)
	if n.BuyerPhone != "" {
		sb.WriteString("\nPhone: " + n.BuyerPhone)
	}
	return s.sendToAdmin(sb.String())
}

func (s *TelegramService) sendToAdmin(text string) error {
	if s.botToken == "" || s.adminChatID == "" {
		log.Println("[Telegram] Not configured, skipping notification")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    s.adminChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}
