package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const handoffNotice = "Um atendente humano vai continuar o seu atendimento em breve."

// messenger is the part of *tgbotapi.BotAPI the sender uses.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers replies to Telegram chats. The conversation id
// is the numeric chat id.
type TelegramSender struct {
	api           messenger
	handoffChatID int64
	markdown      bool
	timeout       time.Duration
	logger        *zap.Logger
}

// NewTelegramSender connects to the Bot API. timeout bounds each call;
// media sends get at least mediaTimeout since Telegram fetches the file.
func NewTelegramSender(token string, handoffChatID int64, markdown bool, timeout time.Duration, logger *zap.Logger) (*TelegramSender, error) {
	return dialTelegram(token, tgbotapi.APIEndpoint, handoffChatID, markdown, timeout, logger)
}

func dialTelegram(token, endpoint string, handoffChatID int64, markdown bool, timeout time.Duration, logger *zap.Logger) (*TelegramSender, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: max(timeout, mediaTimeout)}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	s := newTelegramSender(api, handoffChatID, markdown, logger)
	s.timeout = timeout
	return s, nil
}

func newTelegramSender(api messenger, handoffChatID int64, markdown bool, logger *zap.Logger) *TelegramSender {
	return &TelegramSender{
		api:           api,
		handoffChatID: handoffChatID,
		markdown:      markdown,
		timeout:       DefaultTimeout,
		logger:        logger,
	}
}

func chatID(conversationID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(conversationID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("conversation %q is not a telegram chat id", conversationID)
	}
	return id, nil
}

func (s *TelegramSender) Send(ctx context.Context, companyID, conversationID, content string) (json.RawMessage, error) {
	id, err := chatID(conversationID)
	if err != nil {
		return nil, err
	}

	msg := tgbotapi.NewMessage(id, content)
	if s.markdown {
		msg.Text = escapeMarkdown(content)
		msg.ParseMode = "MarkdownV2"
	}
	return s.send(ctx, msg, id, s.timeout)
}

func (s *TelegramSender) SendMedia(ctx context.Context, companyID, conversationID string, media Media) (json.RawMessage, error) {
	id, err := chatID(conversationID)
	if err != nil {
		return nil, err
	}

	file := tgbotapi.FileURL(media.URL)
	var c tgbotapi.Chattable
	switch media.Type {
	case MediaVideo:
		v := tgbotapi.NewVideo(id, file)
		v.Caption = media.Caption
		c = v
	case MediaDocument:
		d := tgbotapi.NewDocument(id, file)
		d.Caption = media.Caption
		c = d
	default:
		p := tgbotapi.NewPhoto(id, file)
		p.Caption = media.Caption
		c = p
	}
	return s.send(ctx, c, id, max(s.timeout, mediaTimeout))
}

// HumanHandoff tells the client a person will take over and, when an
// operator chat is configured, alerts it.
func (s *TelegramSender) HumanHandoff(ctx context.Context, companyID, conversationID, reason string) (json.RawMessage, error) {
	id, err := chatID(conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := s.send(ctx, tgbotapi.NewMessage(id, handoffNotice), id, s.timeout); err != nil {
		return nil, err
	}

	notified := false
	if s.handoffChatID != 0 {
		text := fmt.Sprintf("⚠️ Atendimento humano solicitado\nEmpresa: %s\nConversa: %s", companyID, conversationID)
		if reason != "" {
			text += "\nMotivo: " + reason
		}
		if _, err := s.send(ctx, tgbotapi.NewMessage(s.handoffChatID, text), s.handoffChatID, s.timeout); err != nil {
			return nil, err
		}
		notified = true
	}

	return json.Marshal(map[string]any{
		"success":           true,
		"operator_notified": notified,
	})
}

type sendResult struct {
	msg tgbotapi.Message
	err error
}

// send gives up when ctx ends or timeout passes. The Bot API client takes
// no context, so an abandoned call runs on until the HTTP client timeout.
func (s *TelegramSender) send(ctx context.Context, c tgbotapi.Chattable, chatID int64, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan sendResult, 1)
	go func() {
		msg, err := s.api.Send(c)
		done <- sendResult{msg: msg, err: err}
	}()

	var res sendResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		s.logger.Error("Failed to send message",
			zap.Error(res.err),
			zap.Int64("chat_id", chatID))
		return nil, fmt.Errorf("telegram send: %w", res.err)
	}
	return json.Marshal(map[string]any{
		"success":    true,
		"chat_id":    chatID,
		"message_id": res.msg.MessageID,
	})
}

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
