package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/averko/moneypenny/internal/prompts"
)

// telegramSecretHeader carries the webhook secret Telegram echoes back
// on every delivery when one was registered with setWebhook.
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramSender is the slice of the bot API used to reply. The real
// *tgbotapi.BotAPI satisfies it.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBridge replies to chats through the bot API.
type TelegramBridge struct {
	sender TelegramSender
	logger *slog.Logger
}

// NewTelegramBridge wraps a bot client for sending replies.
func NewTelegramBridge(sender TelegramSender, logger *slog.Logger) *TelegramBridge {
	return &TelegramBridge{sender: sender, logger: logger.With("component", "telegram")}
}

// Reply sends text to the chat. Send failures are logged, not
// returned: the turn already ran and the webhook must still ack.
func (b *TelegramBridge) Reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

// handleTelegramWebhook receives one update per request, runs the turn,
// and replies through the bot API. Telegram retries on non-2xx, so
// anything already processed must answer 200.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" && r.Header.Get(telegramSecretHeader) != s.webhookSecret {
		s.logger.Warn("webhook secret mismatch", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "bad secret", s.logger)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload", s.logger)
		return
	}

	// Edits, callbacks, and channel posts are out of scope.
	if update.Message == nil || update.Message.Chat == nil || update.Message.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var userID int64
	if update.Message.From != nil {
		userID = update.Message.From.ID
	}

	var reply string
	switch update.Message.Command() {
	case "start", "help":
		reply = prompts.Capabilities()
	default:
		reply = s.loop.ProcessMessage(r.Context(), userID, update.Message.Text)
	}

	if s.telegram != nil {
		s.telegram.Reply(update.Message.Chat.ID, reply)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"}, s.logger)
}
