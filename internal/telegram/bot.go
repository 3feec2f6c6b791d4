// Package telegram is the Telegram delivery channel for queued notifications.
// Users link a chat to their account through the bot; the worker then pushes
// missed-message summaries into that chat.
package telegram

import (
	"fmt"
	"log"
	"strings"

	"classhub/backend/internal/localization"
	"classhub/backend/internal/models"
	"classhub/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/golang-jwt/jwt/v5"
)

var supportedLanguages = map[string]bool{"en": true, "uk": true}

// BotService links Telegram chats to accounts and delivers notifications.
type BotService struct {
	BotAPI       *tgbotapi.BotAPI
	Storage      storage.Storage
	Localizer    *localization.Localizer
	JWTSecret    string
	allowedUsers map[int64]string // chatID -> userID, session cache only
}

func NewBotService(token string, s storage.Storage, loc *localization.Localizer, jwtSecret string) (*BotService, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("Authorized on Telegram account %s", api.Self.UserName)
	return &BotService{
		BotAPI:       api,
		Storage:      s,
		Localizer:    loc,
		JWTSecret:    jwtSecret,
		allowedUsers: make(map[int64]string),
	}, nil
}

// Run polls Telegram for updates and processes bot commands. Blocks.
func (s *BotService) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	for update := range s.BotAPI.GetUpdatesChan(u) {
		if update.Message == nil {
			continue
		}
		s.handleIncomingMessage(update.Message)
	}
}

func (s *BotService) handleIncomingMessage(msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start":
		s.handleStartCommand(msg)
	case "stop":
		s.handleStopCommand(msg)
	case "lang":
		s.handleLanguageCommand(msg)
	default:
		s.reply(msg.Chat.ID, s.Localizer.T(s.langOf(msg.Chat.ID), "bot.unknown_command"))
	}
}

// handleStartCommand links the chat to the account named by the deep-link
// code, a short-lived token the app embeds in its t.me link.
func (s *BotService) handleStartCommand(msg *tgbotapi.Message) {
	code := strings.TrimSpace(msg.CommandArguments())
	userID, err := s.resolveLinkCode(code)
	if err != nil {
		log.Printf("WARNING: Telegram link attempt from chat %d rejected: %v", msg.Chat.ID, err)
		s.reply(msg.Chat.ID, s.Localizer.T("en", "bot.link_failed"))
		return
	}

	if err := s.Storage.LinkTelegramChat(userID, msg.Chat.ID); err != nil {
		log.Printf("ERROR: Failed to link Telegram chat %d to user %s: %v", msg.Chat.ID, userID, err)
		s.reply(msg.Chat.ID, s.Localizer.T("en", "bot.link_failed"))
		return
	}

	s.allowedUsers[msg.Chat.ID] = userID
	s.reply(msg.Chat.ID, s.Localizer.T(s.langOf(msg.Chat.ID), "bot.linked"))
}

func (s *BotService) handleStopCommand(msg *tgbotapi.Message) {
	if err := s.Storage.UnlinkTelegramChat(msg.Chat.ID); err != nil {
		log.Printf("ERROR: Failed to unlink Telegram chat %d: %v", msg.Chat.ID, err)
		return
	}
	delete(s.allowedUsers, msg.Chat.ID)
	s.reply(msg.Chat.ID, s.Localizer.T("en", "bot.unlinked"))
}

func (s *BotService) handleLanguageCommand(msg *tgbotapi.Message) {
	lang := strings.TrimSpace(msg.CommandArguments())
	userID, ok := s.allowedUsers[msg.Chat.ID]
	if !ok || !supportedLanguages[lang] {
		s.reply(msg.Chat.ID, s.Localizer.T(s.langOf(msg.Chat.ID), "bot.language_usage"))
		return
	}
	if err := s.Storage.SetUserLanguage(userID, lang); err != nil {
		log.Printf("ERROR: Failed to set language for user %s: %v", userID, err)
		return
	}
	s.reply(msg.Chat.ID, s.Localizer.T(lang, "bot.language_set"))
}

// resolveLinkCode validates the deep-link token and returns the user it names.
func (s *BotService) resolveLinkCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty link code")
	}
	token, err := jwt.Parse(code, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid link code: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("link code carries no user_id")
	}
	return userID, nil
}

// PushNotification delivers one queued notification to the recipient's linked
// chat. Recipients without a linked chat are skipped without error.
func (s *BotService) PushNotification(n *models.QueuedNotification) error {
	user, err := s.Storage.GetUserByID(n.RecipientID)
	if err != nil {
		return err
	}
	if user == nil || user.TelegramChatID == 0 {
		return nil
	}

	lang := user.Language
	if lang == "" {
		lang = "en"
	}
	text := s.Localizer.Tf(lang, "push.new_message", n.Summary)
	_, err = s.BotAPI.Send(tgbotapi.NewMessage(user.TelegramChatID, text))
	return err
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.BotAPI.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("ERROR: Failed to send Telegram reply to chat %d: %v", chatID, err)
	}
}

// langOf returns the stored language for a linked chat, defaulting to English.
func (s *BotService) langOf(chatID int64) string {
	userID, ok := s.allowedUsers[chatID]
	if !ok {
		return "en"
	}
	user, err := s.Storage.GetUserByID(userID)
	if err != nil || user == nil || user.Language == "" {
		return "en"
	}
	return user.Language
}
