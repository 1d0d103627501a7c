// Package telegram hosts the Telegram client and the translation between
// Telegram updates and the transport-neutral chat types.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/config"
	"wifree_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Dispatcher turns one inbound event into the outbound messages it produces.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev chat.Event) []chat.Message
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and the dispatcher it feeds.
type Client struct {
	bot        botAPI
	dispatcher Dispatcher
	logger     *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling.
func NewClient(cfg config.Config, dispatcher Dispatcher, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{
		dispatcher: dispatcher,
		logger:     logger,
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	c.bot = tgBot
	return c, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	ev, ok := extractEvent(update)
	if !ok {
		return
	}

	if update.CallbackQuery != nil {
		// Callbacks must be acknowledged or the client keeps a spinner.
		if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
		}); err != nil {
			c.logger.WithField("event", "telegram_answer_callback_error").WithError(err).Warn("failed to answer callback query")
		}
	}

	c.logger.WithFields(logging.Fields{
		"event":   "telegram_update",
		"kind":    ev.Kind,
		"chat_id": ev.SenderID,
	}).Debug("telegram update received")

	for _, msg := range c.dispatcher.Dispatch(ctx, ev) {
		if err := c.Send(ctx, msg); err != nil {
			c.logger.WithFields(logging.Fields{
				"event":   "telegram_send_error",
				"chat_id": msg.RecipientID,
			}).WithError(err).Warn("failed to send message")
		}
	}
}

// Send delivers one outbound message, translating any attached keyboard.
func (c *Client) Send(ctx context.Context, msg chat.Message) error {
	params := &bot.SendMessageParams{
		ChatID: msg.RecipientID,
		Text:   msg.Text,
	}
	if markup := replyMarkup(msg); markup != nil {
		params.ReplyMarkup = markup
	}

	_, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send message to %d: %w", msg.RecipientID, err)
	}
	return nil
}

func extractEvent(update *models.Update) (chat.Event, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		return chat.Event{
			SenderID: msg.Chat.ID,
			Kind:     chat.EventText,
			Payload:  strings.TrimSpace(msg.Text),
			Profile:  profile(msg.From),
		}, true
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		senderID := cq.From.ID
		if id := messageChatID(cq.Message); id != 0 {
			senderID = id
		}
		return chat.Event{
			SenderID: senderID,
			Kind:     chat.EventButtonPress,
			Payload:  strings.TrimSpace(cq.Data),
			Profile:  profile(&cq.From),
		}, true
	default:
		return chat.Event{}, false
	}
}

func profile(user *models.User) chat.Profile {
	if user == nil {
		return chat.Profile{}
	}
	return chat.Profile{
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func replyMarkup(msg chat.Message) models.ReplyMarkup {
	switch {
	case msg.Inline != nil:
		var rows [][]models.InlineKeyboardButton
		for _, row := range msg.Inline.Rows {
			var buttons []models.InlineKeyboardButton
			for _, b := range row {
				buttons = append(buttons, models.InlineKeyboardButton{
					Text:         b.Text,
					CallbackData: b.Data,
				})
			}
			rows = append(rows, buttons)
		}
		return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	case msg.Keyboard != nil:
		var rows [][]models.KeyboardButton
		for _, row := range msg.Keyboard.Rows {
			var buttons []models.KeyboardButton
			for _, text := range row {
				buttons = append(buttons, models.KeyboardButton{Text: text})
			}
			rows = append(rows, buttons)
		}
		return &models.ReplyKeyboardMarkup{
			Keyboard:       rows,
			ResizeKeyboard: true,
		}
	default:
		return nil
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
