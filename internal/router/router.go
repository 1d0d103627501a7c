// Package router dispatches inbound chat events to handlers. Matching runs
// in tiers: a live conversation first, then slash commands, exact button
// texts, text prefixes and finally callback data. Every event first ensures
// the sender's account exists and lazily expires an overdue plan.
package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ui"
)

// GenericErrorText is the customer-facing reply for unexpected failures.
const GenericErrorText = "An error occurred. Please try again later."

// permissionDeniedText is sent when a non-admin hits an admin route.
const permissionDeniedText = "You do not have permission to use this command."

const planExpiredText = "⚠️ Your plan has expired. Buy a new plan to keep surfing!"

// Handler processes one event for an account.
type Handler func(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error)

// CommandHandler processes a slash command; args are the whitespace-split
// tokens after the command name.
type CommandHandler func(ctx context.Context, account domain.Account, args []string, ev chat.Event) ([]chat.Message, error)

// AccountSource is the slice of the account repository the router needs to
// resolve senders.
type AccountSource interface {
	Ensure(ctx context.Context, chatID int64, profile domain.Profile) (domain.Account, error)
	DeactivatePlan(ctx context.Context, chatID int64) error
}

type route struct {
	handler   Handler
	adminOnly bool
}

type commandRoute struct {
	handler   CommandHandler
	adminOnly bool
}

type prefixRoute struct {
	prefix    string
	handler   Handler
	adminOnly bool
}

// Router matches events to handlers.
type Router struct {
	engine      *conversation.Engine
	accounts    AccountSource
	adminChatID int64
	logger      *logrus.Entry
	now         func() time.Time

	exact     map[string]route
	commands  map[string]commandRoute
	prefixes  []prefixRoute
	callbacks []prefixRoute
}

// New builds a router. adminChatID identifies the single admin identity.
func New(engine *conversation.Engine, accounts AccountSource, adminChatID int64, logger *logrus.Entry) *Router {
	return &Router{
		engine:      engine,
		accounts:    accounts,
		adminChatID: adminChatID,
		logger:      logger,
		now:         time.Now,
		exact:       make(map[string]route),
		commands:    make(map[string]commandRoute),
	}
}

// IsAdmin reports whether the chat ID is the admin identity.
func (r *Router) IsAdmin(chatID int64) bool {
	return r.adminChatID != 0 && chatID == r.adminChatID
}

// Exact registers a handler for an exact button text.
func (r *Router) Exact(text string, h Handler) {
	r.exact[text] = route{handler: h}
}

// ExactAdmin registers an admin-only exact text handler.
func (r *Router) ExactAdmin(text string, h Handler) {
	r.exact[text] = route{handler: h, adminOnly: true}
}

// Command registers a slash command handler; name includes the slash.
func (r *Router) Command(name string, h CommandHandler) {
	r.commands[name] = commandRoute{handler: h}
}

// CommandAdmin registers an admin-only slash command.
func (r *Router) CommandAdmin(name string, h CommandHandler) {
	r.commands[name] = commandRoute{handler: h, adminOnly: true}
}

// TextPrefix registers a handler for texts starting with prefix, such as
// plan buttons that embed a price.
func (r *Router) TextPrefix(prefix string, h Handler) {
	r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, handler: h})
}

// Callback registers a handler for callback data starting with prefix.
func (r *Router) Callback(prefix string, h Handler) {
	r.callbacks = append(r.callbacks, prefixRoute{prefix: prefix, handler: h})
}

// CallbackAdmin registers an admin-only callback handler.
func (r *Router) CallbackAdmin(prefix string, h Handler) {
	r.callbacks = append(r.callbacks, prefixRoute{prefix: prefix, handler: h, adminOnly: true})
}

// Dispatch resolves the sender's account, runs the matching tiers and
// always returns the messages to send. Errors never escape; they are
// logged and turned into a generic reply.
func (r *Router) Dispatch(ctx context.Context, ev chat.Event) []chat.Message {
	account, err := r.accounts.Ensure(ctx, ev.SenderID, domain.Profile{
		Username:  ev.Profile.Username,
		FirstName: ev.Profile.FirstName,
		LastName:  ev.Profile.LastName,
	})
	if err != nil {
		r.logger.WithField("chat_id", ev.SenderID).WithError(err).Error("ensure account")
		return []chat.Message{chat.NewMessage(ev.SenderID, GenericErrorText)}
	}

	var preamble []chat.Message
	if account.PlanExpired(r.now()) {
		if err := r.accounts.DeactivatePlan(ctx, account.ChatID); err != nil {
			r.logger.WithField("chat_id", account.ChatID).WithError(err).Error("lazy plan expiry")
		} else {
			account.Plan.IsActive = false
			preamble = append(preamble, chat.NewMessage(account.ChatID, planExpiredText))
		}
	}

	messages, err := r.match(ctx, account, ev)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"chat_id": ev.SenderID,
			"kind":    ev.Kind,
		}).WithError(err).Error("handle event")
		messages = append(messages, chat.NewMessage(ev.SenderID, GenericErrorText))
	}
	return append(preamble, messages...)
}

func (r *Router) match(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error) {
	if ev.Kind == chat.EventButtonPress {
		for _, cb := range r.callbacks {
			if strings.HasPrefix(ev.Payload, cb.prefix) {
				if cb.adminOnly && !r.IsAdmin(account.ChatID) {
					return []chat.Message{chat.NewMessage(account.ChatID, permissionDeniedText)}, nil
				}
				return cb.handler(ctx, account, ev)
			}
		}
		return nil, nil
	}

	// A live conversation consumes every text event, including button
	// texts; Enter replaces a session, Dispatch never starts one.
	messages, err := r.engine.Dispatch(ctx, ev)
	if !errors.Is(err, conversation.ErrNotInConversation) {
		return messages, err
	}

	text := strings.TrimSpace(ev.Payload)
	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text)
		cmd, ok := r.commands[fields[0]]
		if !ok {
			return r.fallback(account), nil
		}
		if cmd.adminOnly && !r.IsAdmin(account.ChatID) {
			return []chat.Message{chat.NewMessage(account.ChatID, permissionDeniedText)}, nil
		}
		return cmd.handler(ctx, account, fields[1:], ev)
	}

	if rt, ok := r.exact[text]; ok {
		if rt.adminOnly && !r.IsAdmin(account.ChatID) {
			return []chat.Message{chat.NewMessage(account.ChatID, permissionDeniedText)}, nil
		}
		return rt.handler(ctx, account, ev)
	}

	for _, pr := range r.prefixes {
		if strings.HasPrefix(text, pr.prefix) {
			if pr.adminOnly && !r.IsAdmin(account.ChatID) {
				return []chat.Message{chat.NewMessage(account.ChatID, permissionDeniedText)}, nil
			}
			return pr.handler(ctx, account, ev)
		}
	}

	return r.fallback(account), nil
}

func (r *Router) fallback(account domain.Account) []chat.Message {
	msg := chat.NewMessage(account.ChatID, "I didn't understand that. Pick an option from the menu.").
		WithKeyboard(ui.MainMenu())
	return []chat.Message{msg}
}
