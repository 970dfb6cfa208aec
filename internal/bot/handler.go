/**
 * @description
 * Telegram update handling for the engagement bot. Every incoming update
 * passes through the same gate: a per-user command throttle, lazy account
 * creation, and a restriction check that refuses banned or blocked accounts
 * before any command logic runs.
 *
 * A failure while handling one update is logged and answered generically; it
 * never stops the update loop.
 *
 * @dependencies
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Telegram Bot API.
 * - internal/app, internal/config, internal/domain: Business logic, config
 *   and domain models.
 */

package bot

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/exoboost/engagement-service/internal/app"
	"github.com/exoboost/engagement-service/internal/config"
	"github.com/exoboost/engagement-service/internal/domain"
)

const updateHandleTimeout = 30 * time.Second

// Handler routes Telegram updates to the application service.
type Handler struct {
	api               *tgbotapi.BotAPI
	service           *app.Service
	limiter           app.RateLimiter
	baseURL           string
	forceJoinChannels []string
	throttle          time.Duration
}

// NewHandler creates a new bot handler.
func NewHandler(api *tgbotapi.BotAPI, service *app.Service, limiter app.RateLimiter, cfg config.Config) *Handler {
	return &Handler{
		api:               api,
		service:           service,
		limiter:           limiter,
		baseURL:           strings.TrimSuffix(cfg.BaseURL, "/"),
		forceJoinChannels: cfg.ForceJoinChannels,
		throttle:          time.Duration(cfg.CommandThrottleSeconds) * time.Second,
	}
}

// Run consumes the update channel until ctx is cancelled.
func (h *Handler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, updateHandleTimeout)
	defer cancel()

	if update.Message != nil {
		h.handleMessage(ctx, update.Message)
	}
	if update.CallbackQuery != nil {
		h.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// gate runs the shared pre-command checks and returns the user when the
// update may proceed.
func (h *Handler) gate(ctx context.Context, from *tgbotapi.User, chatID int64) (*domain.User, bool) {
	if from == nil || from.IsBot {
		return nil, false
	}

	if h.throttled(ctx, from.ID) {
		return nil, false
	}

	user, err := h.service.EnsureUser(ctx, from.ID, displayName(from))
	if err != nil {
		log.Printf("level=error component=bot msg=\"failed to ensure user\" user_id=%d err=%v", from.ID, err)
		h.reply(chatID, "An unexpected error occurred. Please try again later.")
		return nil, false
	}
	if user.Restricted() {
		h.reply(chatID, "Your account is restricted. Contact support.")
		return nil, false
	}
	return user, true
}

// throttled reports whether this user is sending commands faster than the
// configured rate. Throttled updates are dropped silently.
func (h *Handler) throttled(ctx context.Context, userID int64) bool {
	if h.limiter == nil || h.throttle <= 0 {
		return false
	}
	count, _, err := h.limiter.ConsumeRateLimit(ctx, "cmd_user", strconv.FormatInt(userID, 10), 1, h.throttle)
	if err != nil {
		log.Printf("level=warn component=bot msg=\"command throttle unavailable; allowing update\" user_id=%d err=%v", userID, err)
		return false
	}
	return count > 1
}

func (h *Handler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	user, ok := h.gate(ctx, message.From, message.Chat.ID)
	if !ok {
		return
	}

	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start":
		h.handleStart(ctx, message, user)
	case "balance":
		h.handleBalance(message.Chat.ID, user)
	case "services":
		h.handleServices(ctx, message.Chat.ID)
	case "referral":
		h.handleReferralLinks(message.Chat.ID, user)
	case "tasks":
		h.handleTasks(ctx, message.Chat.ID)
	case "order":
		h.handleOrder(ctx, message, user)
	case "history":
		h.handleHistory(ctx, message.Chat.ID, user)
	case "help":
		h.handleHelp(message.Chat.ID)
	case "admin":
		h.handleAdminPanel(message)
	case "broadcast":
		h.handleBroadcast(ctx, message)
	case "addpoints":
		h.handleAddPoints(ctx, message)
	case "users":
		h.handleAdminUsers(ctx, message)
	case "orders":
		h.handleAdminOrders(ctx, message)
	case "ban":
		h.handleBan(ctx, message)
	case "logs":
		h.handleAdminLogs(ctx, message)
	case "addtask":
		h.handleAddTask(ctx, message)
	case "audit":
		h.handleAudit(ctx, message)
	}
}

func (h *Handler) handleCallbackQuery(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil {
		h.answerCallback(cq.ID, "")
		return
	}
	user, ok := h.gate(ctx, cq.From, cq.Message.Chat.ID)
	if !ok {
		h.answerCallback(cq.ID, "")
		return
	}

	data := cq.Data
	switch {
	case data == "check_join":
		h.handleCheckJoin(cq)
	case data == "menu_services":
		h.answerCallback(cq.ID, "")
		h.editToServicesPage(ctx, cq.Message.Chat.ID, cq.Message.MessageID, 0)
	case data == "menu_balance":
		h.answerCallback(cq.ID, "")
		h.handleBalance(cq.Message.Chat.ID, user)
	case data == "menu_tasks":
		h.answerCallback(cq.ID, "")
		h.handleTasks(ctx, cq.Message.Chat.ID)
	case data == "menu_referral":
		h.answerCallback(cq.ID, "")
		h.handleReferralLinks(cq.Message.Chat.ID, user)
	case strings.HasPrefix(data, "svc_page_"):
		h.answerCallback(cq.ID, "")
		if page, err := strconv.Atoi(strings.TrimPrefix(data, "svc_page_")); err == nil {
			h.editToServicesPage(ctx, cq.Message.Chat.ID, cq.Message.MessageID, page)
		}
	case strings.HasPrefix(data, "svc_"):
		h.handleServiceDetails(cq, strings.TrimPrefix(data, "svc_"))
	case strings.HasPrefix(data, "task_"):
		h.handleTaskClaim(ctx, cq, user, strings.TrimPrefix(data, "task_"))
	default:
		h.answerCallback(cq.ID, "")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("level=warn component=bot msg=\"failed to send message\" chat_id=%d err=%v", chatID, err)
	}
}

func (h *Handler) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("level=warn component=bot msg=\"failed to send message\" chat_id=%d err=%v", chatID, err)
	}
}

func (h *Handler) answerCallback(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("level=warn component=bot msg=\"failed to answer callback\" err=%v", err)
	}
}

// displayName prefers the Telegram username and falls back to the profile
// name, matching what the account record stores.
func displayName(from *tgbotapi.User) string {
	if from.UserName != "" {
		return from.UserName
	}
	return strings.TrimSpace(from.FirstName + " " + from.LastName)
}
