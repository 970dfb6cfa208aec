/**
 * @description
 * User-facing bot commands: onboarding with referral payloads and the
 * force-join gate, balance and catalog browsing, referral links, task claims,
 * order placement and order history.
 *
 * @dependencies
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Telegram Bot API.
 * - internal/app, internal/domain, internal/store: Business logic and errors.
 */

package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/exoboost/engagement-service/internal/app"
	"github.com/exoboost/engagement-service/internal/config"
	"github.com/exoboost/engagement-service/internal/domain"
	"github.com/exoboost/engagement-service/internal/store"
)

const historyLimit = 20

// parseReferralPayload extracts the referrer id from a `ref_<id>` deep-link
// payload.
func parseReferralPayload(payload string) (int64, bool) {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "ref_") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(trimmed, "ref_"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) handleStart(ctx context.Context, message *tgbotapi.Message, user *domain.User) {
	if refID, ok := parseReferralPayload(message.CommandArguments()); ok {
		h.service.HandleReferral(ctx, refID, user.TelegramID)
	}

	if channel, blocked := h.forceJoinBlocked(user.TelegramID); blocked {
		joinURL := "https://t.me/" + strings.TrimPrefix(channel, "@")
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Join Channel", joinURL)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("I joined ✅", "check_join")),
		)
		h.replyWithKeyboard(message.Chat.ID, fmt.Sprintf("Welcome! To use this bot you must join %s. Click below to join then press \"I joined\".", channel), keyboard)
		return
	}

	welcome := fmt.Sprintf("Welcome %s!\nUse the menu or commands to interact.\n\n"+
		"Commands:\n"+
		"/balance - Check points\n"+
		"/services - View services\n"+
		"/tasks - Daily tasks\n"+
		"/referral - Get your referral link\n"+
		"/order [service_id] [quantity] - Place order\n"+
		"/history - View orders\n"+
		"/help - Bot instructions\n\n"+
		"Admins: use /admin for admin commands.", message.From.FirstName)
	h.replyWithKeyboard(message.Chat.ID, welcome, mainMenuKeyboard())
}

// forceJoinBlocked checks membership of every required channel. A Telegram
// API error on the lookup counts as not joined; the gate only fails open when
// no channels are configured.
func (h *Handler) forceJoinBlocked(userID int64) (string, bool) {
	for _, channel := range h.forceJoinChannels {
		member, err := h.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
				SuperGroupUsername: channel,
				UserID:             userID,
			},
		})
		if err != nil {
			log.Printf("level=warn component=bot msg=\"force-join membership lookup failed\" channel=%s user_id=%d err=%v", channel, userID, err)
			return channel, true
		}
		switch member.Status {
		case "left", "kicked", "restricted":
			return channel, true
		}
	}
	return "", false
}

func (h *Handler) handleCheckJoin(cq *tgbotapi.CallbackQuery) {
	if _, blocked := h.forceJoinBlocked(cq.From.ID); blocked {
		alert := tgbotapi.NewCallbackWithAlert(cq.ID, "You still have not joined the required channel.")
		if _, err := h.api.Request(alert); err != nil {
			log.Printf("level=warn component=bot msg=\"failed to answer callback\" err=%v", err)
		}
		return
	}
	h.answerCallback(cq.ID, "")
	edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, "Thank you for joining! Use the menu or /help to continue.")
	if _, err := h.api.Send(edit); err != nil {
		log.Printf("level=warn component=bot msg=\"failed to edit message\" err=%v", err)
	}
}

func (h *Handler) handleBalance(chatID int64, user *domain.User) {
	h.reply(chatID, fmt.Sprintf("Your balance: %d points", user.Balance))
}

func (h *Handler) handleServices(ctx context.Context, chatID int64) {
	services := h.service.ListServices(ctx)
	h.replyWithKeyboard(chatID, "Choose a service:", buildServicesKeyboard(services, 0))
}

func (h *Handler) editToServicesPage(ctx context.Context, chatID int64, messageID, page int) {
	services := h.service.ListServices(ctx)
	keyboard := buildServicesKeyboard(services, page)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, "Available services:", keyboard)
	if _, err := h.api.Send(edit); err != nil {
		log.Printf("level=warn component=bot msg=\"failed to edit services page\" chat_id=%d page=%d err=%v", chatID, page, err)
	}
}

func (h *Handler) handleServiceDetails(cq *tgbotapi.CallbackQuery, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		h.answerCallback(cq.ID, "Service not found")
		return
	}
	svc, ok := config.ServiceByID(id)
	if !ok {
		h.answerCallback(cq.ID, "Service not found")
		return
	}
	h.answerCallback(cq.ID, "")
	h.reply(cq.Message.Chat.ID, fmt.Sprintf(
		"Service: %s\nID: %d\nPoints per unit: %d\nMinimum: %d\n\nPlace order with /order %d [quantity]",
		svc.Name, svc.ID, svc.Points, svc.Min, svc.ID))
}

func (h *Handler) handleReferralLinks(chatID int64, user *domain.User) {
	botRef := fmt.Sprintf("https://t.me/%s?start=ref_%d", h.api.Self.UserName, user.TelegramID)
	verifyLink := fmt.Sprintf("%s/verify?u=%d", h.baseURL, user.TelegramID)
	h.reply(chatID, fmt.Sprintf(
		"Your referral link (Telegram): %s\n\nVerification link (open once to capture IP/device): %s",
		botRef, verifyLink))
}

func (h *Handler) handleTasks(ctx context.Context, chatID int64) {
	tasks, err := h.service.ListTasks(ctx)
	if err != nil {
		log.Printf("level=error component=bot msg=\"failed to list tasks\" err=%v", err)
		h.reply(chatID, "Error fetching tasks.")
		return
	}
	if len(tasks) == 0 {
		h.reply(chatID, "No active tasks currently. Admins will add tasks soon.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range tasks {
		label := fmt.Sprintf("%s (+%d pts)", t.Title, t.Points)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("task_%d", t.ID)),
		))
	}
	h.replyWithKeyboard(chatID, "Tasks:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (h *Handler) handleTaskClaim(ctx context.Context, cq *tgbotapi.CallbackQuery, user *domain.User, rawID string) {
	taskID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.answerCallback(cq.ID, "Task not available.")
		return
	}

	task, err := h.service.ClaimTask(ctx, taskID, user.TelegramID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			h.answerCallback(cq.ID, "Task not available.")
		case errors.Is(err, store.ErrAlreadyClaimed):
			h.answerCallback(cq.ID, "You already claimed this task.")
		default:
			log.Printf("level=error component=bot msg=\"task claim failed\" task_id=%d user_id=%d err=%v", taskID, user.TelegramID, err)
			h.answerCallback(cq.ID, "Task claim failed.")
		}
		return
	}
	h.answerCallback(cq.ID, fmt.Sprintf("Task claimed +%d points", task.Points))
	h.reply(cq.Message.Chat.ID, fmt.Sprintf("You earned +%d points for: %s", task.Points, task.Title))
}

// parseOrderArgs parses "/order [service_id] [quantity]" arguments.
func parseOrderArgs(args string) (serviceID, quantity int, ok bool) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, 0, false
	}
	serviceID, err := strconv.Atoi(fields[0])
	if err != nil || serviceID <= 0 {
		return 0, 0, false
	}
	quantity, err = strconv.Atoi(fields[1])
	if err != nil || quantity <= 0 {
		return 0, 0, false
	}
	return serviceID, quantity, true
}

func (h *Handler) handleOrder(ctx context.Context, message *tgbotapi.Message, user *domain.User) {
	serviceID, quantity, ok := parseOrderArgs(message.CommandArguments())
	if !ok {
		h.reply(message.Chat.ID, "Usage: /order [service_id] [quantity]")
		return
	}

	order, err := h.service.PlaceOrder(ctx, user.TelegramID, serviceID, quantity)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownService):
			h.reply(message.Chat.ID, "Service not found.")
		case errors.Is(err, app.ErrBelowMinimum):
			svc, _ := config.ServiceByID(serviceID)
			h.reply(message.Chat.ID, fmt.Sprintf("Minimum order for this service is %d.", svc.Min))
		case errors.Is(err, store.ErrInsufficientBalance):
			h.reply(message.Chat.ID, "Insufficient points balance.")
		case errors.Is(err, store.ErrConflict):
			h.reply(message.Chat.ID, "Could not place the order right now. Please try again.")
		default:
			log.Printf("level=error component=bot msg=\"order failed\" user_id=%d service_id=%d err=%v", user.TelegramID, serviceID, err)
			h.reply(message.Chat.ID, "Error placing order.")
		}
		return
	}

	if order.Status == domain.OrderStatusFailed {
		h.reply(message.Chat.ID, fmt.Sprintf("Order created but failed to process with supplier. Order ID: %s. Support will review.", order.OrderID))
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("Order created: %s\nStatus: %s", order.OrderID, order.Status))
}

func (h *Handler) handleHistory(ctx context.Context, chatID int64, user *domain.User) {
	orders, err := h.service.OrderHistory(ctx, user.TelegramID, historyLimit)
	if err != nil {
		log.Printf("level=error component=bot msg=\"failed to fetch history\" user_id=%d err=%v", user.TelegramID, err)
		h.reply(chatID, "Error fetching order history.")
		return
	}
	if len(orders) == 0 {
		h.reply(chatID, "No orders found.")
		return
	}

	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		lines = append(lines, fmt.Sprintf("%s | %d x%d | %dpts | %s", o.OrderID, o.ServiceID, o.Quantity, o.TotalPoints, o.Status))
	}
	h.reply(chatID, strings.Join(lines, "\n"))
}

func (h *Handler) handleHelp(chatID int64) {
	h.reply(chatID, "Bot instructions:\n"+
		"- Use /services to see available services\n"+
		"- Use /order [service_id] [quantity] to order\n"+
		"- You must join required channels before using the bot\n"+
		"- Use /referral to get your referral link and earn points\n"+
		"- Use /tasks to claim tasks\n"+
		"- Admins have restricted commands via /admin")
}
