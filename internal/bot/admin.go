/**
 * @description
 * Administrator commands. Authorization is enforced twice: the handlers
 * reject non-admins up front, and the application service re-checks before
 * every privileged mutation so a wiring mistake in this layer cannot leak
 * admin actions.
 *
 * @dependencies
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Telegram Bot API.
 * - internal/app: Business logic and ErrUnauthorized.
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
	"github.com/exoboost/engagement-service/internal/store"
)

const (
	adminUserListLimit  = 100
	adminOrderListLimit = 200
	adminLogListLimit   = 200
)

// requireAdmin replies "Unauthorized" and returns false for non-admins.
func (h *Handler) requireAdmin(message *tgbotapi.Message) bool {
	if !h.service.IsAdmin(message.From.ID) {
		h.reply(message.Chat.ID, "Unauthorized")
		return false
	}
	return true
}

func (h *Handler) handleAdminPanel(message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	h.reply(message.Chat.ID, "Admin Panel (bot):\n"+
		"- /broadcast [message]\n"+
		"- /addpoints [user_id] [amount]\n"+
		"- /users\n"+
		"- /orders\n"+
		"- /ban [user_id]\n"+
		"- /logs\n"+
		"- /addtask\n"+
		"- /audit [user_id]\n"+
		"Use these commands directly in chat.")
}

func (h *Handler) handleBroadcast(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	text := strings.TrimSpace(message.CommandArguments())
	if text == "" {
		h.reply(message.Chat.ID, "Usage: /broadcast [message]")
		return
	}

	targets, err := h.service.BroadcastTargets(ctx, message.From.ID)
	if err != nil {
		log.Printf("level=error component=bot msg=\"broadcast target lookup failed\" admin_id=%d err=%v", message.From.ID, err)
		h.reply(message.Chat.ID, "Broadcast failed.")
		return
	}

	sent := 0
	for _, id := range targets {
		if _, err := h.api.Send(tgbotapi.NewMessage(id, text)); err == nil {
			sent++
		}
	}
	// The audit entry carries the real delivery counts, so it is written only
	// after the send loop has finished.
	if err := h.service.RecordBroadcast(ctx, message.From.ID, sent, len(targets)); err != nil {
		log.Printf("level=warn component=bot msg=\"failed to record broadcast audit\" admin_id=%d err=%v", message.From.ID, err)
	}
	h.reply(message.Chat.ID, fmt.Sprintf("Broadcast sent to %d users (attempted %d).", sent, len(targets)))
}

func (h *Handler) handleAudit(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	fields := strings.Fields(message.CommandArguments())
	if len(fields) < 1 {
		h.reply(message.Chat.ID, "Usage: /audit [user_id]")
		return
	}
	uid, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || uid <= 0 {
		h.reply(message.Chat.ID, "Invalid user id")
		return
	}

	balance, ledgerSum, err := h.service.AuditLedger(ctx, message.From.ID, uid)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.reply(message.Chat.ID, "User not found.")
			return
		}
		log.Printf("level=error component=bot msg=\"ledger audit failed\" admin_id=%d user_id=%d err=%v", message.From.ID, uid, err)
		h.reply(message.Chat.ID, "Audit failed.")
		return
	}
	verdict := "OK"
	if balance != ledgerSum {
		verdict = "MISMATCH"
	}
	h.reply(message.Chat.ID, fmt.Sprintf("User %d | balance %d | ledger %d | %s", uid, balance, ledgerSum, verdict))
}

func (h *Handler) handleAddPoints(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	fields := strings.Fields(message.CommandArguments())
	if len(fields) < 2 {
		h.reply(message.Chat.ID, "Usage: /addpoints [user_id] [amount]")
		return
	}
	uid, err1 := strconv.ParseInt(fields[0], 10, 64)
	amount, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil || uid <= 0 || amount <= 0 {
		h.reply(message.Chat.ID, "Invalid args")
		return
	}

	if err := h.service.AddPoints(ctx, message.From.ID, uid, amount); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.reply(message.Chat.ID, "User not found.")
			return
		}
		log.Printf("level=error component=bot msg=\"addpoints failed\" admin_id=%d user_id=%d err=%v", message.From.ID, uid, err)
		h.reply(message.Chat.ID, "Failed to add points.")
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("Added %d points to %d", amount, uid))
}

func (h *Handler) handleAdminUsers(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	users, err := h.service.ListUsers(ctx, message.From.ID, adminUserListLimit)
	if err != nil {
		log.Printf("level=error component=bot msg=\"user listing failed\" admin_id=%d err=%v", message.From.ID, err)
		h.reply(message.Chat.ID, "Failed to list users.")
		return
	}
	if len(users) == 0 {
		h.reply(message.Chat.ID, "No users")
		return
	}
	lines := make([]string, 0, len(users))
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("%d | %s | %dpts | %s", u.TelegramID, u.Username, u.Balance, u.Status))
	}
	h.reply(message.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handler) handleAdminOrders(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	orders, err := h.service.ListOrders(ctx, message.From.ID, adminOrderListLimit)
	if err != nil {
		log.Printf("level=error component=bot msg=\"order listing failed\" admin_id=%d err=%v", message.From.ID, err)
		h.reply(message.Chat.ID, "Failed to list orders.")
		return
	}
	if len(orders) == 0 {
		h.reply(message.Chat.ID, "No orders")
		return
	}
	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		lines = append(lines, fmt.Sprintf("%s | UID: %d | %d x%d | %d | %s", o.OrderID, o.UserID, o.ServiceID, o.Quantity, o.TotalPoints, o.Status))
	}
	h.reply(message.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handler) handleBan(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	fields := strings.Fields(message.CommandArguments())
	if len(fields) < 1 {
		h.reply(message.Chat.ID, "Usage: /ban [user_id]")
		return
	}
	uid, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || uid <= 0 {
		h.reply(message.Chat.ID, "Invalid user id")
		return
	}

	if err := h.service.BanUser(ctx, message.From.ID, uid); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.reply(message.Chat.ID, "User not found.")
			return
		}
		log.Printf("level=error component=bot msg=\"ban failed\" admin_id=%d user_id=%d err=%v", message.From.ID, uid, err)
		h.reply(message.Chat.ID, "Failed to ban user.")
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("User %d banned.", uid))
}

func (h *Handler) handleAdminLogs(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	logs, err := h.service.ListAdminLogs(ctx, message.From.ID, adminLogListLimit)
	if err != nil {
		log.Printf("level=error component=bot msg=\"log listing failed\" admin_id=%d err=%v", message.From.ID, err)
		h.reply(message.Chat.ID, "Failed to list logs.")
		return
	}
	if len(logs) == 0 {
		h.reply(message.Chat.ID, "No logs")
		return
	}
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, fmt.Sprintf("%s | %d | %s | %s", l.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), l.AdminID, l.Action, l.Details))
	}
	h.reply(message.Chat.ID, strings.Join(lines, "\n"))
}

// parseAddTaskArgs parses "/addtask [points] [title...]" arguments. A
// non-numeric points field falls back to the default reward of 10.
func parseAddTaskArgs(args string) (points int64, title string, ok bool) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, "", false
	}
	points, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || points <= 0 {
		points = 10
	}
	return points, strings.Join(fields[1:], " "), true
}

func (h *Handler) handleAddTask(ctx context.Context, message *tgbotapi.Message) {
	if !h.requireAdmin(message) {
		return
	}
	points, title, ok := parseAddTaskArgs(message.CommandArguments())
	if !ok {
		h.reply(message.Chat.ID, "Usage: /addtask [points] [title]")
		return
	}

	task, err := h.service.CreateTask(ctx, message.From.ID, title, points)
	if err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			h.reply(message.Chat.ID, "Unauthorized")
			return
		}
		log.Printf("level=error component=bot msg=\"addtask failed\" admin_id=%d err=%v", message.From.ID, err)
		h.reply(message.Chat.ID, "Failed to add task.")
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("Task added: %s (+%d pts)", task.Title, task.Points))
}
