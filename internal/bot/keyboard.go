package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/exoboost/engagement-service/internal/config"
)

const servicesPageSize = 8

// servicesPage slices the catalog for one keyboard page and reports whether
// previous and next pages exist. An out-of-range page yields an empty slice.
func servicesPage(services []config.Service, page, pageSize int) (slice []config.Service, hasPrev, hasNext bool) {
	if page < 0 || pageSize <= 0 {
		return nil, false, false
	}
	start := page * pageSize
	if start >= len(services) {
		return nil, start > 0, false
	}
	end := start + pageSize
	if end > len(services) {
		end = len(services)
	}
	return services[start:end], start > 0, end < len(services)
}

// buildServicesKeyboard renders one catalog page as an inline keyboard with
// navigation buttons.
func buildServicesKeyboard(services []config.Service, page int) tgbotapi.InlineKeyboardMarkup {
	slice, hasPrev, hasNext := servicesPage(services, page, servicesPageSize)

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range slice {
		label := fmt.Sprintf("%d | %s — %dpts (min %d)", s.ID, s.Name, s.Points, s.Min)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("svc_%d", s.ID)),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if hasPrev {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("svc_page_%d", page-1)))
	}
	if hasNext {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("svc_page_%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// mainMenuKeyboard is the welcome message's quick-action keyboard.
func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Services", "menu_services"),
			tgbotapi.NewInlineKeyboardButtonData("Balance", "menu_balance"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Tasks", "menu_tasks"),
			tgbotapi.NewInlineKeyboardButtonData("Referral", "menu_referral"),
		),
	)
}
