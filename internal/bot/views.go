package bot

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/orderbot/internal/chat"
	"github.com/mmeshcher/orderbot/internal/discount"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/service"
)

// Данные кнопок личного кабинета и консоли оператора.
const (
	dataCabinet         = "personal_cabinet"
	dataCabinetHistory  = "cabinet_history"
	dataReferralProgram = "referral_program"
	dataNewCalcCabinet  = "new_calc_cabinet"

	dataAdminMain      = "admin_main"
	dataAdminOrders    = "admin_menu_orders"
	dataAdminPromos    = "admin_menu_promos"
	dataAdminAnalytics = "admin_menu_analytics"
	dataAdminListPromo = "admin_list_promos"
	dataAdminAddPromo  = "admin_add_promo"

	prefixAdminOrder = "admin_order:"
	prefixSetStatus  = "st:"
)

// Кнопки главного меню.
const (
	menuCabinet   = "💼 Личный кабинет"
	menuCalculate = "🧮 Рассчитать"
	menuSupport   = "💬 Поддержка"
)

const (
	textAccessDenied  = "Нет доступа."
	textOrderNotFound = "Заказ не найден."
	textRetry         = "Не удалось обработать запрос, попробуйте ещё раз."
	textUnknownStatus = "Неизвестный статус. Доступные: "
	textNoOrders      = "У вас пока нет заказов."
	textAdminNoOrders = "Нет заказов."
	usageOrderDetails = "Используйте: /order_details <order_id>"
	usageAddPromo     = "Используйте: /addpromo <код> <тип: one-time/multi> <скидка>"
	usageSetStatus    = "Используйте: /setstatus <order_id> <статус>"
	usageAddBonus     = "Используйте: /addbonus <user_id> <сумма>"
)

func backButton(data string) []chat.Button {
	return chat.Row(chat.Button{Text: "⬅️ Назад", Data: data})
}

func mainMenu() chat.Message {
	return chat.Message{
		Text: "Главное меню:",
		Keyboard: chat.Menu(
			chat.Row(chat.Button{Text: menuCabinet}, chat.Button{Text: menuCalculate}),
			chat.Row(chat.Button{Text: menuSupport}),
		),
	}
}

func cabinetView(c service.Cabinet) chat.Message {
	return chat.Message{
		Text: fmt.Sprintf(
			"💼 Личный кабинет:\n\nИстория заказов: %d\nОбщая сумма заказов: %s₽\nВаш бонус: %d₽\n\nВаш реферальный код: %s\n\nВыберите пункт меню:",
			c.Orders, c.Total, c.Bonus, c.ReferralCode,
		),
		Keyboard: chat.Inline(
			chat.Row(chat.Button{Text: "📝 История заказов", Data: dataCabinetHistory}),
			chat.Row(chat.Button{Text: "🔗 Реферальная программа", Data: dataReferralProgram}),
			chat.Row(chat.Button{Text: "🧮 Новый расчёт", Data: dataNewCalcCabinet}),
		),
		Edit: true,
	}
}

func historyView(orders []model.Order) chat.Message {
	text := textNoOrders
	if len(orders) > 0 {
		var b strings.Builder
		b.WriteString("📝 История заказов:\n\n")
		for _, o := range orders {
			fmt.Fprintf(&b, "ID: %s\nНазвание: %s\nСтатус: %s\nСтоимость: %s₽\n\n", o.ID, o.Name, o.Status.Label(), o.FinalPrice)
		}
		text = strings.TrimRight(b.String(), "\n")
	}
	return chat.Message{Text: text, Keyboard: chat.Inline(backButton(dataCabinet)), Edit: true}
}

func referralView(botName, code string) chat.Message {
	return chat.Message{
		Text: fmt.Sprintf(
			"🔗 Реферальная программа:\n\nПриглашайте друзей и получите скидку %d₽ на первый заказ!\n\nВаша реферальная ссылка:\nt.me/%s?start=%s\n\nКаждый пользователь может получить скидку по чужому коду только один раз.",
			discount.ReferralDiscount, botName, code,
		),
		Keyboard: chat.Inline(backButton(dataCabinet)),
		Edit:     true,
	}
}

func adminMenu() chat.Message {
	return chat.Message{
		Text: "Админ-консоль:",
		Keyboard: chat.Inline(
			chat.Row(chat.Button{Text: "📦 Заказы", Data: dataAdminOrders}),
			chat.Row(chat.Button{Text: "🏷️ Промокоды", Data: dataAdminPromos}),
			chat.Row(chat.Button{Text: "📊 Аналитика", Data: dataAdminAnalytics}),
		),
		Edit: true,
	}
}

func promoMenu() chat.Message {
	return chat.Message{
		Text: "Меню промокодов:",
		Keyboard: chat.Inline(
			chat.Row(chat.Button{Text: "Просмотр промокодов", Data: dataAdminListPromo}),
			chat.Row(chat.Button{Text: "Добавить промокод", Data: dataAdminAddPromo}),
			backButton(dataAdminMain),
		),
		Edit: true,
	}
}

func analyticsView(a service.Analytics) chat.Message {
	return chat.Message{
		Text:     fmt.Sprintf("📊 Аналитика:\nОплаченные заказы: %d\nОбщая сумма: %s₽", a.PaidOrders, a.Revenue),
		Keyboard: chat.Inline(backButton(dataAdminMain)),
		Edit:     true,
	}
}

func ordersMenu(orders []model.Order) chat.Message {
	if len(orders) == 0 {
		return chat.Message{Text: textAdminNoOrders, Keyboard: chat.Inline(backButton(dataAdminMain)), Edit: true}
	}
	rows := make([][]chat.Button, 0, len(orders)+1)
	for _, o := range orders {
		rows = append(rows, chat.Row(chat.Button{
			Text: fmt.Sprintf("ID: %s, %s", o.ID, o.Name),
			Data: prefixAdminOrder + o.ID,
		}))
	}
	rows = append(rows, backButton(dataAdminMain))
	return chat.Message{Text: "Список заказов:", Keyboard: chat.Inline(rows...), Edit: true}
}

func ordersStatusText(orders []model.Order) string {
	if len(orders) == 0 {
		return textAdminNoOrders
	}
	var b strings.Builder
	b.WriteString("Список заказов:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "ID: %s, %s — %s\n", o.ID, o.Name, o.Status.Label())
	}
	return b.String()
}

func orderDetailText(o *model.Order) string {
	var discountValue int64
	if o.Discount != nil {
		discountValue = *o.Discount
	}
	promo := "-"
	if o.PromoCodeUsed != nil {
		promo = *o.PromoCodeUsed
	}
	receipt := "Нет"
	if o.ReceiptRef != "" {
		receipt = "Да"
	}
	return fmt.Sprintf(
		"ID: %s\nПользователь: %s (ID: %d)\nКатегория: %s\nЦена: %s\nКомиссия: %s\nИтог: %s\nНазвание: %s\nСсылка: %s\nСтатус: %s\nДата: %s\nКвитанция: %s\nСкидка: %d₽\nПромокод: %s",
		o.ID, o.DisplayName, o.UserID, o.Category, o.Price, o.Commission, o.FinalPrice,
		o.Name, o.Link, o.Status.Label(), o.CreatedAt.Format("2006-01-02 15:04"), receipt, discountValue, promo,
	)
}

func orderDetailView(o *model.Order) chat.Message {
	rows := make([][]chat.Button, 0, len(model.Statuses)/3+2)
	var row []chat.Button
	for _, st := range model.Statuses {
		row = append(row, chat.Button{Text: st.Label(), Data: prefixSetStatus + o.ID + ":" + string(st)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, backButton(dataAdminOrders))
	return chat.Message{Text: orderDetailText(o), Keyboard: chat.Inline(rows...), Edit: true}
}

func promoListText(promos []model.PromoCode) string {
	if len(promos) == 0 {
		return "Промокодов нет."
	}
	var b strings.Builder
	b.WriteString("Активные промокоды:\n")
	for _, p := range promos {
		fmt.Fprintf(&b, "%s – тип: %s, скидка: %d₽, использован: %d раз(а)\n", p.Code, p.Type, p.Discount, p.Redemptions)
	}
	return b.String()
}

func statusList() string {
	names := make([]string, 0, len(model.Statuses))
	for _, st := range model.Statuses {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}
