package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/chat"
	"github.com/mmeshcher/orderbot/internal/discount"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/pricing"
)

// Статические изображения диалога.
const (
	AssetCategory      = "category.jpg"
	AssetInstructions1 = "instructions1.jpg"
	AssetInstructions2 = "instructions2.jpg"
	AssetLink          = "link.jpg"
	AssetScreenshot    = "screenorder.jpg"
)

const (
	textWelcome        = "Добро пожаловать! Выберите категорию:"
	textChooseCategory = "Выберите категорию:"
	textEnterPrice     = "Введите цену в юанях:"
	textBadPrice       = "Введите корректное число."
	textChooseAction   = "Выберите действие:"
	textOrderName      = "Укажите название заказа.\n(Например: 👟 Кроссовки Nike Air Max 96, 44 размер, жёлто-белые)"
	textOrderLink      = "Что покупаем?\nУкажите ссылку на товар с сайта Poizon 🔗"
	textScreenshot     = "Отправьте скриншот, на котором видно: Товар, размер, цвет"
	textPromoPrompt    = "Если у вас есть промокод или реферальный код, введите его. Чтобы использовать бонусы, введите 'БОНУС'. Если нет, введите 'Нет'."
	textSendReceipt    = "После оплаты отправьте фото квитанции."
	textReceiptOK      = "Квитанция получена. Ваш заказ передан в обработку!"
	textBasketEmpty    = "Корзина пуста."
	textCancelled      = "Операция отменена. Для нового расчёта введите /start."
	textIdle           = "Для нового расчёта введите /start."
	textInvalidCode    = "Введённый код недействителен. Скидка не применена."
	textNoBonus        = "У вас недостаточно бонусов."
)

var categoryIcons = map[model.Category]string{
	model.CategoryClothes:     "👕",
	model.CategoryShoes:       "👟",
	model.CategoryAccessories: "👜",
	model.CategoryBags:        "🎒",
	model.CategoryWatches:     "⌚",
	model.CategoryPerfume:     "💐",
}

func money(d decimal.Decimal) string {
	return d.String() + "₽"
}

func categoriesKeyboard() *chat.Keyboard {
	rows := make([][]chat.Button, 0, len(model.Categories))
	for _, c := range model.Categories {
		rows = append(rows, chat.Row(chat.Button{
			Text: categoryIcons[c] + " " + string(c),
			Data: CategoryData(c),
		}))
	}
	return chat.Inline(rows...)
}

func afterCalcKeyboard() *chat.Keyboard {
	return chat.Inline(chat.Row(
		chat.Button{Text: "🔄 Новый расчёт", Data: ActionData(ActionNewCalculation)},
		chat.Button{Text: "🛒 Сделать заказ", Data: ActionData(ActionStartOrder)},
	))
}

func finishKeyboard() *chat.Keyboard {
	return chat.Inline(chat.Row(
		chat.Button{Text: "➕ Добавить товар", Data: ActionData(ActionAddItem)},
		chat.Button{Text: "✅ Завершить заказ", Data: ActionData(ActionCheckout)},
	))
}

func welcomeMessage() chat.Message {
	return chat.Message{
		Text:     textWelcome,
		Photo:    chat.Media{Asset: AssetCategory},
		Keyboard: categoriesKeyboard(),
	}
}

func quoteText(c model.Category, q pricing.Quote) string {
	return fmt.Sprintf(
		"Расчёт стоимости\nКатегория: %s\nЦена в юанях: %s\nКурс: %s\nКомиссия: %s\nИтоговая стоимость: %s",
		c, q.Price, q.Rate, q.Commission, money(q.FinalPrice),
	)
}

func itemText(o model.Order) string {
	return fmt.Sprintf(
		"Название: %s\nИтоговая стоимость: %s\nСсылка: %s\nСтатус: %s",
		o.Name, money(o.FinalPrice), o.Link, o.Status.Label(),
	)
}

func basketText(basket []model.Order, subtotal decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("Ваш заказ:\n")
	for _, o := range basket {
		fmt.Fprintf(&b, "ID: %s. %s – %s\nСсылка: %s\n", o.ID, o.Name, money(o.FinalPrice), o.Link)
	}
	fmt.Fprintf(&b, "\nОбщая стоимость: %s", money(subtotal))
	return b.String()
}

func paymentText(total decimal.Decimal, details string) string {
	return "Заказ проверен нашими менеджерами и готов к оформлению.\n" +
		"Доставка по России оплачивается отдельно.\n" +
		"Мы выкупаем товар в течение 72 часов после оплаты. Товар будет у нас примерно через 25 дней.\n" +
		fmt.Sprintf("Итоговая стоимость с учетом скидки: %s\n", money(total)) +
		fmt.Sprintf("Для оплаты переведите сумму: %s\n", details) +
		"Внимательно проверяйте получателя!\n" +
		textSendReceipt
}

func decisionText(d discount.Decision) string {
	switch d.Outcome {
	case discount.OutcomeApplied:
		if d.Kind == discount.KindBonus {
			return fmt.Sprintf("Бонусы применены! Скидка %d₽ получена.", d.Amount)
		}
		return fmt.Sprintf("Код принят! Скидка %d₽ применена.", d.Amount)
	case discount.OutcomeInsufficientBonus:
		return textNoBonus
	case discount.OutcomeInvalidCode:
		return textInvalidCode
	}
	return ""
}

func newOrderNotice(c Customer, co model.Checkout) chat.Message {
	return chat.Message{Text: fmt.Sprintf(
		"Новый заказ от %s (ID: %d).\nПозиций: %d\nК оплате: %s\nОжидается квитанция.",
		c.DisplayName, c.ID, len(co.Orders), money(co.Total),
	)}
}

func receiptNotice(c Customer, co model.Checkout, receiptRef string) chat.Message {
	last := co.Orders[len(co.Orders)-1]
	return chat.Message{
		Photo: chat.Media{FileID: receiptRef},
		Text: fmt.Sprintf(
			"Заказ №%s перешёл в статус '%s'.\nПользователь: %s (ID: %d)\nНазвание: %s\nСсылка: %s\nПозиций: %d\nИтоговая стоимость: %s\nСкидка: %d₽\nКвитанция: получена",
			last.ID, model.OrderStatusPendingConfirmation.Label(), c.DisplayName, c.ID,
			last.Name, last.Link, len(co.Orders), money(co.Total), co.Discount,
		),
	}
}
