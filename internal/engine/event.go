package engine

import (
	"strings"

	"github.com/mmeshcher/orderbot/internal/model"
)

// State шаг диалога клиента.
type State int

const (
	StateIdle State = iota
	StateChoosingCategory
	StateGettingPrice
	StateAfterCalc
	StateOrderName
	StateOrderLink
	StateOrderScreenshot
	StateFinishOrder
	StatePromoInput
	StateOrderReceipt
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateChoosingCategory: "choosing_category",
	StateGettingPrice:     "getting_price",
	StateAfterCalc:        "after_calc",
	StateOrderName:        "order_name",
	StateOrderLink:        "order_link",
	StateOrderScreenshot:  "order_screenshot",
	StateFinishOrder:      "finish_order",
	StatePromoInput:       "promo_input",
	StateOrderReceipt:     "order_receipt",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// EventKind тип входящего события.
type EventKind int

const (
	EventStart EventKind = iota
	EventCancel
	EventText
	EventPhoto
	EventCategory
	EventAction
)

// Event входящее событие диалога.
type Event interface {
	Kind() EventKind
}

// Start вход в диалог. Referral непустой, если клиент пришёл по реферальной ссылке.
type Start struct {
	Referral string
}

// Cancel отмена диалога.
type Cancel struct{}

// Text текстовое сообщение клиента.
type Text struct {
	Body string
}

// Photo фотография клиента. Variants упорядочены от меньшего размера к большему.
type Photo struct {
	Variants []string
}

// CategoryChosen выбор категории товара.
type CategoryChosen struct {
	Category model.Category
}

// ActionChosen нажатие кнопки действия.
type ActionChosen struct {
	Action Action
}

func (Start) Kind() EventKind          { return EventStart }
func (Cancel) Kind() EventKind         { return EventCancel }
func (Text) Kind() EventKind           { return EventText }
func (Photo) Kind() EventKind          { return EventPhoto }
func (CategoryChosen) Kind() EventKind { return EventCategory }
func (ActionChosen) Kind() EventKind   { return EventAction }

// Largest возвращает ссылку на самый крупный вариант фотографии.
func (p Photo) Largest() string {
	if len(p.Variants) == 0 {
		return ""
	}
	return p.Variants[len(p.Variants)-1]
}

// Action кнопка действия в диалоге.
type Action string

const (
	ActionNewCalculation Action = "new_calc"
	ActionStartOrder     Action = "make_order"
	ActionAddItem        Action = "add_product"
	ActionCheckout       Action = "finish_order"
)

const (
	categoryPrefix = "category:"
	actionPrefix   = "action:"
)

// CategoryData возвращает данные кнопки выбора категории.
func CategoryData(c model.Category) string {
	return categoryPrefix + string(c)
}

// ActionData возвращает данные кнопки действия.
func ActionData(a Action) string {
	return actionPrefix + string(a)
}

// ParseCallback превращает данные нажатой кнопки в событие диалога.
// Второй результат false, если данные не относятся к диалогу.
func ParseCallback(data string) (Event, bool) {
	switch {
	case strings.HasPrefix(data, categoryPrefix):
		return CategoryChosen{Category: model.Category(strings.TrimPrefix(data, categoryPrefix))}, true
	case strings.HasPrefix(data, actionPrefix):
		a := Action(strings.TrimPrefix(data, actionPrefix))
		switch a {
		case ActionNewCalculation, ActionStartOrder, ActionAddItem, ActionCheckout:
			return ActionChosen{Action: a}, true
		}
	}
	return nil, false
}
