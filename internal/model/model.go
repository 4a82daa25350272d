// Package model содержит доменные сущности бота приёма заказов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет клиента бота и его реферальные данные.
type User struct {
	ID           int64
	ReferralCode string
	Bonus        int64
}

// Category описывает категорию товара.
type Category string

const (
	CategoryClothes     Category = "Одежда"
	CategoryShoes       Category = "Обувь"
	CategoryAccessories Category = "Аксессуары"
	CategoryBags        Category = "Сумки"
	CategoryWatches     Category = "Часы"
	CategoryPerfume     Category = "Парфюм"
)

// Categories содержит закрытый список категорий в порядке показа.
var Categories = []Category{
	CategoryClothes,
	CategoryShoes,
	CategoryAccessories,
	CategoryBags,
	CategoryWatches,
	CategoryPerfume,
}

// Valid сообщает, входит ли категория в закрытый список.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// OrderStatus описывает этап выполнения заказа.
type OrderStatus string

const (
	OrderStatusCreated             OrderStatus = "created"
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	OrderStatusPaid                OrderStatus = "paid"
	OrderStatusPurchased           OrderStatus = "purchased"
	OrderStatusAwaitingShipment    OrderStatus = "awaiting_shipment"
	OrderStatusShippedIntl         OrderStatus = "shipped_intl"
	OrderStatusArrived             OrderStatus = "arrived"
	OrderStatusShippedDomestic     OrderStatus = "shipped_domestic"
	OrderStatusDelivered           OrderStatus = "delivered"
)

// Statuses содержит все этапы в порядке жизненного цикла. Переходы между ними не ограничены.
var Statuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPendingConfirmation,
	OrderStatusPaid,
	OrderStatusPurchased,
	OrderStatusAwaitingShipment,
	OrderStatusShippedIntl,
	OrderStatusArrived,
	OrderStatusShippedDomestic,
	OrderStatusDelivered,
}

var statusLabels = map[OrderStatus]string{
	OrderStatusCreated:             "создан",
	OrderStatusPendingConfirmation: "на подтверждении",
	OrderStatusPaid:                "оплачен",
	OrderStatusPurchased:           "выкуплен",
	OrderStatusAwaitingShipment:    "ждет отправки",
	OrderStatusShippedIntl:         "отправлен в РФ",
	OrderStatusArrived:             "прибыл",
	OrderStatusShippedDomestic:     "отправлен внутри РФ",
	OrderStatusDelivered:           "доставлен",
}

// Valid сообщает, входит ли статус в фиксированный список.
func (s OrderStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label возвращает название статуса для клиента.
func (s OrderStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Paid сообщает, что заказ оплачен или находится на более позднем этапе.
func (s OrderStatus) Paid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPendingConfirmation:
		return false
	}
	return s.Valid()
}

// Order описывает позицию заказа клиента.
type Order struct {
	ID            string
	UserID        int64
	DisplayName   string
	Category      Category
	Price         decimal.Decimal
	Commission    decimal.Decimal
	FinalPrice    decimal.Decimal
	Name          string
	Link          string
	Status        OrderStatus
	CreatedAt     time.Time
	ScreenshotRef string
	ReceiptRef    string
	Discount      *int64
	PromoCodeUsed *string
}

// OrderFilter ограничивает выборку заказов. Нулевое значение выбирает все заказы.
type OrderFilter struct {
	UserID *int64
}

// PromoType описывает тип промокода.
type PromoType string

const (
	PromoTypeOneTime PromoType = "one-time"
	PromoTypeMulti   PromoType = "multi"
)

// Valid сообщает, известен ли тип промокода.
func (t PromoType) Valid() bool {
	return t == PromoTypeOneTime || t == PromoTypeMulti
}

// PromoCode описывает промокод, выданный оператором.
type PromoCode struct {
	Code        string
	Type        PromoType
	Discount    int64
	Redemptions int
	CreatedAt   time.Time
}

// Checkout описывает оформление корзины: заказы с уже применённой скидкой и списание бонусов.
type Checkout struct {
	UserID     int64
	Orders     []Order
	Subtotal   decimal.Decimal
	Discount   int64
	Total      decimal.Decimal
	BonusDebit int64
}

// OrderIDs возвращает идентификаторы заказов корзины в исходном порядке.
func (c Checkout) OrderIDs() []string {
	ids := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}
