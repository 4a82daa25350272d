package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/orderbot/internal/model"
)

type promoEntry struct {
	code       model.PromoCode
	redeemedBy []int64
}

// MemoryRepository хранит данные в памяти процесса. Используется, когда строка
// подключения к БД не задана, и в тестах.
type MemoryRepository struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	orders map[string]*model.Order
	seq    []string
	promos map[string]*promoEntry
	now    func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[int64]*model.User),
		orders: make(map[string]*model.Order),
		promos: make(map[string]*promoEntry),
		now:    time.Now,
	}
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) userLocked(userID int64) *model.User {
	u, ok := r.users[userID]
	if !ok {
		u = &model.User{ID: userID}
		r.users[userID] = u
	}
	return u
}

// GetUser возвращает клиента, создавая запись при первом обращении.
func (r *MemoryRepository) GetUser(_ context.Context, userID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := *r.userLocked(userID)
	return &u, nil
}

// SetReferralCode сохраняет реферальный код клиента.
func (r *MemoryRepository) SetReferralCode(_ context.Context, userID int64, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.users {
		if id != userID && u.ReferralCode == code {
			return fmt.Errorf("%w: %s", ErrReferralCodeTaken, code)
		}
	}
	r.userLocked(userID).ReferralCode = code
	return nil
}

// FindUserByReferralCode возвращает владельца реферального кода.
func (r *MemoryRepository) FindUserByReferralCode(_ context.Context, code string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if code != "" && u.ReferralCode == code {
			found := *u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

// AdjustBonus изменяет бонусный баланс клиента на delta и возвращает новый баланс.
func (r *MemoryRepository) AdjustBonus(_ context.Context, userID int64, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.userLocked(userID)
	if u.Bonus+delta < 0 {
		return u.Bonus, ErrInsufficientBonus
	}
	u.Bonus += delta
	return u.Bonus, nil
}

// CommitCheckout сохраняет заказы корзины и списывает бонусы атомарно.
func (r *MemoryRepository) CommitCheckout(_ context.Context, c model.Checkout) error {
	if len(c.Orders) == 0 {
		return ErrEmptyCheckout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range c.Orders {
		if _, ok := r.orders[o.ID]; ok {
			return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
		}
	}

	u := r.userLocked(c.UserID)
	if c.BonusDebit > 0 {
		if u.Bonus < c.BonusDebit {
			return ErrInsufficientBonus
		}
		u.Bonus -= c.BonusDebit
	}

	for _, o := range c.Orders {
		stored := o
		r.orders[o.ID] = &stored
		r.seq = append(r.seq, o.ID)
	}
	return nil
}

// ConfirmReceipt сохраняет квитанцию в последнем заказе и переводит заказы в ожидание подтверждения.
func (r *MemoryRepository) ConfirmReceipt(_ context.Context, orderIDs []string, receiptRef string) error {
	if len(orderIDs) == 0 {
		return ErrOrderNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range orderIDs {
		if _, ok := r.orders[id]; !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
	}

	last := r.orders[orderIDs[len(orderIDs)-1]]
	if last.ReceiptRef != "" {
		return fmt.Errorf("%w: %s", ErrReceiptExists, last.ID)
	}
	last.ReceiptRef = receiptRef

	for _, id := range orderIDs {
		r.orders[id].Status = model.OrderStatusPendingConfirmation
	}
	return nil
}

// UpdateOrderStatus меняет статус заказа.
func (r *MemoryRepository) UpdateOrderStatus(_ context.Context, orderID string, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	o.Status = status
	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(_ context.Context, orderID string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	found := *o
	return &found, nil
}

// ListOrders возвращает заказы в порядке сохранения.
func (r *MemoryRepository) ListOrders(_ context.Context, filter model.OrderFilter) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, id := range r.seq {
		o := r.orders[id]
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		res = append(res, *o)
	}
	return res, nil
}

// SavePromoCode создаёт промокод или обновляет тип и скидку существующего.
func (r *MemoryRepository) SavePromoCode(_ context.Context, p model.PromoCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.promos[p.Code]; ok {
		e.code.Type = p.Type
		e.code.Discount = p.Discount
		return nil
	}

	p.Redemptions = 0
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	r.promos[p.Code] = &promoEntry{code: p}
	return nil
}

// RedeemPromoCode проверяет промокод и фиксирует погашение под общей блокировкой.
func (r *MemoryRepository) RedeemPromoCode(_ context.Context, code string, userID int64) (*model.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.promos[code]
	if !ok {
		return nil, ErrPromoNotFound
	}

	if e.code.Type == model.PromoTypeOneTime {
		for _, id := range e.redeemedBy {
			if id == userID {
				return nil, ErrPromoAlreadyRedeemed
			}
		}
	}

	e.redeemedBy = append(e.redeemedBy, userID)
	e.code.Redemptions = len(e.redeemedBy)
	p := e.code
	return &p, nil
}

// ListPromoCodes возвращает промокоды в порядке создания.
func (r *MemoryRepository) ListPromoCodes(_ context.Context) ([]model.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.PromoCode, 0, len(r.promos))
	for _, e := range r.promos {
		res = append(res, e.code)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].Code < res[j].Code
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}
