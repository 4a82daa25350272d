// Package service реализует выполнение заказов и команды операторов.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/chat"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/validation"
)

var (
	// ErrAccessDenied возвращается, если команду вызывает не оператор.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnknownStatus возвращается для статуса вне фиксированного списка.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrInvalidPromo возвращается для некорректного определения промокода.
	ErrInvalidPromo = errors.New("invalid promo code definition")
)

const (
	referralCodeLength   = 6
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeAttempts = 5
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	SetReferralCode(ctx context.Context, userID int64, code string) error
	AdjustBonus(ctx context.Context, userID int64, delta int64) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	SavePromoCode(ctx context.Context, p model.PromoCode) error
	ListPromoCodes(ctx context.Context) ([]model.PromoCode, error)
}

// Notifier доставляет уведомление клиенту.
type Notifier interface {
	NotifyCustomer(ctx context.Context, userID int64, msg chat.Message) error
}

// Analytics сводка по оплаченным заказам.
type Analytics struct {
	PaidOrders int
	Revenue    decimal.Decimal
}

// Cabinet данные личного кабинета клиента.
type Cabinet struct {
	Orders       int
	Total        decimal.Decimal
	Bonus        int64
	ReferralCode string
}

// Service содержит бизнес-логику выполнения заказов.
type Service struct {
	repo      Repository
	notifier  Notifier
	operators map[int64]struct{}
	logger    *zap.Logger
	newCode   func() string
}

// NewService создаёт сервис. operators статический список идентификаторов операторов.
func NewService(repo Repository, notifier Notifier, operators []int64, logger *zap.Logger) *Service {
	ops := make(map[int64]struct{}, len(operators))
	for _, id := range operators {
		ops[id] = struct{}{}
	}
	return &Service{
		repo:      repo,
		notifier:  notifier,
		operators: ops,
		logger:    logger,
		newCode:   randomCode,
	}
}

func randomCode() string {
	b := make([]byte, referralCodeLength)
	for i := range b {
		b[i] = referralCodeAlphabet[rand.Intn(len(referralCodeAlphabet))]
	}
	return string(b)
}

// IsOperator сообщает, входит ли пользователь в список операторов.
func (s *Service) IsOperator(userID int64) bool {
	_, ok := s.operators[userID]
	return ok
}

func (s *Service) authorize(userID int64) error {
	if !s.IsOperator(userID) {
		s.logger.Warn("operator command denied", zap.Int64("userID", userID))
		return ErrAccessDenied
	}
	return nil
}

// SetOrderStatus меняет статус заказа и уведомляет клиента. Ошибка уведомления
// не откатывает изменение статуса.
func (s *Service) SetOrderStatus(ctx context.Context, operatorID int64, orderID string, status model.OrderStatus) (*model.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatus, status)
	}

	if err := s.repo.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order", orderID),
		zap.String("status", string(status)),
		zap.Int64("operatorID", operatorID),
	)

	msg := chat.Message{Text: fmt.Sprintf("Ваш заказ (ID: %s) изменил статус на '%s'.", o.ID, status.Label())}
	if err := s.notifier.NotifyCustomer(ctx, o.UserID, msg); err != nil {
		s.logger.Warn("status notification not delivered", zap.String("order", orderID), zap.Error(err))
	}
	return o, nil
}

// ListAllOrders возвращает все заказы.
func (s *Service) ListAllOrders(ctx context.Context, operatorID int64) ([]model.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, model.OrderFilter{})
}

// OrderDetail возвращает заказ по идентификатору.
func (s *Service) OrderDetail(ctx context.Context, operatorID int64, orderID string) (*model.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, orderID)
}

// GrantPromoCode создаёт промокод или меняет тип и скидку существующего.
func (s *Service) GrantPromoCode(ctx context.Context, operatorID int64, code string, promoType model.PromoType, amount int64) (model.PromoCode, error) {
	if err := s.authorize(operatorID); err != nil {
		return model.PromoCode{}, err
	}

	p := model.PromoCode{
		Code:     validation.NormalizeCode(code),
		Type:     promoType,
		Discount: amount,
	}
	switch {
	case p.Code == "":
		return model.PromoCode{}, fmt.Errorf("%w: empty code", ErrInvalidPromo)
	case !p.Type.Valid():
		return model.PromoCode{}, fmt.Errorf("%w: type %q", ErrInvalidPromo, promoType)
	case p.Discount <= 0:
		return model.PromoCode{}, fmt.Errorf("%w: discount must be positive", ErrInvalidPromo)
	}

	if err := s.repo.SavePromoCode(ctx, p); err != nil {
		return model.PromoCode{}, err
	}
	s.logger.Info("promo code granted",
		zap.String("code", p.Code),
		zap.String("type", string(p.Type)),
		zap.Int64("discount", p.Discount),
	)
	return p, nil
}

// ListPromoCodes возвращает промокоды с количеством погашений.
func (s *Service) ListPromoCodes(ctx context.Context, operatorID int64) ([]model.PromoCode, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}
	return s.repo.ListPromoCodes(ctx)
}

// Analytics считает оплаченные заказы и их сумму.
func (s *Service) Analytics(ctx context.Context, operatorID int64) (Analytics, error) {
	if err := s.authorize(operatorID); err != nil {
		return Analytics{}, err
	}

	orders, err := s.repo.ListOrders(ctx, model.OrderFilter{})
	if err != nil {
		return Analytics{}, err
	}

	res := Analytics{Revenue: decimal.Zero}
	for _, o := range orders {
		if o.Status.Paid() {
			res.PaidOrders++
			res.Revenue = res.Revenue.Add(o.FinalPrice)
		}
	}
	return res, nil
}

// AdjustBonus начисляет или списывает бонусы клиента и возвращает новый баланс.
func (s *Service) AdjustBonus(ctx context.Context, operatorID, userID, delta int64) (int64, error) {
	if err := s.authorize(operatorID); err != nil {
		return 0, err
	}

	balance, err := s.repo.AdjustBonus(ctx, userID, delta)
	if err != nil {
		return 0, err
	}
	s.logger.Info("bonus adjusted",
		zap.Int64("userID", userID),
		zap.Int64("delta", delta),
		zap.Int64("balance", balance),
	)
	return balance, nil
}

// ReferralCode возвращает реферальный код клиента, создавая его при первом обращении.
func (s *Service) ReferralCode(ctx context.Context, userID int64) (string, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.ReferralCode != "" {
		return u.ReferralCode, nil
	}

	for i := 0; i < referralCodeAttempts; i++ {
		code := s.newCode()
		err = s.repo.SetReferralCode(ctx, userID, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			return "", err
		}
	}
	return "", fmt.Errorf("generate referral code: %w", err)
}

// Cabinet собирает данные личного кабинета клиента.
func (s *Service) Cabinet(ctx context.Context, userID int64) (Cabinet, error) {
	code, err := s.ReferralCode(ctx, userID)
	if err != nil {
		return Cabinet{}, err
	}
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Cabinet{}, err
	}
	orders, err := s.CustomerOrders(ctx, userID)
	if err != nil {
		return Cabinet{}, err
	}

	c := Cabinet{
		Orders:       len(orders),
		Total:        decimal.Zero,
		Bonus:        u.Bonus,
		ReferralCode: code,
	}
	for _, o := range orders {
		c.Total = c.Total.Add(o.FinalPrice)
	}
	return c, nil
}

// CustomerOrders возвращает историю заказов клиента.
func (s *Service) CustomerOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, model.OrderFilter{UserID: &userID})
}
