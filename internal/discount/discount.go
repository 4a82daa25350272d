// Package discount выбирает и применяет одну скидку к оформлению корзины.
package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// ReferralDiscount фиксированная скидка по реферальной ссылке или чужому реферальному коду.
const ReferralDiscount int64 = 300

// Метки, которые записываются в заказ как использованный код.
const (
	LabelReferral = "REFERRAL"
	LabelBonus    = "BONUS"
)

var (
	bonusWords   = map[string]bool{"bonus": true, "бонус": true}
	declineWords = map[string]bool{"no": true, "нет": true}
)

// Kind описывает механизм скидки.
type Kind int

const (
	KindNone Kind = iota
	KindReferral
	KindBonus
	KindPromo
	KindReferralCode
)

// Outcome описывает результат проверки скидки для клиента.
type Outcome int

const (
	OutcomeDeclined Outcome = iota
	OutcomeApplied
	OutcomeInvalidCode
	OutcomeInsufficientBonus
)

// Decision результат выбора скидки. Amount равен нулю, если скидка не применена.
type Decision struct {
	Kind       Kind
	Outcome    Outcome
	Amount     int64
	Label      string
	BonusDebit int64
}

// Applied сообщает, что скидка применена.
func (d Decision) Applied() bool {
	return d.Outcome == OutcomeApplied
}

// Input содержит контекст оформления, от которого зависит выбор скидки.
// При Referral в Code передаётся токен реферальной ссылки.
type Input struct {
	UserID   int64
	Referral bool
	Code     string
}

// UserStore описывает доступ к клиентам, нужный для выбора скидки.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	FindUserByReferralCode(ctx context.Context, code string) (*model.User, error)
}

// PromoRedeemer проверяет промокод и атомарно фиксирует его погашение.
type PromoRedeemer interface {
	RedeemPromoCode(ctx context.Context, code string, userID int64) (*model.PromoCode, error)
}

// Resolver выбирает не более одной скидки на оформление.
type Resolver struct {
	users  UserStore
	promos PromoRedeemer
}

// NewResolver создаёт Resolver.
func NewResolver(users UserStore, promos PromoRedeemer) *Resolver {
	return &Resolver{
		users:  users,
		promos: promos,
	}
}

// IsBonusRequest сообщает, что клиент хочет оплатить бонусами.
func IsBonusRequest(code string) bool {
	return bonusWords[strings.ToLower(strings.TrimSpace(code))]
}

// Resolve выбирает скидку. Приоритет: реферальная ссылка, бонусы, промокод или чужой
// реферальный код, отказ. Ошибки проверки кода не являются ошибками: они возвращаются
// как Outcome, и оформление продолжается без скидки.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Decision, error) {
	if in.Referral {
		return r.resolveReferralLink(ctx, in.UserID, validation.NormalizeCode(in.Code))
	}

	code := strings.TrimSpace(in.Code)
	lower := strings.ToLower(code)

	switch {
	case code == "" || declineWords[lower]:
		return Decision{Kind: KindNone, Outcome: OutcomeDeclined}, nil
	case bonusWords[lower]:
		return r.resolveBonus(ctx, in.UserID)
	default:
		return r.resolveCode(ctx, in.UserID, validation.NormalizeCode(code))
	}
}

// resolveReferralLink даёт фиксированную скидку по реферальной ссылке. Ссылка
// с собственным кодом клиента скидки не даёт.
func (r *Resolver) resolveReferralLink(ctx context.Context, userID int64, token string) (Decision, error) {
	if token != "" {
		owner, err := r.users.FindUserByReferralCode(ctx, token)
		switch {
		case err == nil && owner.ID == userID:
			return Decision{Kind: KindReferral, Outcome: OutcomeInvalidCode}, nil
		case err != nil && !errors.Is(err, repository.ErrUserNotFound):
			return Decision{}, fmt.Errorf("find referral code: %w", err)
		}
	}

	return Decision{
		Kind:    KindReferral,
		Outcome: OutcomeApplied,
		Amount:  ReferralDiscount,
		Label:   LabelReferral,
	}, nil
}

func (r *Resolver) resolveBonus(ctx context.Context, userID int64) (Decision, error) {
	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("get user: %w", err)
	}
	if u.Bonus <= 0 {
		return Decision{Kind: KindBonus, Outcome: OutcomeInsufficientBonus}, nil
	}
	return Decision{
		Kind:       KindBonus,
		Outcome:    OutcomeApplied,
		Amount:     u.Bonus,
		Label:      LabelBonus,
		BonusDebit: u.Bonus,
	}, nil
}

func (r *Resolver) resolveCode(ctx context.Context, userID int64, code string) (Decision, error) {
	promo, err := r.promos.RedeemPromoCode(ctx, code, userID)
	switch {
	case err == nil:
		return Decision{
			Kind:    KindPromo,
			Outcome: OutcomeApplied,
			Amount:  promo.Discount,
			Label:   promo.Code,
		}, nil
	case errors.Is(err, repository.ErrPromoNotFound), errors.Is(err, repository.ErrPromoAlreadyRedeemed):
	default:
		return Decision{}, fmt.Errorf("redeem promo code: %w", err)
	}

	owner, err := r.users.FindUserByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Decision{Kind: KindNone, Outcome: OutcomeInvalidCode}, nil
		}
		return Decision{}, fmt.Errorf("find referral code: %w", err)
	}
	if owner.ID == userID {
		return Decision{Kind: KindNone, Outcome: OutcomeInvalidCode}, nil
	}

	return Decision{
		Kind:    KindReferralCode,
		Outcome: OutcomeApplied,
		Amount:  ReferralDiscount,
		Label:   code,
	}, nil
}

// Apply применяет решение к заказам корзины. Скидка записывается в последний заказ,
// а итоговые цены уменьшаются начиная с последнего заказа, так что их сумма равна
// max(subtotal - discount, 0).
func Apply(userID int64, orders []model.Order, d Decision) model.Checkout {
	out := make([]model.Order, len(orders))
	copy(out, orders)

	subtotal := decimal.Zero
	for _, o := range out {
		subtotal = subtotal.Add(o.FinalPrice)
	}

	c := model.Checkout{
		UserID:   userID,
		Orders:   out,
		Subtotal: subtotal,
		Total:    subtotal,
	}
	if !d.Applied() || len(out) == 0 {
		return c
	}

	remaining := decimal.NewFromInt(d.Amount)
	for i := len(out) - 1; i >= 0 && remaining.IsPositive(); i-- {
		take := decimal.Min(remaining, out[i].FinalPrice)
		out[i].FinalPrice = out[i].FinalPrice.Sub(take)
		remaining = remaining.Sub(take)
	}

	amount := d.Amount
	label := d.Label
	last := &out[len(out)-1]
	last.Discount = &amount
	last.PromoCodeUsed = &label

	c.Discount = d.Amount
	c.BonusDebit = d.BonusDebit
	c.Total = subtotal.Sub(decimal.NewFromInt(d.Amount))
	if c.Total.IsNegative() {
		c.Total = decimal.Zero
	}
	return c
}
