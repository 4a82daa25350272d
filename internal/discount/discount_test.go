package discount

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
)

type stubPromos struct {
	redeem func(code string, userID int64) (*model.PromoCode, error)
}

func (s *stubPromos) RedeemPromoCode(_ context.Context, code string, userID int64) (*model.PromoCode, error) {
	if s.redeem == nil {
		return nil, repository.ErrPromoNotFound
	}
	return s.redeem(code, userID)
}

func newResolver(t *testing.T) (*Resolver, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	return NewResolver(repo, repo), repo
}

func TestResolve_ReferralSessionIsUnconditional(t *testing.T) {
	r, _ := newResolver(t)

	d, err := r.Resolve(context.Background(), Input{UserID: 1, Referral: true, Code: "bonus"})
	require.NoError(t, err)

	assert.Equal(t, KindReferral, d.Kind)
	assert.True(t, d.Applied())
	assert.Equal(t, ReferralDiscount, d.Amount)
	assert.Equal(t, LabelReferral, d.Label)
	assert.Zero(t, d.BonusDebit)
}

func TestResolve_OwnReferralLinkGivesNoDiscount(t *testing.T) {
	r, repo := newResolver(t)
	ctx := context.Background()

	require.NoError(t, repo.SetReferralCode(ctx, 10, "OWN123"))

	d, err := r.Resolve(ctx, Input{UserID: 10, Referral: true, Code: "own123"})
	require.NoError(t, err)
	assert.Equal(t, KindReferral, d.Kind)
	assert.Equal(t, OutcomeInvalidCode, d.Outcome)
	assert.False(t, d.Applied())
	assert.Zero(t, d.Amount)

	d, err = r.Resolve(ctx, Input{UserID: 11, Referral: true, Code: "OWN123"})
	require.NoError(t, err)
	assert.True(t, d.Applied(), "another customer follows the link")
	assert.Equal(t, ReferralDiscount, d.Amount)
}

func TestResolve_Decline(t *testing.T) {
	r, _ := newResolver(t)

	for _, code := range []string{"", "  ", "no", "NO", "Нет"} {
		d, err := r.Resolve(context.Background(), Input{UserID: 1, Code: code})
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeclined, d.Outcome, code)
		assert.Zero(t, d.Amount, code)
	}
}

func TestResolve_Bonus(t *testing.T) {
	r, repo := newResolver(t)
	ctx := context.Background()

	d, err := r.Resolve(ctx, Input{UserID: 1, Code: "Bonus"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientBonus, d.Outcome)
	assert.Zero(t, d.Amount)

	_, err = repo.AdjustBonus(ctx, 1, 500)
	require.NoError(t, err)

	d, err = r.Resolve(ctx, Input{UserID: 1, Code: "бонус"})
	require.NoError(t, err)
	assert.Equal(t, KindBonus, d.Kind)
	assert.True(t, d.Applied())
	assert.Equal(t, int64(500), d.Amount)
	assert.Equal(t, int64(500), d.BonusDebit)
	assert.Equal(t, LabelBonus, d.Label)
}

func TestResolve_PromoCode(t *testing.T) {
	r, repo := newResolver(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePromoCode(ctx, model.PromoCode{Code: "SALE", Type: model.PromoTypeOneTime, Discount: 700}))

	d, err := r.Resolve(ctx, Input{UserID: 1, Code: " sale "})
	require.NoError(t, err)
	assert.Equal(t, KindPromo, d.Kind)
	assert.Equal(t, int64(700), d.Amount)
	assert.Equal(t, "SALE", d.Label)

	d, err = r.Resolve(ctx, Input{UserID: 1, Code: "SALE"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidCode, d.Outcome, "one-time code is rejected on reuse")

	d, err = r.Resolve(ctx, Input{UserID: 2, Code: "SALE"})
	require.NoError(t, err)
	assert.True(t, d.Applied(), "another customer can redeem")
}

func TestResolve_ReferralCode(t *testing.T) {
	r, repo := newResolver(t)
	ctx := context.Background()

	require.NoError(t, repo.SetReferralCode(ctx, 10, "FRIEND"))

	d, err := r.Resolve(ctx, Input{UserID: 11, Code: "friend"})
	require.NoError(t, err)
	assert.Equal(t, KindReferralCode, d.Kind)
	assert.Equal(t, ReferralDiscount, d.Amount)
	assert.Equal(t, "FRIEND", d.Label)

	d, err = r.Resolve(ctx, Input{UserID: 10, Code: "FRIEND"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidCode, d.Outcome, "self-referral is rejected")

	d, err = r.Resolve(ctx, Input{UserID: 11, Code: "UNKNOWN"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidCode, d.Outcome)
	assert.Zero(t, d.Amount)
}

func TestResolve_StoreFailure(t *testing.T) {
	repo := repository.NewMemoryRepository()
	boom := errors.New("boom")
	r := NewResolver(repo, &stubPromos{redeem: func(string, int64) (*model.PromoCode, error) {
		return nil, boom
	}})

	_, err := r.Resolve(context.Background(), Input{UserID: 1, Code: "ANY"})
	assert.ErrorIs(t, err, boom)
}

func order(id string, final int64) model.Order {
	return model.Order{ID: id, FinalPrice: decimal.NewFromInt(final)}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		orders    []model.Order
		decision  Decision
		wantTotal int64
		wantFinal []int64
	}{
		{
			name:      "referral on single order",
			orders:    []model.Order{order("a", 47500)},
			decision:  Decision{Kind: KindReferral, Outcome: OutcomeApplied, Amount: 300, Label: LabelReferral},
			wantTotal: 47200,
			wantFinal: []int64{47200},
		},
		{
			name:      "bonus floors at zero",
			orders:    []model.Order{order("a", 1000)},
			decision:  Decision{Kind: KindBonus, Outcome: OutcomeApplied, Amount: 1500, Label: LabelBonus, BonusDebit: 1500},
			wantTotal: 0,
			wantFinal: []int64{0},
		},
		{
			name:      "discount spills over to previous orders",
			orders:    []model.Order{order("a", 1000), order("b", 200)},
			decision:  Decision{Kind: KindPromo, Outcome: OutcomeApplied, Amount: 500, Label: "SALE"},
			wantTotal: 700,
			wantFinal: []int64{700, 0},
		},
		{
			name:      "declined leaves prices",
			orders:    []model.Order{order("a", 1000), order("b", 200)},
			decision:  Decision{Kind: KindNone, Outcome: OutcomeDeclined},
			wantTotal: 1200,
			wantFinal: []int64{1000, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Apply(1, tt.orders, tt.decision)

			assert.True(t, c.Total.Equal(decimal.NewFromInt(tt.wantTotal)), "total %s", c.Total)
			sum := decimal.Zero
			for i, o := range c.Orders {
				assert.True(t, o.FinalPrice.Equal(decimal.NewFromInt(tt.wantFinal[i])), "order %d final %s", i, o.FinalPrice)
				sum = sum.Add(o.FinalPrice)
			}
			assert.True(t, sum.Equal(c.Total))

			last := c.Orders[len(c.Orders)-1]
			if tt.decision.Applied() {
				require.NotNil(t, last.Discount)
				assert.Equal(t, tt.decision.Amount, *last.Discount)
				require.NotNil(t, last.PromoCodeUsed)
				assert.Equal(t, tt.decision.Label, *last.PromoCodeUsed)
				assert.Equal(t, tt.decision.BonusDebit, c.BonusDebit)
			} else {
				assert.Nil(t, last.Discount)
				assert.Nil(t, last.PromoCodeUsed)
				assert.Zero(t, c.Discount)
			}
			assert.Nil(t, tt.orders[len(tt.orders)-1].Discount, "input orders are not mutated")
		})
	}
}
