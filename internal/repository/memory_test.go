package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderbot/internal/model"
)

func testOrder(id string, userID int64, price int64) model.Order {
	return model.Order{
		ID:         id,
		UserID:     userID,
		Category:   model.CategoryShoes,
		Price:      decimal.NewFromInt(price),
		Commission: decimal.NewFromInt(1500),
		FinalPrice: decimal.NewFromInt(price*13 + 1500),
		Status:     model.OrderStatusCreated,
		CreatedAt:  time.Now(),
	}
}

func TestMemoryRepository_GetUserCreatesOnFirstTouch(t *testing.T) {
	repo := NewMemoryRepository()

	u, err := repo.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Zero(t, u.Bonus)
	assert.Empty(t, u.ReferralCode)
}

func TestMemoryRepository_ReferralCodeUnique(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SetReferralCode(ctx, 1, "ABC123"))
	err := repo.SetReferralCode(ctx, 2, "ABC123")
	assert.ErrorIs(t, err, ErrReferralCodeTaken)

	owner, err := repo.FindUserByReferralCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), owner.ID)

	_, err = repo.FindUserByReferralCode(ctx, "NOPE00")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryRepository_CommitCheckoutDebitsBonus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.AdjustBonus(ctx, 1, 500)
	require.NoError(t, err)

	err = repo.CommitCheckout(ctx, model.Checkout{
		UserID:     1,
		Orders:     []model.Order{testOrder("o1", 1, 100)},
		BonusDebit: 500,
	})
	require.NoError(t, err)

	u, err := repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, u.Bonus)

	err = repo.CommitCheckout(ctx, model.Checkout{
		UserID:     1,
		Orders:     []model.Order{testOrder("o2", 1, 100)},
		BonusDebit: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientBonus)

	orders, err := repo.ListOrders(ctx, model.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1, "failed checkout must not insert orders")
}

func TestMemoryRepository_EmptyCheckout(t *testing.T) {
	repo := NewMemoryRepository()

	err := repo.CommitCheckout(context.Background(), model.Checkout{UserID: 1})
	assert.ErrorIs(t, err, ErrEmptyCheckout)
}

func TestMemoryRepository_ConfirmReceipt(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.CommitCheckout(ctx, model.Checkout{
		UserID: 1,
		Orders: []model.Order{testOrder("a", 1, 10), testOrder("b", 1, 20)},
	}))

	require.NoError(t, repo.ConfirmReceipt(ctx, []string{"a", "b"}, "receipt-1"))

	a, err := repo.GetOrder(ctx, "a")
	require.NoError(t, err)
	b, err := repo.GetOrder(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPendingConfirmation, a.Status)
	assert.Equal(t, model.OrderStatusPendingConfirmation, b.Status)
	assert.Empty(t, a.ReceiptRef)
	assert.Equal(t, "receipt-1", b.ReceiptRef)

	err = repo.ConfirmReceipt(ctx, []string{"a", "b"}, "receipt-2")
	assert.ErrorIs(t, err, ErrReceiptExists, "receipt is set once")
	assert.NotErrorIs(t, err, ErrOrderNotFound)

	err = repo.ConfirmReceipt(ctx, []string{"missing"}, "receipt-3")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemoryRepository_UpdateOrderStatusUnknownOrder(t *testing.T) {
	repo := NewMemoryRepository()

	err := repo.UpdateOrderStatus(context.Background(), "missing", model.OrderStatusPaid)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemoryRepository_OneTimePromoRedeemedOncePerUser(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SavePromoCode(ctx, model.PromoCode{Code: "ONCE", Type: model.PromoTypeOneTime, Discount: 300}))

	const attempts = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RedeemPromoCode(ctx, "ONCE", 42); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)

	p, err := repo.RedeemPromoCode(ctx, "ONCE", 43)
	require.NoError(t, err, "another customer can still redeem")
	assert.Equal(t, 2, p.Redemptions)
}

func TestMemoryRepository_MultiPromo(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SavePromoCode(ctx, model.PromoCode{Code: "MANY", Type: model.PromoTypeMulti, Discount: 100}))

	for i := 0; i < 3; i++ {
		_, err := repo.RedeemPromoCode(ctx, "MANY", 42)
		require.NoError(t, err)
	}

	_, err := repo.RedeemPromoCode(ctx, "NONE", 42)
	assert.ErrorIs(t, err, ErrPromoNotFound)

	list, err := repo.ListPromoCodes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Redemptions)
}

func TestMemoryRepository_SavePromoKeepsHistory(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SavePromoCode(ctx, model.PromoCode{Code: "X", Type: model.PromoTypeOneTime, Discount: 100}))
	_, err := repo.RedeemPromoCode(ctx, "X", 1)
	require.NoError(t, err)

	require.NoError(t, repo.SavePromoCode(ctx, model.PromoCode{Code: "X", Type: model.PromoTypeOneTime, Discount: 200}))
	_, err = repo.RedeemPromoCode(ctx, "X", 1)
	assert.ErrorIs(t, err, ErrPromoAlreadyRedeemed)
}
