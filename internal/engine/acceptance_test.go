package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/discount"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/session"
)

const acceptanceCustomer int64 = 42

type checkoutTestContext struct {
	repo   *repository.MemoryRepository
	engine *Engine
	out    Outcome
}

func (c *checkoutTestContext) reset() {
	c.repo = repository.NewMemoryRepository()
	c.engine = New(c.repo, discount.NewResolver(c.repo, c.repo), session.NewStore[Session](), zap.NewNop(), Options{PaymentDetails: "карта 0000"})
	c.out = Outcome{}
}

func (c *checkoutTestContext) send(ev Event) error {
	out, err := c.engine.Handle(context.Background(), Customer{ID: acceptanceCustomer, DisplayName: "bob"}, ev)
	if err != nil {
		return err
	}
	c.out = out
	return nil
}

func (c *checkoutTestContext) replies() string {
	parts := make([]string, 0, len(c.out.Replies))
	for _, r := range c.out.Replies {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}

func (c *checkoutTestContext) aNewCustomerDialogue() error {
	return c.send(Start{})
}

func (c *checkoutTestContext) aCustomerWhoFollowedReferralLink(token string) error {
	return c.send(Start{Referral: token})
}

func (c *checkoutTestContext) theCustomerHasBonus(amount int) error {
	_, err := c.repo.AdjustBonus(context.Background(), acceptanceCustomer, int64(amount))
	return err
}

func (c *checkoutTestContext) theCustomerOwnsReferralCode(code string) error {
	return c.repo.SetReferralCode(context.Background(), acceptanceCustomer, code)
}

func (c *checkoutTestContext) customerOwnsReferralCode(userID int, code string) error {
	return c.repo.SetReferralCode(context.Background(), int64(userID), code)
}

func (c *checkoutTestContext) promoCodeOfTypeWithDiscount(code, promoType string, amount int) error {
	return c.repo.SavePromoCode(context.Background(), model.PromoCode{
		Code:     code,
		Type:     model.PromoType(promoType),
		Discount: int64(amount),
	})
}

func (c *checkoutTestContext) theCustomerChoosesCategory(category string) error {
	return c.send(CategoryChosen{Category: model.Category(category)})
}

func (c *checkoutTestContext) theCustomerEntersPrice(price string) error {
	return c.send(Text{Body: price})
}

func (c *checkoutTestContext) theCustomerOrdersAnItemPriced(price string) error {
	steps := []Event{
		CategoryChosen{Category: model.CategoryShoes},
		Text{Body: price},
		ActionChosen{Action: ActionStartOrder},
		Text{Body: "Кроссовки"},
		Text{Body: "https://dw4.co/t/A/item"},
		Photo{Variants: []string{"screenshot"}},
	}
	for _, ev := range steps {
		if err := c.send(ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *checkoutTestContext) theCustomerChecksOut() error {
	return c.send(ActionChosen{Action: ActionCheckout})
}

func (c *checkoutTestContext) theCustomerEntersCode(code string) error {
	return c.send(Text{Body: code})
}

func (c *checkoutTestContext) theCustomerCancels() error {
	return c.send(Cancel{})
}

func (c *checkoutTestContext) theCustomerSendsReceipt(ref string) error {
	return c.send(Photo{Variants: []string{ref}})
}

func (c *checkoutTestContext) theQuotedFinalPriceIs(amount int) error {
	want := fmt.Sprintf("Итоговая стоимость: %d₽", amount)
	if !strings.Contains(c.replies(), want) {
		return fmt.Errorf("expected %q in replies, got %q", want, c.replies())
	}
	return nil
}

func (c *checkoutTestContext) theReplyContains(text string) error {
	if !strings.Contains(c.replies(), text) {
		return fmt.Errorf("expected %q in replies, got %q", text, c.replies())
	}
	return nil
}

func (c *checkoutTestContext) noPromoPromptIsShown() error {
	if strings.Contains(c.replies(), textPromoPrompt) {
		return fmt.Errorf("unexpected promo prompt")
	}
	return nil
}

func (c *checkoutTestContext) theCustomerIsAskedToPay(amount int) error {
	return c.theReplyContains(fmt.Sprintf("Итоговая стоимость с учетом скидки: %d₽", amount))
}

func (c *checkoutTestContext) theDialogueIsInState(name string) error {
	if got := c.engine.State(acceptanceCustomer).String(); got != name {
		return fmt.Errorf("expected state %s, got %s", name, got)
	}
	return nil
}

func (c *checkoutTestContext) theCustomerHasBonusLeft(amount int) error {
	u, err := c.repo.GetUser(context.Background(), acceptanceCustomer)
	if err != nil {
		return err
	}
	if u.Bonus != int64(amount) {
		return fmt.Errorf("expected bonus %d, got %d", amount, u.Bonus)
	}
	return nil
}

func (c *checkoutTestContext) ordersAreStored(count int) error {
	orders, err := c.repo.ListOrders(context.Background(), model.OrderFilter{})
	if err != nil {
		return err
	}
	if len(orders) != count {
		return fmt.Errorf("expected %d orders, got %d", count, len(orders))
	}
	return nil
}

func (c *checkoutTestContext) everyOrderHasStatus(status string) error {
	orders, err := c.repo.ListOrders(context.Background(), model.OrderFilter{})
	if err != nil {
		return err
	}
	for _, o := range orders {
		if string(o.Status) != status {
			return fmt.Errorf("order %s has status %s", o.ID, o.Status)
		}
	}
	return nil
}

func (c *checkoutTestContext) operatorsReceivedTheReceipt(ref string) error {
	for _, n := range c.out.Operators {
		if n.Photo.FileID == ref {
			return nil
		}
	}
	return fmt.Errorf("no operator notice with receipt %s", ref)
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a new customer dialogue$`, tc.aNewCustomerDialogue)
	ctx.Step(`^a customer who followed referral link "([^"]*)"$`, tc.aCustomerWhoFollowedReferralLink)
	ctx.Step(`^the customer has (\d+) bonus$`, tc.theCustomerHasBonus)
	ctx.Step(`^the customer owns referral code "([^"]*)"$`, tc.theCustomerOwnsReferralCode)
	ctx.Step(`^customer (\d+) owns referral code "([^"]*)"$`, tc.customerOwnsReferralCode)
	ctx.Step(`^promo code "([^"]*)" of type "([^"]*)" with discount (\d+)$`, tc.promoCodeOfTypeWithDiscount)

	// When steps
	ctx.Step(`^the customer chooses category "([^"]*)"$`, tc.theCustomerChoosesCategory)
	ctx.Step(`^the customer enters price "([^"]*)"$`, tc.theCustomerEntersPrice)
	ctx.Step(`^the customer orders an item priced "([^"]*)"$`, tc.theCustomerOrdersAnItemPriced)
	ctx.Step(`^the customer checks out$`, tc.theCustomerChecksOut)
	ctx.Step(`^the customer enters code "([^"]*)"$`, tc.theCustomerEntersCode)
	ctx.Step(`^the customer cancels$`, tc.theCustomerCancels)
	ctx.Step(`^the customer sends receipt "([^"]*)"$`, tc.theCustomerSendsReceipt)

	// Then steps
	ctx.Step(`^the quoted final price is (\d+)$`, tc.theQuotedFinalPriceIs)
	ctx.Step(`^the reply contains "([^"]*)"$`, tc.theReplyContains)
	ctx.Step(`^no promo prompt is shown$`, tc.noPromoPromptIsShown)
	ctx.Step(`^the customer is asked to pay (\d+)$`, tc.theCustomerIsAskedToPay)
	ctx.Step(`^the dialogue is in state "([^"]*)"$`, tc.theDialogueIsInState)
	ctx.Step(`^the customer has (\d+) bonus left$`, tc.theCustomerHasBonusLeft)
	ctx.Step(`^(\d+) orders are stored$`, tc.ordersAreStored)
	ctx.Step(`^every order has status "([^"]*)"$`, tc.everyOrderHasStatus)
	ctx.Step(`^operators received the receipt "([^"]*)"$`, tc.operatorsReceivedTheReceipt)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
