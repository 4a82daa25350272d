package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/chat"
	"github.com/mmeshcher/orderbot/internal/discount"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/pricing"
	"github.com/mmeshcher/orderbot/internal/validation"
)

func (e *Engine) chooseCategory(_ context.Context, _ Customer, s *Session, ev Event) (Outcome, error) {
	category := ev.(CategoryChosen).Category
	if !category.Valid() {
		return e.reprompt(s), nil
	}

	s.Category = category
	s.State = StateGettingPrice

	var out Outcome
	out.reply(
		chat.Message{Text: "Вы выбрали: " + string(category), Edit: true},
		chat.Message{
			Text:  textEnterPrice,
			Album: []chat.Media{{Asset: AssetInstructions1}, {Asset: AssetInstructions2}},
		},
	)
	return out, nil
}

func (e *Engine) enterPrice(_ context.Context, c Customer, s *Session, ev Event) (Outcome, error) {
	price, err := validation.ParsePrice(ev.(Text).Body)
	if err != nil {
		return Outcome{Replies: []chat.Message{{Text: textBadPrice}}}, nil
	}

	q := pricing.Calculate(price)
	s.Draft = &model.Order{
		UserID:      c.ID,
		DisplayName: c.DisplayName,
		Category:    s.Category,
		Price:       q.Price,
		Commission:  q.Commission,
		FinalPrice:  q.FinalPrice,
		Status:      model.OrderStatusCreated,
		CreatedAt:   e.now(),
	}
	s.State = StateAfterCalc

	var out Outcome
	out.reply(
		chat.Message{Text: quoteText(s.Category, q)},
		chat.Message{Text: textChooseAction, Keyboard: afterCalcKeyboard()},
	)
	return out, nil
}

func (e *Engine) afterCalc(_ context.Context, _ Customer, s *Session, ev Event) (Outcome, error) {
	switch ev.(ActionChosen).Action {
	case ActionNewCalculation:
		return e.start(s, ""), nil
	case ActionStartOrder:
		s.State = StateOrderName
		return Outcome{Replies: []chat.Message{{Text: textOrderName, Edit: true}}}, nil
	}
	return e.reprompt(s), nil
}

func (e *Engine) enterName(_ context.Context, _ Customer, s *Session, ev Event) (Outcome, error) {
	name := strings.TrimSpace(ev.(Text).Body)
	if name == "" {
		return e.reprompt(s), nil
	}

	s.Draft.Name = name
	s.State = StateOrderLink
	return Outcome{Replies: []chat.Message{{
		Text:  textOrderLink,
		Photo: chat.Media{Asset: AssetLink},
	}}}, nil
}

func (e *Engine) enterLink(_ context.Context, _ Customer, s *Session, ev Event) (Outcome, error) {
	link := validation.ExtractLink(ev.(Text).Body)
	if link == "" {
		return e.reprompt(s), nil
	}

	s.Draft.Link = link
	s.State = StateOrderScreenshot
	return Outcome{Replies: []chat.Message{{
		Text:  textScreenshot,
		Photo: chat.Media{Asset: AssetScreenshot},
	}}}, nil
}

func (e *Engine) attachScreenshot(_ context.Context, _ Customer, s *Session, ev Event) (Outcome, error) {
	ref := ev.(Photo).Largest()
	if ref == "" {
		return e.reprompt(s), nil
	}

	item := *s.Draft
	item.ID = e.newID()
	item.ScreenshotRef = ref
	s.Basket = append(s.Basket, item)
	s.Draft = nil
	s.State = StateFinishOrder

	return Outcome{Replies: []chat.Message{{
		Text:     itemText(item),
		Photo:    chat.Media{FileID: ref},
		Keyboard: finishKeyboard(),
	}}}, nil
}

func (e *Engine) finishOrder(ctx context.Context, c Customer, s *Session, ev Event) (Outcome, error) {
	switch ev.(ActionChosen).Action {
	case ActionAddItem:
		basket, referral := s.Basket, s.Referral
		out := e.start(s, referral)
		s.Basket = basket
		return out, nil
	case ActionCheckout:
		return e.checkout(ctx, c, s)
	}
	return e.reprompt(s), nil
}

func (e *Engine) checkout(ctx context.Context, c Customer, s *Session) (Outcome, error) {
	if len(s.Basket) == 0 {
		*s = Session{}
		return Outcome{Replies: []chat.Message{{Text: textBasketEmpty, Edit: true}}}, nil
	}

	details := basketText(s.Basket, subtotal(s.Basket))
	promoPrompt := func() Outcome {
		s.State = StatePromoInput
		return Outcome{Replies: []chat.Message{{
			Text: details + "\n" + textPromoPrompt,
			Edit: true,
		}}}
	}
	if s.Referral == "" {
		return promoPrompt(), nil
	}

	d, err := e.resolver.Resolve(ctx, discount.Input{UserID: c.ID, Referral: true, Code: s.Referral})
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve referral discount: %w", err)
	}
	if !d.Applied() {
		e.logger.Info("own referral link ignored", zap.Int64("userID", c.ID))
		s.Referral = ""
		return promoPrompt(), nil
	}
	co, d, err := e.commit(ctx, c, s, d)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	out.reply(
		chat.Message{Text: fmt.Sprintf(
			"%s\nОбщая стоимость со скидкой: %s\nПромокод (реферальный) использован. Скидка %d₽ применена.",
			details, money(co.Total), d.Amount,
		)},
		chat.Message{Text: paymentText(co.Total, e.opts.PaymentDetails)},
	)
	out.notify(newOrderNotice(c, co))
	return out, nil
}

func (e *Engine) enterPromo(ctx context.Context, c Customer, s *Session, ev Event) (Outcome, error) {
	d, err := e.resolver.Resolve(ctx, discount.Input{UserID: c.ID, Code: ev.(Text).Body})
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve discount: %w", err)
	}

	co, d, err := e.commit(ctx, c, s, d)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if text := decisionText(d); text != "" {
		out.reply(chat.Message{Text: text})
	}
	out.reply(chat.Message{Text: paymentText(co.Total, e.opts.PaymentDetails)})
	out.notify(newOrderNotice(c, co))
	return out, nil
}

func (e *Engine) attachReceipt(ctx context.Context, c Customer, s *Session, ev Event) (Outcome, error) {
	ref := ev.(Photo).Largest()
	if ref == "" || s.Committed == nil {
		return e.reprompt(s), nil
	}

	co := *s.Committed
	if err := e.ledger.ConfirmReceipt(ctx, co.OrderIDs(), ref); err != nil {
		return Outcome{}, fmt.Errorf("confirm receipt: %w", err)
	}
	e.logger.Info("receipt received",
		zap.Int64("userID", c.ID),
		zap.Strings("orders", co.OrderIDs()),
	)

	*s = Session{}

	var out Outcome
	out.reply(chat.Message{Text: textReceiptOK})
	out.notify(receiptNotice(c, co, ref))
	return out, nil
}
