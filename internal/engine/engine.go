// Package engine ведёт диалог клиента от выбора категории до отправки квитанции.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/chat"
	"github.com/mmeshcher/orderbot/internal/discount"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/session"
)

// Ledger описывает операции хранилища, которые выполняет диалог.
type Ledger interface {
	CommitCheckout(ctx context.Context, c model.Checkout) error
	ConfirmReceipt(ctx context.Context, orderIDs []string, receiptRef string) error
}

// Resolver выбирает скидку при оформлении.
type Resolver interface {
	Resolve(ctx context.Context, in discount.Input) (discount.Decision, error)
}

// Customer клиент, от которого пришло событие.
type Customer struct {
	ID          int64
	DisplayName string
}

// Session состояние диалога одного клиента.
type Session struct {
	State     State
	Referral  string
	Category  model.Category
	Draft     *model.Order
	Basket    []model.Order
	Committed *model.Checkout
}

// Outcome результат обработки события: ответы клиенту и уведомления операторам.
// Доставляется после освобождения блокировки сессии.
type Outcome struct {
	Replies   []chat.Message
	Operators []chat.Message
}

func (o *Outcome) reply(msgs ...chat.Message) {
	o.Replies = append(o.Replies, msgs...)
}

func (o *Outcome) notify(msgs ...chat.Message) {
	o.Operators = append(o.Operators, msgs...)
}

type step func(e *Engine, ctx context.Context, c Customer, s *Session, ev Event) (Outcome, error)

// Переходы, допустимые в конкретных состояниях. Start и Cancel принимаются всегда.
var transitions = map[State]map[EventKind]step{
	StateChoosingCategory: {EventCategory: (*Engine).chooseCategory},
	StateGettingPrice:     {EventText: (*Engine).enterPrice},
	StateAfterCalc:        {EventAction: (*Engine).afterCalc},
	StateOrderName:        {EventText: (*Engine).enterName},
	StateOrderLink:        {EventText: (*Engine).enterLink},
	StateOrderScreenshot:  {EventPhoto: (*Engine).attachScreenshot},
	StateFinishOrder:      {EventAction: (*Engine).finishOrder},
	StatePromoInput:       {EventText: (*Engine).enterPromo},
	StateOrderReceipt:     {EventPhoto: (*Engine).attachReceipt},
}

// Options параметры диалога.
type Options struct {
	PaymentDetails string
}

// Engine конечный автомат диалога приёма заказов.
type Engine struct {
	ledger   Ledger
	resolver Resolver
	sessions *session.Store[Session]
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
	newID    func() string
}

// New создаёт Engine.
func New(ledger Ledger, resolver Resolver, sessions *session.Store[Session], logger *zap.Logger, opts Options) *Engine {
	return &Engine{
		ledger:   ledger,
		resolver: resolver,
		sessions: sessions,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Handle обрабатывает событие клиента. События одного клиента обрабатываются
// последовательно. При ошибке сессия остаётся в прежнем состоянии.
func (e *Engine) Handle(ctx context.Context, c Customer, ev Event) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	e.sessions.With(c.ID, func(s *Session) bool {
		from := s.State
		out, err = e.dispatch(ctx, c, s, ev)
		if err == nil && from != s.State {
			e.logger.Debug("dialogue transition",
				zap.Int64("userID", c.ID),
				zap.Stringer("from", from),
				zap.Stringer("to", s.State),
			)
		}
		return s.State != StateIdle
	})
	return out, err
}

// State возвращает текущее состояние диалога клиента.
func (e *Engine) State(userID int64) State {
	var st State
	e.sessions.With(userID, func(s *Session) bool {
		st = s.State
		return s.State != StateIdle
	})
	return st
}

func (e *Engine) dispatch(ctx context.Context, c Customer, s *Session, ev Event) (Outcome, error) {
	switch ev := ev.(type) {
	case Start:
		return e.start(s, ev.Referral), nil
	case Cancel:
		*s = Session{}
		return Outcome{Replies: []chat.Message{{Text: textCancelled}}}, nil
	}

	if fn, ok := transitions[s.State][ev.Kind()]; ok {
		return fn(e, ctx, c, s, ev)
	}
	return e.reprompt(s), nil
}

func (e *Engine) start(s *Session, referral string) Outcome {
	*s = Session{
		State:    StateChoosingCategory,
		Referral: referral,
	}
	return Outcome{Replies: []chat.Message{welcomeMessage()}}
}

// reprompt повторяет вопрос текущего шага.
func (e *Engine) reprompt(s *Session) Outcome {
	var msg chat.Message
	switch s.State {
	case StateChoosingCategory:
		msg = chat.Message{Text: textChooseCategory, Keyboard: categoriesKeyboard()}
	case StateGettingPrice:
		msg = chat.Message{Text: textEnterPrice}
	case StateAfterCalc:
		msg = chat.Message{Text: textChooseAction, Keyboard: afterCalcKeyboard()}
	case StateOrderName:
		msg = chat.Message{Text: textOrderName}
	case StateOrderLink:
		msg = chat.Message{Text: textOrderLink}
	case StateOrderScreenshot:
		msg = chat.Message{Text: textScreenshot}
	case StateFinishOrder:
		msg = chat.Message{Text: textChooseAction, Keyboard: finishKeyboard()}
	case StatePromoInput:
		msg = chat.Message{Text: textPromoPrompt}
	case StateOrderReceipt:
		msg = chat.Message{Text: textSendReceipt}
	default:
		msg = chat.Message{Text: textIdle}
	}
	return Outcome{Replies: []chat.Message{msg}}
}

// commit применяет решение к корзине и сохраняет её. Если бонусы успели
// списаться параллельно, корзина сохраняется без скидки.
func (e *Engine) commit(ctx context.Context, c Customer, s *Session, d discount.Decision) (model.Checkout, discount.Decision, error) {
	co := discount.Apply(c.ID, s.Basket, d)
	err := e.ledger.CommitCheckout(ctx, co)
	if errors.Is(err, repository.ErrInsufficientBonus) && d.BonusDebit > 0 {
		e.logger.Warn("bonus balance changed during checkout", zap.Int64("userID", c.ID))
		d = discount.Decision{Kind: discount.KindBonus, Outcome: discount.OutcomeInsufficientBonus}
		co = discount.Apply(c.ID, s.Basket, d)
		err = e.ledger.CommitCheckout(ctx, co)
	}
	if err != nil {
		return model.Checkout{}, d, fmt.Errorf("commit checkout: %w", err)
	}

	e.logger.Info("checkout committed",
		zap.Int64("userID", c.ID),
		zap.Int("orders", len(co.Orders)),
		zap.String("total", co.Total.String()),
		zap.Int64("discount", co.Discount),
		zap.String("label", d.Label),
	)

	s.Basket = nil
	s.Committed = &co
	s.State = StateOrderReceipt
	return co, d, nil
}

func subtotal(basket []model.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range basket {
		sum = sum.Add(o.FinalPrice)
	}
	return sum
}
