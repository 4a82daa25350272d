// Package bot связывает входящие события чата с диалогом заказа и командами операторов.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/chat"
	"github.com/mmeshcher/orderbot/internal/engine"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
)

// Dialogue ведёт диалог оформления заказа.
type Dialogue interface {
	Handle(ctx context.Context, c engine.Customer, ev engine.Event) (engine.Outcome, error)
}

// Operations описывает команды клиентов и операторов.
type Operations interface {
	IsOperator(userID int64) bool
	SetOrderStatus(ctx context.Context, operatorID int64, orderID string, status model.OrderStatus) (*model.Order, error)
	ListAllOrders(ctx context.Context, operatorID int64) ([]model.Order, error)
	OrderDetail(ctx context.Context, operatorID int64, orderID string) (*model.Order, error)
	GrantPromoCode(ctx context.Context, operatorID int64, code string, promoType model.PromoType, amount int64) (model.PromoCode, error)
	ListPromoCodes(ctx context.Context, operatorID int64) ([]model.PromoCode, error)
	Analytics(ctx context.Context, operatorID int64) (service.Analytics, error)
	AdjustBonus(ctx context.Context, operatorID, userID, delta int64) (int64, error)
	ReferralCode(ctx context.Context, userID int64) (string, error)
	Cabinet(ctx context.Context, userID int64) (service.Cabinet, error)
	CustomerOrders(ctx context.Context, userID int64) ([]model.Order, error)
}

// Messenger доставляет ответы и уведомления.
type Messenger interface {
	Reply(ctx context.Context, chatID int64, messageID int, msgs []chat.Message)
	NotifyOperators(ctx context.Context, msgs ...chat.Message)
	Answer(ctx context.Context, callbackID, text string)
}

// TokenIssuer выдаёт операторам токены для HTTP API.
type TokenIssuer interface {
	Issue(operatorID int64) string
}

// Options параметры бота.
type Options struct {
	BotName        string
	SupportContact string
}

// Bot маршрутизирует события чата.
type Bot struct {
	dialogue  Dialogue
	ops       Operations
	messenger Messenger
	tokens    TokenIssuer
	logger    *zap.Logger
	opts      Options
}

// New создаёт Bot.
func New(dialogue Dialogue, ops Operations, messenger Messenger, tokens TokenIssuer, logger *zap.Logger, opts Options) *Bot {
	return &Bot{
		dialogue:  dialogue,
		ops:       ops,
		messenger: messenger,
		tokens:    tokens,
		logger:    logger,
		opts:      opts,
	}
}

// Run обрабатывает события до закрытия канала. События одного клиента
// обрабатываются по порядку, разные клиенты обслуживаются параллельно.
func (b *Bot) Run(ctx context.Context, updates <-chan chat.Update) {
	queues := newUserQueues(b.Handle)
	defer queues.wait()

	for u := range updates {
		queues.push(ctx, u)
	}
}

// Handle обрабатывает одно событие.
func (b *Bot) Handle(ctx context.Context, u chat.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", zap.Int64("userID", u.UserID), zap.Any("panic", r))
		}
	}()

	switch {
	case u.IsCallback():
		b.handleCallback(ctx, u)
	case u.Command != "":
		b.handleCommand(ctx, u)
	case len(u.Photos) > 0:
		b.dialogueEvent(ctx, u, engine.Photo{Variants: u.Photos})
	case u.Text == menuCabinet:
		b.showCabinet(ctx, u)
	case u.Text == menuCalculate:
		b.dialogueEvent(ctx, u, engine.Start{})
	case u.Text == menuSupport:
		b.reply(ctx, u, chat.Message{Text: b.supportText()})
	case u.Text != "":
		b.dialogueEvent(ctx, u, engine.Text{Body: u.Text})
	}
}

func (b *Bot) reply(ctx context.Context, u chat.Update, msgs ...chat.Message) {
	b.messenger.Reply(ctx, u.ChatID, u.MessageID, msgs)
}

func (b *Bot) supportText() string {
	return "Свяжитесь с нашим менеджером: " + b.opts.SupportContact
}

func (b *Bot) dialogueEvent(ctx context.Context, u chat.Update, ev engine.Event) {
	out, err := b.dialogue.Handle(ctx, engine.Customer{ID: u.UserID, DisplayName: u.DisplayName}, ev)
	if err != nil {
		b.logger.Error("dialogue step failed", zap.Int64("userID", u.UserID), zap.Error(err))
		b.reply(ctx, u, chat.Message{Text: textRetry})
		return
	}
	b.messenger.Reply(ctx, u.ChatID, u.MessageID, out.Replies)
	b.messenger.NotifyOperators(ctx, out.Operators...)
}

func (b *Bot) handleCommand(ctx context.Context, u chat.Update) {
	switch u.Command {
	case "start":
		ev := engine.Start{}
		if len(u.Args) > 0 {
			ev.Referral = u.Args[0]
		}
		b.dialogueEvent(ctx, u, ev)
	case "calculate":
		b.dialogueEvent(ctx, u, engine.Start{})
	case "cancel":
		b.dialogueEvent(ctx, u, engine.Cancel{})
	case "menu":
		b.reply(ctx, u, mainMenu())
	case "cabinet":
		b.showCabinet(ctx, u)
	case "support":
		b.reply(ctx, u, chat.Message{Text: b.supportText()})
	case "admin":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			return adminMenu(), nil
		})
	case "orders_status":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			orders, err := b.ops.ListAllOrders(ctx, u.UserID)
			if err != nil {
				return chat.Message{}, err
			}
			return chat.Message{Text: ordersStatusText(orders)}, nil
		})
	case "order_details":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			if len(u.Args) < 1 {
				return chat.Message{Text: usageOrderDetails}, nil
			}
			o, err := b.ops.OrderDetail(ctx, u.UserID, u.Args[0])
			if err != nil {
				return chat.Message{}, err
			}
			return chat.Message{Text: orderDetailText(o)}, nil
		})
	case "addpromo":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			return b.addPromo(ctx, u)
		})
	case "listpromos":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			promos, err := b.ops.ListPromoCodes(ctx, u.UserID)
			if err != nil {
				return chat.Message{}, err
			}
			return chat.Message{Text: promoListText(promos)}, nil
		})
	case "setstatus":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			if len(u.Args) < 2 {
				return chat.Message{Text: usageSetStatus}, nil
			}
			o, err := b.ops.SetOrderStatus(ctx, u.UserID, u.Args[0], model.OrderStatus(u.Args[1]))
			if err != nil {
				return chat.Message{}, err
			}
			return chat.Message{Text: fmt.Sprintf("Статус заказа %s обновлён на '%s'.", o.ID, o.Status.Label())}, nil
		})
	case "addbonus":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			return b.addBonus(ctx, u)
		})
	case "token":
		b.operatorCommand(ctx, u, func() (chat.Message, error) {
			return chat.Message{Text: "Токен для API оператора:\n" + b.tokens.Issue(u.UserID)}, nil
		})
	default:
		b.reply(ctx, u, chat.Message{Text: "Неизвестная команда. Главное меню: /menu"})
	}
}

func (b *Bot) addPromo(ctx context.Context, u chat.Update) (chat.Message, error) {
	if len(u.Args) < 3 {
		return chat.Message{Text: usageAddPromo}, nil
	}
	amount, err := strconv.ParseInt(u.Args[2], 10, 64)
	if err != nil {
		return chat.Message{Text: "Скидка должна быть числом."}, nil
	}
	p, err := b.ops.GrantPromoCode(ctx, u.UserID, u.Args[0], model.PromoType(strings.ToLower(u.Args[1])), amount)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{Text: fmt.Sprintf("Промокод %s добавлен.", p.Code)}, nil
}

func (b *Bot) addBonus(ctx context.Context, u chat.Update) (chat.Message, error) {
	if len(u.Args) < 2 {
		return chat.Message{Text: usageAddBonus}, nil
	}
	userID, err := strconv.ParseInt(u.Args[0], 10, 64)
	if err != nil {
		return chat.Message{Text: usageAddBonus}, nil
	}
	delta, err := strconv.ParseInt(u.Args[1], 10, 64)
	if err != nil {
		return chat.Message{Text: usageAddBonus}, nil
	}
	balance, err := b.ops.AdjustBonus(ctx, u.UserID, userID, delta)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{Text: fmt.Sprintf("Бонусный баланс пользователя %d: %d₽", userID, balance)}, nil
}

// operatorCommand выполняет команду оператора и переводит ошибки в ответ.
func (b *Bot) operatorCommand(ctx context.Context, u chat.Update, fn func() (chat.Message, error)) {
	if !b.ops.IsOperator(u.UserID) {
		b.deny(ctx, u)
		return
	}

	msg, err := fn()
	if errors.Is(err, service.ErrAccessDenied) {
		b.deny(ctx, u)
		return
	}
	if err != nil {
		msg = b.errorMessage(u, err)
	}
	b.reply(ctx, u, msg)
}

func (b *Bot) deny(ctx context.Context, u chat.Update) {
	if u.IsCallback() {
		b.messenger.Answer(ctx, u.CallbackID, textAccessDenied)
		return
	}
	b.reply(ctx, u, chat.Message{Text: textAccessDenied})
}

func (b *Bot) errorMessage(u chat.Update, err error) chat.Message {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return chat.Message{Text: textOrderNotFound, Keyboard: chat.Inline(backButton(dataAdminOrders)), Edit: true}
	case errors.Is(err, service.ErrUnknownStatus):
		return chat.Message{Text: textUnknownStatus + statusList()}
	case errors.Is(err, service.ErrInvalidPromo):
		return chat.Message{Text: usageAddPromo}
	case errors.Is(err, repository.ErrInsufficientBonus):
		return chat.Message{Text: "Недостаточно бонусов для списания."}
	}
	b.logger.Error("operator command failed", zap.Int64("userID", u.UserID), zap.Error(err))
	return chat.Message{Text: textRetry}
}

func (b *Bot) showCabinet(ctx context.Context, u chat.Update) {
	c, err := b.ops.Cabinet(ctx, u.UserID)
	if err != nil {
		b.logger.Error("cabinet failed", zap.Int64("userID", u.UserID), zap.Error(err))
		b.reply(ctx, u, chat.Message{Text: textRetry})
		return
	}
	b.reply(ctx, u, cabinetView(c))
}

func (b *Bot) handleCallback(ctx context.Context, u chat.Update) {
	data := u.CallbackData

	if ev, ok := engine.ParseCallback(data); ok {
		b.messenger.Answer(ctx, u.CallbackID, "")
		b.dialogueEvent(ctx, u, ev)
		return
	}

	switch {
	case data == dataCabinet:
		b.messenger.Answer(ctx, u.CallbackID, "")
		b.showCabinet(ctx, u)
	case data == dataCabinetHistory:
		b.messenger.Answer(ctx, u.CallbackID, "")
		orders, err := b.ops.CustomerOrders(ctx, u.UserID)
		if err != nil {
			b.logger.Error("order history failed", zap.Int64("userID", u.UserID), zap.Error(err))
			b.reply(ctx, u, chat.Message{Text: textRetry})
			return
		}
		b.reply(ctx, u, historyView(orders))
	case data == dataReferralProgram:
		b.messenger.Answer(ctx, u.CallbackID, "")
		code, err := b.ops.ReferralCode(ctx, u.UserID)
		if err != nil {
			b.logger.Error("referral code failed", zap.Int64("userID", u.UserID), zap.Error(err))
			b.reply(ctx, u, chat.Message{Text: textRetry})
			return
		}
		b.reply(ctx, u, referralView(b.opts.BotName, code))
	case data == dataNewCalcCabinet:
		b.messenger.Answer(ctx, u.CallbackID, "")
		b.dialogueEvent(ctx, u, engine.Start{})
	case strings.HasPrefix(data, "admin_") || strings.HasPrefix(data, prefixSetStatus):
		b.handleAdminCallback(ctx, u)
	default:
		b.messenger.Answer(ctx, u.CallbackID, "")
		b.logger.Debug("unknown callback", zap.String("data", data))
	}
}

func (b *Bot) handleAdminCallback(ctx context.Context, u chat.Update) {
	if !b.ops.IsOperator(u.UserID) {
		b.deny(ctx, u)
		return
	}
	b.messenger.Answer(ctx, u.CallbackID, "")

	data := u.CallbackData
	b.operatorCommand(ctx, u, func() (chat.Message, error) {
		switch {
		case data == dataAdminMain:
			return adminMenu(), nil
		case data == dataAdminOrders:
			orders, err := b.ops.ListAllOrders(ctx, u.UserID)
			if err != nil {
				return chat.Message{}, err
			}
			return ordersMenu(orders), nil
		case data == dataAdminPromos:
			return promoMenu(), nil
		case data == dataAdminListPromo:
			promos, err := b.ops.ListPromoCodes(ctx, u.UserID)
			if err != nil {
				return chat.Message{}, err
			}
			return chat.Message{Text: promoListText(promos), Keyboard: chat.Inline(backButton(dataAdminPromos)), Edit: true}, nil
		case data == dataAdminAddPromo:
			return chat.Message{Text: usageAddPromo, Keyboard: chat.Inline(backButton(dataAdminPromos)), Edit: true}, nil
		case data == dataAdminAnalytics:
			a, err := b.ops.Analytics(ctx, u.UserID)
			if err != nil {
				return chat.Message{}, err
			}
			return analyticsView(a), nil
		case strings.HasPrefix(data, prefixAdminOrder):
			o, err := b.ops.OrderDetail(ctx, u.UserID, strings.TrimPrefix(data, prefixAdminOrder))
			if err != nil {
				return chat.Message{}, err
			}
			return orderDetailView(o), nil
		case strings.HasPrefix(data, prefixSetStatus):
			orderID, status, ok := strings.Cut(strings.TrimPrefix(data, prefixSetStatus), ":")
			if !ok {
				return chat.Message{Text: "Неверный формат данных.", Keyboard: chat.Inline(backButton(dataAdminOrders)), Edit: true}, nil
			}
			o, err := b.ops.SetOrderStatus(ctx, u.UserID, orderID, model.OrderStatus(status))
			if err != nil {
				return chat.Message{}, err
			}
			return chat.Message{
				Text:     fmt.Sprintf("Статус заказа %s обновлён на '%s'.", o.ID, o.Status.Label()),
				Keyboard: chat.Inline(backButton(dataAdminOrders)),
				Edit:     true,
			}, nil
		}
		return adminMenu(), nil
	})
}
