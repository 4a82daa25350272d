// Package notify доставляет сообщения клиентам и операторам.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderbot/internal/chat"
)

// Dispatcher отправляет сообщения через транспорт чата. Ошибки доставки
// записываются в лог и не прерывают бизнес-операцию.
type Dispatcher struct {
	transport chat.Transport
	operators []int64
	logger    *zap.Logger
}

// NewDispatcher создаёт Dispatcher для указанного списка операторов.
func NewDispatcher(transport chat.Transport, operators []int64, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		operators: operators,
		logger:    logger,
	}
}

// Deliver отправляет одно сообщение. Если изображение не отправилось,
// сообщение уходит текстом. Если сообщение нельзя отредактировать, оно
// отправляется заново.
func (d *Dispatcher) Deliver(ctx context.Context, chatID int64, messageID int, msg chat.Message) error {
	if len(msg.Album) > 0 {
		if err := d.transport.SendAlbum(ctx, chatID, msg.Album); err != nil {
			d.logger.Warn("album delivery failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
	}

	if msg.Edit && messageID != 0 && msg.Photo.Empty() {
		err := d.transport.Edit(ctx, chatID, messageID, msg.Text, msg.Keyboard)
		if err == nil {
			return nil
		}
		d.logger.Debug("edit failed, sending new message", zap.Int64("chatID", chatID), zap.Error(err))
	}

	if !msg.Photo.Empty() {
		err := d.transport.SendPhoto(ctx, chatID, msg.Photo, msg.Text, msg.Keyboard)
		if err == nil {
			return nil
		}
		d.logger.Warn("photo delivery failed, falling back to text",
			zap.Int64("chatID", chatID),
			zap.String("asset", msg.Photo.Asset),
			zap.Error(err),
		)
	}

	if err := d.transport.SendText(ctx, chatID, msg.Text, msg.Keyboard); err != nil {
		return fmt.Errorf("send text to %d: %w", chatID, err)
	}
	return nil
}

// Reply отправляет ответы клиенту по порядку.
func (d *Dispatcher) Reply(ctx context.Context, chatID int64, messageID int, msgs []chat.Message) {
	for _, msg := range msgs {
		if err := d.Deliver(ctx, chatID, messageID, msg); err != nil {
			d.logger.Error("reply delivery failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
	}
}

// NotifyCustomer отправляет уведомление одному клиенту.
func (d *Dispatcher) NotifyCustomer(ctx context.Context, userID int64, msg chat.Message) error {
	msg.Edit = false
	if err := d.Deliver(ctx, userID, 0, msg); err != nil {
		d.logger.Error("customer notification failed", zap.Int64("userID", userID), zap.Error(err))
		return err
	}
	return nil
}

// NotifyOperators рассылает уведомления всем операторам параллельно.
// Каждая доставка независима: ошибка одной не отменяет остальные.
func (d *Dispatcher) NotifyOperators(ctx context.Context, msgs ...chat.Message) {
	if len(msgs) == 0 {
		return
	}

	var g errgroup.Group
	for _, operatorID := range d.operators {
		operatorID := operatorID
		g.Go(func() error {
			for _, msg := range msgs {
				msg.Edit = false
				if err := d.Deliver(ctx, operatorID, 0, msg); err != nil {
					d.logger.Error("operator notification failed", zap.Int64("operatorID", operatorID), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Answer подтверждает нажатие кнопки. text показывается клиенту всплывающим уведомлением.
func (d *Dispatcher) Answer(ctx context.Context, callbackID, text string) {
	if err := d.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		d.logger.Debug("callback answer failed", zap.Error(err))
	}
}
