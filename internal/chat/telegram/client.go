// Package telegram реализует транспорт чата поверх Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/chat"
)

const pollTimeout = 60

// Client отправляет сообщения и получает обновления Telegram.
type Client struct {
	api       *tgbotapi.BotAPI
	assetsDir string
	logger    *zap.Logger
}

// NewClient авторизуется в Bot API с указанным токеном.
func NewClient(token, assetsDir string, logger *zap.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Client{
		api:       api,
		assetsDir: assetsDir,
		logger:    logger,
	}, nil
}

// Username возвращает имя бота для реферальных ссылок.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Updates запускает long polling и возвращает канал событий. Канал
// закрывается после отмены контекста.
func (c *Client) Updates(ctx context.Context) <-chan chat.Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	in := c.api.GetUpdatesChan(cfg)

	out := make(chan chat.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.api.StopReceivingUpdates()
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				converted, ok := convertUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- converted:
				case <-ctx.Done():
					c.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

func convertUpdate(u tgbotapi.Update) (chat.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		res := chat.Update{
			UserID:       q.From.ID,
			ChatID:       q.From.ID,
			DisplayName:  displayName(q.From),
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		if q.Message != nil {
			res.ChatID = q.Message.Chat.ID
			res.MessageID = q.Message.MessageID
		}
		return res, true
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		res := chat.Update{
			UserID:      m.From.ID,
			ChatID:      m.Chat.ID,
			DisplayName: displayName(m.From),
			MessageID:   m.MessageID,
			Text:        m.Text,
		}
		if m.IsCommand() {
			res.Command, res.Args, _ = chat.ParseCommand(m.Text)
		}
		for _, p := range m.Photo {
			res.Photos = append(res.Photos, p.FileID)
		}
		return res, true
	}
	return chat.Update{}, false
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

func (c *Client) file(m chat.Media) (tgbotapi.RequestFileData, error) {
	if m.FileID != "" {
		return tgbotapi.FileID(m.FileID), nil
	}
	path := filepath.Join(c.assetsDir, m.Asset)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("asset %s: %w", m.Asset, err)
	}
	return tgbotapi.FilePath(path), nil
}

func inlineMarkup(kb *chat.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if kb == nil || kb.Persistent {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

func markup(kb *chat.Keyboard) any {
	if kb == nil {
		return nil
	}
	if !kb.Persistent {
		return inlineMarkup(kb)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, buttons)
	}
	m := tgbotapi.NewReplyKeyboard(rows...)
	m.ResizeKeyboard = true
	return m
}

// SendText отправляет текстовое сообщение.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb *chat.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if m := markup(kb); m != nil {
		msg.ReplyMarkup = m
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendPhoto отправляет изображение с подписью.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo chat.Media, caption string, kb *chat.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := c.file(photo)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewPhoto(chatID, file)
	msg.Caption = caption
	if m := markup(kb); m != nil {
		msg.ReplyMarkup = m
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// SendAlbum отправляет группу изображений. Отсутствующие файлы пропускаются.
func (c *Client) SendAlbum(ctx context.Context, chatID int64, photos []chat.Media) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	media := make([]any, 0, len(photos))
	for _, p := range photos {
		file, err := c.file(p)
		if err != nil {
			c.logger.Debug("album item skipped", zap.Error(err))
			continue
		}
		media = append(media, tgbotapi.NewInputMediaPhoto(file))
	}
	if len(media) == 0 {
		return nil
	}
	if _, err := c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		return fmt.Errorf("send media group: %w", err)
	}
	return nil
}

// Edit изменяет текст сообщения, а для сообщения с изображением его подпись.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, text string, kb *chat.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = inlineMarkup(kb)
	if _, err := c.api.Request(edit); err == nil {
		return nil
	}

	caption := tgbotapi.NewEditMessageCaption(chatID, messageID, text)
	caption.ReplyMarkup = inlineMarkup(kb)
	if _, err := c.api.Request(caption); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// AnswerCallback подтверждает нажатие inline-кнопки.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}
