// Package chat описывает транспорт чата, независимый от конкретного мессенджера.
package chat

import (
	"context"
	"strings"
)

// Button кнопка inline- или обычной клавиатуры.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard набор кнопок под сообщением. Persistent означает обычную клавиатуру
// под полем ввода вместо inline-кнопок.
type Keyboard struct {
	Rows       [][]Button
	Persistent bool
}

// Row собирает ряд кнопок.
func Row(buttons ...Button) []Button {
	return buttons
}

// Inline создаёт inline-клавиатуру.
func Inline(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Menu создаёт обычную клавиатуру под полем ввода.
func Menu(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows, Persistent: true}
}

// Media ссылка на изображение: идентификатор уже загруженного файла или имя
// статического ресурса.
type Media struct {
	FileID string
	Asset  string
}

// Empty сообщает, что изображение не задано.
func (m Media) Empty() bool {
	return m.FileID == "" && m.Asset == ""
}

// Message исходящее сообщение. Если задан Photo, Text отправляется подписью.
// Album отправляется отдельной группой изображений перед сообщением.
// Edit просит изменить сообщение, к которому привязана нажатая кнопка.
type Message struct {
	Text     string
	Photo    Media
	Album    []Media
	Keyboard *Keyboard
	Edit     bool
}

// Update входящее событие чата.
type Update struct {
	UserID       int64
	ChatID       int64
	DisplayName  string
	MessageID    int
	Text         string
	Command      string
	Args         []string
	Photos       []string
	CallbackID   string
	CallbackData string
}

// IsCallback сообщает, что событие вызвано нажатием inline-кнопки.
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// ParseCommand разбирает текст вида "/cmd@bot arg1 arg2".
func ParseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return cmd, fields[1:], true
}

// Transport отправляет сообщения в чат.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, photo Media, caption string, kb *Keyboard) error
	SendAlbum(ctx context.Context, chatID int64, photos []Media) error
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
