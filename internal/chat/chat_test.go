package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCmd  string
		wantArgs []string
		wantOK   bool
	}{
		{name: "plain", text: "/start", wantCmd: "start", wantArgs: []string{}, wantOK: true},
		{name: "with args", text: "/addpromo SALE multi 300", wantCmd: "addpromo", wantArgs: []string{"SALE", "multi", "300"}, wantOK: true},
		{name: "bot mention", text: "/start@order_bot ABC123", wantCmd: "start", wantArgs: []string{"ABC123"}, wantOK: true},
		{name: "not a command", text: "hello", wantOK: false},
		{name: "bare slash", text: "/", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestMediaEmpty(t *testing.T) {
	assert.True(t, Media{}.Empty())
	assert.False(t, Media{Asset: "category.jpg"}.Empty())
	assert.False(t, Media{FileID: "abc"}.Empty())
}
