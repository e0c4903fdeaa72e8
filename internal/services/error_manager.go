package services

import (
	"context"
	"fmt"
	"html"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Telegram rejects messages over 4096 characters; markup and headers need
// the rest.
const maxAdminDetailLength = 3000

// ErrorManager reports server panics and background job failures to the
// admin Telegram chat.
type ErrorManager struct {
	bot     *bot.Bot
	adminID int64
}

func NewErrorManager(b *bot.Bot, adminID int64) *ErrorManager {
	return &ErrorManager{
		bot:     b,
		adminID: adminID,
	}
}

// RequestInfo identifies the HTTP request that was being served.
type RequestInfo struct {
	Method    string
	Path      string
	UserID    int64
	RequestID string
}

func (e *ErrorManager) NotifyAdmin(ctx context.Context, panicValue interface{}, req RequestInfo) {
	userInfo := "anonymous"
	if req.UserID != 0 {
		userInfo = fmt.Sprintf("[%d]", req.UserID)
	}

	msg := SafeConcat(
		FormatBold("🚨 Panic in handler"), "\n",
		"Request: ", html.EscapeString(req.Method+" "+req.Path), "\n",
		"Request ID: ", html.EscapeString(req.RequestID), "\n",
		"User: ", userInfo, "\n",
		"Error: ", html.EscapeString(fmt.Sprint(panicValue)), "\n\n",
		"Stack trace:\n", FormatCode(truncate(string(debug.Stack()), maxAdminDetailLength)),
	)

	e.send(ctx, msg)
}

func (e *ErrorManager) NotifyAdminError(ctx context.Context, operation string, err error) {
	msg := SafeConcat(
		FormatBold("❌ "+operation+" failed"), "\n",
		FormatCode(truncate(err.Error(), maxAdminDetailLength)),
	)
	e.send(ctx, msg)
}

func (e *ErrorManager) send(ctx context.Context, msg string) {
	_, _ = e.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    e.adminID,
		Text:      msg,
		ParseMode: models.ParseModeHTML,
	})
}
