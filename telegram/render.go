package telegram

import (
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yelena0000/fish-store/conversation"
)

// captionLimit is Telegram's maximum photo caption length in characters.
const captionLimit = 1024

// keyboard converts reply buttons into an inline keyboard. It returns nil for
// an empty keyboard so no markup is attached.
func keyboard(rows [][]conversation.Button) interface{} {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.CallbackData()))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	if len(out) == 0 {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func textMessage(chatID int64, r *conversation.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard(r.Keyboard)
	return msg
}

// photoMessage returns false when the reply has no image or its text does
// not fit in a caption.
func photoMessage(chatID int64, r *conversation.Reply) (tgbotapi.PhotoConfig, bool) {
	if r.ImageURL == "" || utf8.RuneCountInString(r.Text) > captionLimit {
		return tgbotapi.PhotoConfig{}, false
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(r.ImageURL))
	photo.Caption = r.Text
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = keyboard(r.Keyboard)
	return photo, true
}
