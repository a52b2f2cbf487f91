package telegram

import (
	"fmt"
	"strings"

	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/telemetry"
)

// Transport errors from the Bot API client embed the request URL, and with it
// the bot token.

// RedactToken returns err with every occurrence of token replaced. The
// original error is still reachable through errors.Is and errors.As.
func RedactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, telemetry.Redacted), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// LibraryLogger routes the Bot API client's own log lines, such as polling
// retries, to a core.Logger with the token removed. Install it with
// tgbotapi.SetLogger.
type LibraryLogger struct {
	logger core.Logger
	token  string
}

// NewLibraryLogger creates a LibraryLogger.
func NewLibraryLogger(logger core.Logger, token string) *LibraryLogger {
	return &LibraryLogger{logger: core.LoggerOrNoOp(logger), token: token}
}

// Println implements tgbotapi.BotLogger.
func (l *LibraryLogger) Println(v ...interface{}) {
	l.write(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Printf implements tgbotapi.BotLogger.
func (l *LibraryLogger) Printf(format string, v ...interface{}) {
	l.write(fmt.Sprintf(format, v...))
}

func (l *LibraryLogger) write(msg string) {
	if l.token != "" {
		msg = strings.ReplaceAll(msg, l.token, telemetry.Redacted)
	}
	l.logger.Warn("Bot API client", map[string]interface{}{"message": msg})
}
