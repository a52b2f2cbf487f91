package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const testToken = "123456:SECRET-TOKEN"

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg, fields})
}

func (l *recordingLogger) Info(msg string, fields map[string]interface{})  { l.add("info", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]interface{}) { l.add("error", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]interface{})  { l.add("warn", msg, fields) }
func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) { l.add("debug", msg, fields) }

func (l *recordingLogger) text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out string
	for _, e := range l.entries {
		out += e.msg
		for k, v := range e.fields {
			out += fmt.Sprintf(" %s=%v", k, v)
		}
		out += "\n"
	}
	return out
}

func transportError() error {
	return &url.Error{
		Op:  "Post",
		URL: "https://api.telegram.org/bot" + testToken + "/sendMessage",
		Err: errors.New("connection reset by peer"),
	}
}

func TestRedactToken(t *testing.T) {
	err := transportError()
	redacted := RedactToken(err, testToken)

	assert.NotContains(t, redacted.Error(), "SECRET")
	assert.Contains(t, redacted.Error(), "/botREDACTED/sendMessage")
	var urlErr *url.Error
	assert.True(t, errors.As(redacted, &urlErr))

	plain := errors.New("Bad Request: chat not found")
	assert.Same(t, plain, RedactToken(plain, testToken))
	assert.Same(t, err, RedactToken(err, ""))
	assert.NoError(t, RedactToken(nil, testToken))
}

func TestGateway_SendErrorsDoNotLeakToken(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	logger := &recordingLogger{}
	bot := &fakeBot{sendErr: transportError()}
	g := NewGateway(bot, &fakeHandler{}, WithLogger(logger), WithBotToken(testToken))

	serve(t, g, textUpdate(1, 8, "hi"))

	logged := logger.text()
	assert.Contains(t, logged, "Failed to send reply")
	assert.NotContains(t, logged, "SECRET")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.NotEmpty(t, events, "the send error is recorded")
	for _, ev := range events {
		for _, kv := range ev.Attributes {
			assert.NotContains(t, kv.Value.Emit(), "SECRET", "attribute %s", kv.Key)
		}
	}
}

func TestLibraryLogger(t *testing.T) {
	logger := &recordingLogger{}
	l := NewLibraryLogger(logger, testToken)

	l.Println(transportError())
	l.Printf("Failed to get updates, retrying in %d seconds...", 3)

	require.Len(t, logger.entries, 2)
	assert.Equal(t, "warn", logger.entries[0].level)
	assert.Contains(t, logger.entries[0].fields["message"], "/botREDACTED/sendMessage")
	assert.Equal(t, "Failed to get updates, retrying in 3 seconds...", logger.entries[1].fields["message"])
	assert.NotContains(t, logger.text(), "SECRET")
}
