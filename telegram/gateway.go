// Package telegram connects the conversation machine to the Telegram Bot API.
//
// The Gateway long-polls for updates, turns messages and button presses into
// conversation events and renders replies as HTML messages with inline
// keyboards. Updates are spread over a fixed set of workers by user, so one
// user's updates are handled in arrival order while different users proceed
// in parallel.
package telegram

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/yelena0000/fish-store/conversation"
	"github.com/yelena0000/fish-store/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	instrumentationName = "github.com/yelena0000/fish-store/telegram"

	// queueSize is the per-worker backlog before the poller blocks.
	queueSize = 32

	// handleTimeout bounds the processing of a single update.
	handleTimeout = 30 * time.Second

	slowDownMessage = "Too many requests, please slow down."
)

// Bot is the part of the Bot API client used to talk to users.
// *tgbotapi.BotAPI implements it.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Poller delivers updates by long polling. *tgbotapi.BotAPI implements it.
type Poller interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler processes one conversation event. *conversation.Machine implements it.
type Handler interface {
	Handle(ctx context.Context, userID string, ev conversation.Event) (*conversation.Reply, error)
}

// Gateway routes Telegram updates to a Handler and sends back its replies.
type Gateway struct {
	bot         Bot
	handler     Handler
	logger      core.Logger
	limiter     *userLimiter
	workers     int
	pollTimeout int
	token       string

	tracer  trace.Tracer
	updates metric.Int64Counter
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithWorkers sets the number of update workers.
func WithWorkers(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the gateway's logger.
func WithLogger(logger core.Logger) Option {
	return func(g *Gateway) {
		g.logger = core.LoggerOrNoOp(logger)
	}
}

// WithRateLimit throttles each user to perSecond updates with the given burst.
// A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		g.limiter = newUserLimiter(perSecond, burst)
	}
}

// WithBotToken sets the bot token so it can be removed from logged and
// traced errors.
func WithBotToken(token string) Option {
	return func(g *Gateway) {
		g.token = token
	}
}

// WithPollTimeout sets the long polling timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(g *Gateway) {
		if seconds >= 0 {
			g.pollTimeout = seconds
		}
	}
}

// NewGateway creates a gateway sending replies through bot.
func NewGateway(bot Bot, handler Handler, opts ...Option) *Gateway {
	g := &Gateway{
		bot:         bot,
		handler:     handler,
		logger:      &core.NoOpLogger{},
		workers:     8,
		pollTimeout: 60,
		tracer:      otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"telegram.updates",
		metric.WithDescription("Received updates by kind and outcome"),
	)
	if err != nil {
		g.logger.Warn("Update counter unavailable", map[string]interface{}{"error": err})
	}
	g.updates = counter
	return g
}

// Run long-polls poller until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context, poller Poller) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = g.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	updates := poller.GetUpdatesChan(cfg)
	defer poller.StopReceivingUpdates()

	g.logger.Info("Polling for updates", map[string]interface{}{
		"workers":      g.workers,
		"poll_timeout": g.pollTimeout,
	})
	return g.Serve(ctx, updates)
}

// Serve handles updates until the channel is closed or ctx is cancelled.
// Updates already queued when it stops are still handled before it returns.
func (g *Gateway) Serve(ctx context.Context, updates <-chan tgbotapi.Update) error {
	queues := make([]chan inbound, g.workers)
	var eg errgroup.Group
	for i := range queues {
		q := make(chan inbound, queueSize)
		queues[i] = q
		eg.Go(func() error {
			for in := range q {
				g.process(context.WithoutCancel(ctx), in)
			}
			return nil
		})
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		_ = eg.Wait()
		g.logger.Info("Update workers stopped", nil)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := decode(u)
			if !ok {
				g.count(ctx, "unsupported", "ignored")
				continue
			}
			select {
			case queues[g.shard(in.userID)] <- in:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// shard maps a user to a worker so that user's updates stay ordered.
func (g *Gateway) shard(userID int64) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(userID, 10)))
	return int(h.Sum32() % uint32(g.workers))
}

// inbound is an update decoded into a conversation event.
type inbound struct {
	updateID   int
	kind       string
	userID     int64
	chatID     int64
	callbackID string
	event      conversation.Event
}

func decode(u tgbotapi.Update) (inbound, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		chatID := u.Message.From.ID
		if u.Message.Chat != nil {
			chatID = u.Message.Chat.ID
		}
		return inbound{
			updateID: u.UpdateID,
			kind:     "message",
			userID:   u.Message.From.ID,
			chatID:   chatID,
			event:    conversation.Text(u.Message.Text),
		}, true
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		cq := u.CallbackQuery
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		return inbound{
			updateID:   u.UpdateID,
			kind:       "callback",
			userID:     cq.From.ID,
			chatID:     chatID,
			callbackID: cq.ID,
			event:      conversation.ParseCallback(cq.Data),
		}, true
	}
	return inbound{}, false
}

func (g *Gateway) process(ctx context.Context, in inbound) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	correlationID := uuid.NewString()
	ctx, span := g.tracer.Start(ctx, "telegram.update", trace.WithAttributes(
		attribute.String("update.kind", in.kind),
		attribute.Int64("user.id", in.userID),
		attribute.String("correlation.id", correlationID),
	))
	defer span.End()

	fields := map[string]interface{}{
		"correlation_id": correlationID,
		"update_id":      in.updateID,
		"user_id":        in.userID,
		"kind":           in.kind,
	}

	if !g.limiter.allow(in.userID) {
		g.logger.Warn("Update throttled", fields)
		g.count(ctx, in.kind, "throttled")
		if in.callbackID != "" {
			g.answer(in.callbackID, slowDownMessage, fields)
		}
		return
	}

	// Stops the client's loading indicator before the possibly slow handling.
	if in.callbackID != "" {
		g.answer(in.callbackID, "", fields)
	}

	reply, err := g.handler.Handle(ctx, strconv.FormatInt(in.userID, 10), in.event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		g.logger.Error("Failed to handle update", withField(fields, "error", err))
		g.count(ctx, in.kind, "error")
	} else {
		g.count(ctx, in.kind, "ok")
	}
	if reply == nil {
		return
	}

	if err := g.send(in.chatID, reply, fields); err != nil {
		err = RedactToken(err, g.token)
		span.RecordError(err)
		g.logger.Error("Failed to send reply", withField(fields, "error", err))
	}
}

// send delivers a reply, as a photo with caption when it carries an image.
// A rejected photo falls back to a plain text message.
func (g *Gateway) send(chatID int64, r *conversation.Reply, fields map[string]interface{}) error {
	if photo, ok := photoMessage(chatID, r); ok {
		_, err := g.bot.Send(photo)
		if err == nil {
			return nil
		}
		g.logger.Warn("Photo rejected, sending text only", withField(fields, "error", RedactToken(err, g.token)))
	}
	_, err := g.bot.Send(textMessage(chatID, r))
	return err
}

func (g *Gateway) answer(callbackID, text string, fields map[string]interface{}) {
	if _, err := g.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		g.logger.Warn("Failed to answer callback", withField(fields, "error", RedactToken(err, g.token)))
	}
}

func (g *Gateway) count(ctx context.Context, kind, result string) {
	if g.updates == nil {
		return
	}
	g.updates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func withField(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
