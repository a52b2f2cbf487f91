// Package conversation drives the bot's dialogue: a finite state machine over
// named states, where every user event selects a transition, runs its side
// effects against the catalog and the cart, and produces the next prompt.
//
// A transition either completes or leaves the stored session untouched. Bad
// input and missing entities re-issue the current prompt with an explanation;
// CMS failures answer with a generic "try again" message.
package conversation

import (
	"context"
	"errors"
	"html"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yelena0000/fish-store/cart"
	"github.com/yelena0000/fish-store/catalog"
	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/strapi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/yelena0000/fish-store/conversation"

// TryAgainMessage is shown when a collaborator fails.
const TryAgainMessage = "Something went wrong on our side. Please try again in a moment."

const unrecognizedMessage = "Sorry, I didn't understand that."

// Catalog is the part of the catalog browser the machine needs.
type Catalog interface {
	ListProducts(ctx context.Context, page, pageSize int) (*catalog.Page, error)
	RenderProduct(ctx context.Context, productID string) (*catalog.ProductCard, error)
}

// Carts is the part of the cart service the machine needs.
type Carts interface {
	AddProduct(ctx context.Context, userID, productID string, quantity decimal.Decimal) (*strapi.CartItem, error)
	RemoveProduct(ctx context.Context, userID, cartItemID string) error
	Summary(ctx context.Context, userID string) (*cart.Summary, error)
	Checkout(ctx context.Context, userID, email string) (*strapi.Order, error)
}

// Machine is the conversation state machine. It is safe for concurrent use;
// events of the same user are serialized.
type Machine struct {
	catalog  Catalog
	carts    Carts
	store    SessionStore
	locks    *userLocks
	logger   core.Logger
	pageSize int
	now      func() time.Time

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithPageSize sets how many products are listed per page.
func WithPageSize(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithLogger sets the machine's logger.
func WithLogger(logger core.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = core.LoggerOrNoOp(logger)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine wires the machine to its collaborators and session store.
func NewMachine(cat Catalog, carts Carts, store SessionStore, opts ...MachineOption) *Machine {
	m := &Machine{
		catalog:  cat,
		carts:    carts,
		store:    store,
		locks:    newUserLocks(),
		logger:   &core.NoOpLogger{},
		pageSize: 6,
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(m)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"conversation.transitions",
		metric.WithDescription("Handled events by source and target state"),
	)
	if err != nil {
		m.logger.Warn("Transition counter unavailable", map[string]interface{}{"error": err})
	}
	m.transitions = counter
	return m
}

// Handle processes one event of one user and returns the reply to send.
// The reply is never nil. The error is only set when the session store
// fails; the reply then carries the generic retry message.
func (m *Machine) Handle(ctx context.Context, userID string, ev Event) (*Reply, error) {
	ctx, span := m.tracer.Start(ctx, "conversation.Handle",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	unlock := m.locks.lock(userID)
	defer unlock()

	sess, err := m.store.Load(ctx, userID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess = newSession(userID)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "session load failed")
		return &Reply{Text: TryAgainMessage}, err
	}

	in := parseIntent(ev)
	next := sess.clone()
	out, err := m.step(ctx, next, in)
	span.SetAttributes(attribute.String("state.from", string(sess.State)))

	if err != nil {
		m.record(ctx, sess.State, sess.State, "rejected")
		return m.fallback(span, sess, in, err), nil
	}

	next.Prompt = out.prompt
	next.UpdatedAt = m.now()
	span.SetAttributes(attribute.String("state.to", string(next.State)))
	m.record(ctx, sess.State, next.State, "ok")

	reply := out.prompt.withNotice(out.notice)
	if err := m.store.Save(ctx, next); err != nil {
		span.RecordError(err)
		m.logger.Error("Failed to save session", map[string]interface{}{
			"user_id": userID,
			"state":   string(next.State),
			"error":   err,
		})
		return reply, err
	}
	return reply, nil
}

// State returns the stored state of a user, StateStart when none is stored.
func (m *Machine) State(ctx context.Context, userID string) (State, error) {
	sess, err := m.store.Load(ctx, userID)
	if errors.Is(err, ErrSessionNotFound) {
		return StateStart, nil
	}
	if err != nil {
		return "", err
	}
	return sess.State, nil
}

func (m *Machine) record(ctx context.Context, from, to State, result string) {
	if m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("result", result),
	))
}

// fallback builds the reply for a failed transition from the unchanged session.
func (m *Machine) fallback(span trace.Span, sess *Session, in intent, err error) *Reply {
	if core.IsValidation(err) || core.IsNotFound(err) {
		m.logger.Debug("Input rejected", map[string]interface{}{
			"user_id": sess.UserID,
			"state":   string(sess.State),
			"reason":  err.Error(),
		})
		return sess.Prompt.withNotice(core.UserMessage(err, unrecognizedMessage))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "transition failed")
	m.logger.Error("Transition failed", map[string]interface{}{
		"user_id":  sess.UserID,
		"state":    string(sess.State),
		"action":   int(in.action),
		"upstream": core.IsUpstream(err),
		"error":    err,
	})
	return sess.Prompt.withNotice(TryAgainMessage)
}

// outcome is a completed transition: the new prompt plus an optional one-off notice.
type outcome struct {
	prompt *Reply
	notice string
}

func unrecognized() error {
	return core.NewValidationError("conversation.step", unrecognizedMessage)
}

// step applies in to s in place. s is a private copy; on error it is discarded.
func (m *Machine) step(ctx context.Context, s *Session, in intent) (outcome, error) {
	switch {
	case in.action == actStart, s.State == StateStart, s.State == StateOrderConfirmed:
		*s = *newSession(s.UserID)
		return m.browse(ctx, s, 1)
	case in.action == actCart:
		return m.showCart(ctx, s, "")
	}

	switch s.State {
	case StateBrowsing:
		return m.onBrowsing(ctx, s, in)
	case StateViewingProduct:
		return m.onViewingProduct(ctx, s, in)
	case StateEnteringQuantity:
		return m.onEnteringQuantity(ctx, s, in)
	case StateCartView:
		return m.onCartView(ctx, s, in)
	case StateAwaitingEmail:
		return m.onAwaitingEmail(ctx, s, in)
	}

	// Unknown stored state, e.g. from an older release: start over.
	*s = *newSession(s.UserID)
	return m.browse(ctx, s, 1)
}

func (m *Machine) onBrowsing(ctx context.Context, s *Session, in intent) (outcome, error) {
	switch in.action {
	case actProduct:
		return m.viewProduct(ctx, s, in.arg)
	case actNext:
		return m.browse(ctx, s, s.Page+1)
	case actPrev:
		return m.browse(ctx, s, max(s.Page-1, 1))
	case actPage:
		page, err := strconv.Atoi(in.arg)
		if err != nil || page < 1 {
			return outcome{}, unrecognized()
		}
		return m.browse(ctx, s, page)
	case actMenu, actBack:
		return m.browse(ctx, s, s.Page)
	case actAbout:
		return outcome{prompt: aboutPrompt()}, nil
	}
	return outcome{}, unrecognized()
}

func (m *Machine) onViewingProduct(ctx context.Context, s *Session, in intent) (outcome, error) {
	switch in.action {
	case actAdd:
		s.State = StateEnteringQuantity
		return outcome{prompt: quantityPrompt(s.ProductTitle)}, nil
	case actProduct:
		return m.viewProduct(ctx, s, in.arg)
	case actBack, actMenu:
		return m.browse(ctx, s, s.Page)
	}
	return outcome{}, unrecognized()
}

func (m *Machine) onEnteringQuantity(ctx context.Context, s *Session, in intent) (outcome, error) {
	switch in.action {
	case actQuantity, actText:
		qty, err := ParseQuantity(in.arg)
		if err != nil {
			return outcome{}, err
		}
		if _, err := m.carts.AddProduct(ctx, s.UserID, s.ProductID, qty); err != nil {
			return outcome{}, err
		}
		notice := "✅ Added " + kilograms(qty) + " of " + html.EscapeString(s.ProductTitle) + " to your cart."
		s.State = StateBrowsing
		s.ProductID, s.ProductTitle = "", ""
		return outcome{prompt: addedPrompt(), notice: notice}, nil
	case actCustomQty:
		return outcome{prompt: customQuantityPrompt()}, nil
	case actBack, actCancel:
		return m.viewProduct(ctx, s, s.ProductID)
	case actMenu:
		return m.browse(ctx, s, s.Page)
	}
	return outcome{}, unrecognized()
}

func (m *Machine) onCartView(ctx context.Context, s *Session, in intent) (outcome, error) {
	switch in.action {
	case actRemove:
		if err := m.carts.RemoveProduct(ctx, s.UserID, in.arg); err != nil {
			return outcome{}, err
		}
		return m.showCart(ctx, s, "Item removed.")
	case actCheckout:
		sum, err := m.carts.Summary(ctx, s.UserID)
		if err != nil {
			return outcome{}, err
		}
		if sum.Empty() {
			return outcome{}, core.NewValidationError("conversation.checkout", "Your cart is empty.")
		}
		if !sum.Orderable() {
			return outcome{}, core.NewValidationError("conversation.checkout", "None of the products in your cart are available anymore.")
		}
		s.State = StateAwaitingEmail
		return outcome{prompt: emailPrompt()}, nil
	case actBack, actMenu:
		return m.browse(ctx, s, s.Page)
	}
	return outcome{}, unrecognized()
}

func (m *Machine) onAwaitingEmail(ctx context.Context, s *Session, in intent) (outcome, error) {
	switch in.action {
	case actText:
		order, err := m.carts.Checkout(ctx, s.UserID, in.arg)
		if err != nil {
			if order == nil {
				return outcome{}, err
			}
			// The order exists; only clearing the cart failed.
			m.logger.Warn("Order placed but cart not fully cleared", map[string]interface{}{
				"user_id":  s.UserID,
				"order_id": order.DocumentID,
				"error":    err,
			})
		}
		s.State = StateOrderConfirmed
		return outcome{prompt: confirmedPrompt(order)}, nil
	case actCancel, actBack, actMenu:
		return m.browse(ctx, s, s.Page)
	}
	return outcome{}, unrecognized()
}

// browse lists a catalog page and moves to BROWSING. Pages past the end fall
// back to the last page.
func (m *Machine) browse(ctx context.Context, s *Session, page int) (outcome, error) {
	p, err := m.catalog.ListProducts(ctx, page, m.pageSize)
	if err != nil {
		return outcome{}, err
	}
	if len(p.Products) == 0 && page > 1 && p.PageCount > 0 && p.PageCount < page {
		if p, err = m.catalog.ListProducts(ctx, p.PageCount, m.pageSize); err != nil {
			return outcome{}, err
		}
	}

	s.State = StateBrowsing
	s.Page = p.Number
	s.ProductID, s.ProductTitle = "", ""
	return outcome{prompt: catalogPrompt(p)}, nil
}

func (m *Machine) viewProduct(ctx context.Context, s *Session, productID string) (outcome, error) {
	if productID == "" {
		return outcome{}, unrecognized()
	}
	card, err := m.catalog.RenderProduct(ctx, productID)
	if err != nil {
		return outcome{}, err
	}
	s.State = StateViewingProduct
	s.ProductID = card.ID
	s.ProductTitle = card.Title
	return outcome{prompt: productPrompt(card)}, nil
}

func (m *Machine) showCart(ctx context.Context, s *Session, notice string) (outcome, error) {
	sum, err := m.carts.Summary(ctx, s.UserID)
	if err != nil {
		return outcome{}, err
	}
	s.State = StateCartView
	return outcome{prompt: cartPrompt(sum), notice: notice}, nil
}
