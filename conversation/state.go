package conversation

import (
	"errors"
	"time"
)

// State is a node of the conversation graph.
type State string

const (
	StateStart            State = "START"
	StateBrowsing         State = "BROWSING"
	StateViewingProduct   State = "VIEWING_PRODUCT"
	StateEnteringQuantity State = "ENTERING_QUANTITY"
	StateCartView         State = "CART_VIEW"
	StateAwaitingEmail    State = "AWAITING_EMAIL"
	StateOrderConfirmed   State = "ORDER_CONFIRMED"
)

// ErrSessionNotFound is returned by a SessionStore for unknown or expired users.
var ErrSessionNotFound = errors.New("session not found")

// Session is the bot-local state of one user. It never reaches the CMS.
type Session struct {
	UserID       string    `json:"user_id"`
	State        State     `json:"state"`
	Page         int       `json:"page"`
	ProductID    string    `json:"product_id,omitempty"`
	ProductTitle string    `json:"product_title,omitempty"`
	Prompt       *Reply    `json:"prompt,omitempty"` // last prompt, re-issued on bad input
	UpdatedAt    time.Time `json:"updated_at"`
}

func newSession(userID string) *Session {
	return &Session{UserID: userID, State: StateStart, Page: 1}
}

// clone copies the session so a failed transition can be discarded.
// Prompt is replaced, never mutated, so it may be shared.
func (s *Session) clone() *Session {
	c := *s
	return &c
}
