package conversation

import (
	"strings"
)

// EventKind tells which variant an Event holds.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventCallback
)

// Event is one user input: free text or a button press.
type Event struct {
	Kind EventKind
	Text string // EventText
	Tag  string // EventCallback
	Data string // EventCallback, optional
}

// Text builds a text event.
func Text(s string) Event {
	return Event{Kind: EventText, Text: s}
}

// Callback builds a button event.
func Callback(tag, data string) Event {
	return Event{Kind: EventCallback, Tag: tag, Data: data}
}

// ParseCallback decodes the "tag:data" wire form produced by Button.CallbackData.
func ParseCallback(raw string) Event {
	tag, data, _ := strings.Cut(raw, ":")
	return Callback(tag, data)
}

// Button tags.
const (
	TagMenu      = "menu"
	TagAbout     = "about"
	TagPage      = "page"
	TagNext      = "next"
	TagPrev      = "prev"
	TagProduct   = "product"
	TagAdd       = "add"
	TagQuantity  = "qty"
	TagCustomQty = "custom_qty"
	TagBack      = "back"
	TagCart      = "cart"
	TagRemove    = "remove"
	TagCheckout  = "checkout"
	TagCancel    = "cancel"
)

type action int

const (
	actUnknown action = iota
	actStart
	actMenu
	actAbout
	actPage
	actNext
	actPrev
	actProduct
	actAdd
	actQuantity
	actCustomQty
	actBack
	actCart
	actRemove
	actCheckout
	actCancel
	actText
)

// intent is an Event normalized so buttons and typed keywords share handlers.
type intent struct {
	action action
	arg    string
}

var callbackActions = map[string]action{
	TagMenu:      actMenu,
	TagAbout:     actAbout,
	TagPage:      actPage,
	TagNext:      actNext,
	TagPrev:      actPrev,
	TagProduct:   actProduct,
	TagAdd:       actAdd,
	TagQuantity:  actQuantity,
	TagCustomQty: actCustomQty,
	TagBack:      actBack,
	TagCart:      actCart,
	TagRemove:    actRemove,
	TagCheckout:  actCheckout,
	TagCancel:    actCancel,
}

var keywordActions = map[string]action{
	"/start":            actStart,
	"/menu":             actMenu,
	"menu":              actMenu,
	"main menu":         actMenu,
	"continue shopping": actMenu,
	"/about":            actAbout,
	"about":             actAbout,
	"next":              actNext,
	"prev":              actPrev,
	"previous":          actPrev,
	"add to cart":       actAdd,
	"back":              actBack,
	"/cart":             actCart,
	"cart":              actCart,
	"view cart":         actCart,
	"/checkout":         actCheckout,
	"checkout":          actCheckout,
	"/cancel":           actCancel,
	"cancel":            actCancel,
}

func parseIntent(ev Event) intent {
	switch ev.Kind {
	case EventCallback:
		if a, ok := callbackActions[ev.Tag]; ok {
			return intent{action: a, arg: ev.Data}
		}
		return intent{action: actUnknown}
	case EventText:
		text := strings.TrimSpace(ev.Text)
		if a, ok := keywordActions[strings.ToLower(text)]; ok {
			return intent{action: a}
		}
		return intent{action: actText, arg: text}
	}
	return intent{action: actUnknown}
}
