package conversation

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yelena0000/fish-store/cart"
	"github.com/yelena0000/fish-store/catalog"
	"github.com/yelena0000/fish-store/strapi"
)

// Currency is appended to every price shown to users.
const Currency = "₽"

// Button is one inline keyboard button.
type Button struct {
	Label string `json:"label"`
	Tag   string `json:"tag"`
	Data  string `json:"data,omitempty"`
}

// CallbackData is the payload sent back by the chat transport when the button is pressed.
func (b Button) CallbackData() string {
	if b.Data == "" {
		return b.Tag
	}
	return b.Tag + ":" + b.Data
}

// Reply is what the bot sends back. Text is HTML.
type Reply struct {
	Text     string     `json:"text"`
	ImageURL string     `json:"image_url,omitempty"`
	Keyboard [][]Button `json:"keyboard,omitempty"`
}

// withNotice returns a copy of r with notice prepended to its text.
func (r *Reply) withNotice(notice string) *Reply {
	if r == nil {
		return &Reply{Text: notice}
	}
	out := *r
	if notice != "" {
		out.Text = notice + "\n\n" + r.Text
	}
	return &out
}

func row(buttons ...Button) []Button { return buttons }

var (
	cartButton     = Button{Label: "🛒 View cart", Tag: TagCart}
	shopButton     = Button{Label: "🐟 Continue shopping", Tag: TagMenu}
	backButton     = Button{Label: "« Back", Tag: TagBack}
	cancelButton   = Button{Label: "Cancel", Tag: TagCancel}
	aboutButton    = Button{Label: "ℹ️ About", Tag: TagAbout}
	checkoutButton = Button{Label: "✅ Checkout", Tag: TagCheckout}
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " " + Currency
}

func kilograms(d decimal.Decimal) string {
	return d.String() + " kg"
}

func catalogPrompt(p *catalog.Page) *Reply {
	if len(p.Products) == 0 {
		return &Reply{
			Text:     "The catalog is empty right now. Please check back later.",
			Keyboard: [][]Button{row(cartButton, aboutButton)},
		}
	}

	var kb [][]Button
	for _, product := range p.Products {
		kb = append(kb, row(Button{
			Label: fmt.Sprintf("%s · %s/kg", product.Title, money(product.Price)),
			Tag:   TagProduct,
			Data:  product.DocumentID,
		}))
	}
	var nav []Button
	if p.HasPrev() {
		nav = append(nav, Button{Label: "« Prev", Tag: TagPrev})
	}
	if p.HasNext() {
		nav = append(nav, Button{Label: "Next »", Tag: TagNext})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb, row(cartButton, aboutButton))

	text := "<b>Our fish</b>\nChoose a product:"
	if p.PageCount > 1 {
		text = fmt.Sprintf("<b>Our fish</b> (page %d of %d)\nChoose a product:", p.Number, p.PageCount)
	}
	return &Reply{Text: text, Keyboard: kb}
}

func productPrompt(card *catalog.ProductCard) *Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(card.Title))
	if card.Description != "" {
		b.WriteString(html.EscapeString(card.Description))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Price: %s per kg", money(card.Price))

	return &Reply{
		Text:     b.String(),
		ImageURL: card.ImageURL,
		Keyboard: [][]Button{
			row(Button{Label: "➕ Add to cart", Tag: TagAdd, Data: card.ID}),
			row(backButton, cartButton),
		},
	}
}

func quantityPrompt(title string) *Reply {
	presets := make([]Button, 0, len(catalog.QuantityPresets))
	for _, q := range catalog.QuantityPresets {
		presets = append(presets, Button{Label: kilograms(q), Tag: TagQuantity, Data: q.String()})
	}
	return &Reply{
		Text: fmt.Sprintf("How much <b>%s</b> would you like?\nPick a weight or type it in kg (from %s to %s).",
			html.EscapeString(title), MinQuantity.String(), MaxQuantity.String()),
		Keyboard: [][]Button{
			presets,
			row(Button{Label: "✏️ Other amount", Tag: TagCustomQty}),
			row(backButton),
		},
	}
}

func customQuantityPrompt() *Reply {
	return &Reply{
		Text:     fmt.Sprintf("Type the weight in kilograms, for example 0.7 (from %s to %s).", MinQuantity.String(), MaxQuantity.String()),
		Keyboard: [][]Button{row(backButton)},
	}
}

func addedPrompt() *Reply {
	return &Reply{
		Text:     "What would you like to do next?",
		Keyboard: [][]Button{row(cartButton), row(shopButton)},
	}
}

func cartPrompt(sum *cart.Summary) *Reply {
	if sum.Empty() {
		return &Reply{
			Text:     "Your cart is empty.",
			Keyboard: [][]Button{row(shopButton)},
		}
	}

	var b strings.Builder
	b.WriteString("<b>Your cart</b>\n\n")
	var kb [][]Button
	for i, line := range sum.Lines {
		if line.Unavailable {
			fmt.Fprintf(&b, "%d. <i>%s</i>\n   %s, no longer sold\n", i+1, line.Title, kilograms(line.Quantity))
		} else {
			fmt.Fprintf(&b, "%d. <b>%s</b>\n   %s × %s = %s\n",
				i+1, html.EscapeString(line.Title), kilograms(line.Quantity), money(line.Price), money(line.Subtotal))
		}
		kb = append(kb, row(Button{Label: "✕ Remove " + line.Title, Tag: TagRemove, Data: line.ItemID}))
	}
	fmt.Fprintf(&b, "\n<b>Total: %s</b>", money(sum.Total))
	kb = append(kb, row(checkoutButton), row(shopButton))

	return &Reply{Text: b.String(), Keyboard: kb}
}

func emailPrompt() *Reply {
	return &Reply{
		Text:     "Please send your email address so we can confirm the order.",
		Keyboard: [][]Button{row(cancelButton)},
	}
}

func confirmedPrompt(order *strapi.Order) *Reply {
	return &Reply{
		Text: fmt.Sprintf("Thank you! Your order has been placed.\nTotal: <b>%s</b>\nWe will contact you at %s.",
			money(order.Total), html.EscapeString(order.Email)),
		Keyboard: [][]Button{row(shopButton)},
	}
}

func aboutPrompt() *Reply {
	return &Reply{
		Text: "We sell fresh fish by weight. Browse the catalog, add what you like to the cart " +
			"and leave your email at checkout. We will contact you to arrange delivery.",
		Keyboard: [][]Button{row(Button{Label: "« Back to catalog", Tag: TagMenu})},
	}
}
