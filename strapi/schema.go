package strapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the closed set of order states stored in the CMS.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Pagination is the meta.pagination block of list responses.
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// Media is an uploaded file.
type Media struct {
	URL     string                 `json:"url"`
	Formats map[string]MediaFormat `json:"formats"`
}

// MediaFormat is one generated size of an uploaded image.
type MediaFormat struct {
	URL string `json:"url"`
}

// PreferredURL returns the "small" rendition when present, else the original.
func (m *Media) PreferredURL() string {
	if m == nil {
		return ""
	}
	if small, ok := m.Formats["small"]; ok && small.URL != "" {
		return small.URL
	}
	return m.URL
}

// Product is an item of the catalog. Price is per kilogram.
type Product struct {
	ID          int             `json:"id"`
	DocumentID  string          `json:"documentId"`
	Title       string          `json:"title"`
	Description RichText        `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       *Media          `json:"image"`
}

func (p *Product) validate() error {
	if p.DocumentID == "" {
		return errors.New("product without documentId")
	}
	if p.Title == "" {
		return fmt.Errorf("product %s without title", p.DocumentID)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("product %s has negative price", p.DocumentID)
	}
	return nil
}

// Cart belongs to one Telegram user.
type Cart struct {
	ID         int        `json:"id"`
	DocumentID string     `json:"documentId"`
	TgID       FlexString `json:"tg_id"`
	Items      []CartItem `json:"cart_products"`
}

func (c *Cart) validate() error {
	if c.DocumentID == "" {
		return errors.New("cart without documentId")
	}
	for i := range c.Items {
		if err := c.Items[i].validate(); err != nil {
			return fmt.Errorf("cart %s: %w", c.DocumentID, err)
		}
	}
	return nil
}

// CartItem is one line of a cart. Product is only set when populated.
type CartItem struct {
	ID         int             `json:"id"`
	DocumentID string          `json:"documentId"`
	Quantity   decimal.Decimal `json:"quantity"`
	Product    *Product        `json:"product"`
}

func (i *CartItem) validate() error {
	if i.DocumentID == "" {
		return errors.New("cart item without documentId")
	}
	if i.Quantity.IsNegative() {
		return fmt.Errorf("cart item %s has negative quantity", i.DocumentID)
	}
	if i.Product != nil {
		if err := i.Product.validate(); err != nil {
			return fmt.Errorf("cart item %s: %w", i.DocumentID, err)
		}
	}
	return nil
}

// OrderLine is the snapshot of a cart line kept on the order.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order is created once at checkout.
type Order struct {
	ID         int             `json:"id"`
	DocumentID string          `json:"documentId"`
	Email      string          `json:"email"`
	Status     OrderStatus     `json:"order_status"`
	Total      decimal.Decimal `json:"total"`
	Items      []OrderLine     `json:"items"`
}

func (o *Order) validate() error {
	if o.DocumentID == "" {
		return errors.New("order without documentId")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s has unknown status %q", o.DocumentID, o.Status)
	}
	return nil
}

// Write models. Numbers go out as JSON numbers, which the CMS decimal fields expect.

// CartInput creates a cart.
type CartInput struct {
	TgID string `json:"tg_id"`
}

// CartItemInput creates a cart item. Product and Cart are documentIds.
type CartItemInput struct {
	Quantity float64 `json:"quantity"`
	Product  string  `json:"product"`
	Cart     string  `json:"cart"`
}

// QuantityInput updates the quantity of a cart item.
type QuantityInput struct {
	Quantity float64 `json:"quantity"`
}

// OrderInput creates an order.
type OrderInput struct {
	Email  string      `json:"email"`
	Status OrderStatus `json:"order_status"`
	Total  float64     `json:"total"`
	Items  []OrderLine `json:"items"`
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// RichText decodes either a plain string or Strapi "blocks" rich text into plain text.
// Blocks are flattened paragraph by paragraph.
type RichText string

type richBlock struct {
	Text     string      `json:"text"`
	Children []richBlock `json:"children"`
}

func (r *RichText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RichText(s)
	case len(data) > 0 && data[0] == '[':
		var blocks []richBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		paragraphs := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if text := strings.TrimSpace(flatten(b)); text != "" {
				paragraphs = append(paragraphs, text)
			}
		}
		*r = RichText(strings.Join(paragraphs, "\n"))
	default:
		return fmt.Errorf("unsupported rich text value %s", strconv.Quote(string(data)))
	}
	return nil
}

func flatten(b richBlock) string {
	if len(b.Children) == 0 {
		return b.Text
	}
	var sb strings.Builder
	sb.WriteString(b.Text)
	for _, c := range b.Children {
		sb.WriteString(flatten(c))
	}
	return sb.String()
}

// String returns the plain text.
func (r RichText) String() string {
	return string(r)
}
