// Package cart implements cart and checkout operations on top of the CMS.
//
// A user owns at most one cart, found by Telegram id and created lazily on
// first use. Adding a product that is already in the cart increments the
// existing line instead of creating a second one. Totals are computed with
// decimal arithmetic from the current prices every time they are read.
package cart

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/strapi"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail performs the syntactic local@domain.tld check used at checkout.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return core.NewValidationError("cart.ValidateEmail", "That doesn't look like an email address. Please try again, e.g. name@example.com")
	}
	return nil
}

// UnavailableTitle names a line whose product no longer exists in the CMS.
const UnavailableTitle = "Unavailable product"

// Line is one cart item with its product and subtotal. Lines of deleted
// products are Unavailable: they have no price and count nothing toward the
// total, but can still be removed.
type Line struct {
	ItemID      string
	ProductID   string
	Title       string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Subtotal    decimal.Decimal
	Unavailable bool
}

// Summary is the content of a cart at read time.
type Summary struct {
	CartID string // empty when the user has no cart yet
	Lines  []Line
	Total  decimal.Decimal
}

// Empty reports whether the cart has no lines.
func (s *Summary) Empty() bool {
	return len(s.Lines) == 0
}

// Orderable reports whether at least one line can be ordered.
func (s *Summary) Orderable() bool {
	for _, l := range s.Lines {
		if !l.Unavailable {
			return true
		}
	}
	return false
}

// Service manages carts and orders for Telegram users.
type Service struct {
	cms    *strapi.Client
	logger core.Logger
}

// NewService creates a cart service backed by the given CMS client.
func NewService(cms *strapi.Client, logger core.Logger) *Service {
	return &Service{cms: cms, logger: core.LoggerOrNoOp(logger)}
}

func populatedCartQuery(userID string) *strapi.Query {
	return strapi.NewQuery().
		Eq("tg_id", userID).
		Populate("cart_products", "product").
		Sort("id:asc")
}

// findCart returns the user's cart with items and products populated, or nil.
func (s *Service) findCart(ctx context.Context, userID string) (*strapi.Cart, error) {
	carts, _, err := s.cms.Carts.List(ctx, populatedCartQuery(userID))
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, nil
	}
	if len(carts) > 1 {
		s.logger.Warn("User has more than one cart, using the oldest", map[string]interface{}{
			"user_id": userID,
			"carts":   len(carts),
		})
	}
	return &carts[0], nil
}

// GetOrCreateCart returns the user's cart, creating an empty one on first use.
func (s *Service) GetOrCreateCart(ctx context.Context, userID string) (*strapi.Cart, error) {
	if userID == "" {
		return nil, core.NewValidationError("cart.GetOrCreateCart", "user id is required")
	}

	existing, err := s.findCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	created, err := s.cms.Carts.Create(ctx, strapi.CartInput{TgID: userID}, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Cart created", map[string]interface{}{
		"user_id": userID,
		"cart_id": created.DocumentID,
	})
	return created, nil
}

// AddProduct puts quantity kilograms of a product into the user's cart.
// An existing line for the same product is incremented.
func (s *Service) AddProduct(ctx context.Context, userID, productID string, quantity decimal.Decimal) (*strapi.CartItem, error) {
	const op = "cart.AddProduct"

	if !quantity.IsPositive() {
		return nil, core.NewValidationError(op, "Quantity must be greater than zero.")
	}

	if _, err := s.cms.Products.Get(ctx, productID, nil); err != nil {
		if core.IsNotFound(err) {
			return nil, core.NewNotFoundError(op, productID, "This product is no longer available.")
		}
		return nil, err
	}

	c, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, item := range c.Items {
		if item.Product == nil || item.Product.DocumentID != productID {
			continue
		}
		newQty := item.Quantity.Add(quantity)
		updated, err := s.cms.CartItems.Update(ctx, item.DocumentID, strapi.QuantityInput{Quantity: newQty.InexactFloat64()}, nil)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Cart line incremented", map[string]interface{}{
			"user_id":    userID,
			"product_id": productID,
			"quantity":   newQty.String(),
		})
		return updated, nil
	}

	created, err := s.cms.CartItems.Create(ctx, strapi.CartItemInput{
		Quantity: quantity.InexactFloat64(),
		Product:  productID,
		Cart:     c.DocumentID,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Cart line added", map[string]interface{}{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   quantity.String(),
	})
	return created, nil
}

// RemoveProduct deletes a line from the user's cart. Lines of other carts are
// reported as not found and left untouched.
func (s *Service) RemoveProduct(ctx context.Context, userID, cartItemID string) error {
	const op = "cart.RemoveProduct"

	c, err := s.findCart(ctx, userID)
	if err != nil {
		return err
	}
	if c == nil || !containsItem(c, cartItemID) {
		return core.NewNotFoundError(op, cartItemID, "This item is not in your cart anymore.")
	}

	if err := s.cms.CartItems.Delete(ctx, cartItemID); err != nil {
		if core.IsNotFound(err) {
			return core.NewNotFoundError(op, cartItemID, "This item is not in your cart anymore.")
		}
		return err
	}
	s.logger.Info("Cart line removed", map[string]interface{}{
		"user_id": userID,
		"item_id": cartItemID,
	})
	return nil
}

func containsItem(c *strapi.Cart, itemID string) bool {
	for _, item := range c.Items {
		if item.DocumentID == itemID {
			return true
		}
	}
	return false
}

// Summary returns the user's cart lines and total. A user without a cart gets an empty summary.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	c, err := s.findCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &Summary{Total: decimal.Zero}, nil
	}
	return summarize(c), nil
}

func summarize(c *strapi.Cart) *Summary {
	sum := &Summary{CartID: c.DocumentID, Total: decimal.Zero}
	for _, item := range c.Items {
		if item.Product == nil {
			sum.Lines = append(sum.Lines, Line{
				ItemID:      item.DocumentID,
				Title:       UnavailableTitle,
				Price:       decimal.Zero,
				Quantity:    item.Quantity,
				Subtotal:    decimal.Zero,
				Unavailable: true,
			})
			continue
		}
		subtotal := item.Product.Price.Mul(item.Quantity)
		sum.Lines = append(sum.Lines, Line{
			ItemID:    item.DocumentID,
			ProductID: item.Product.DocumentID,
			Title:     item.Product.Title,
			Price:     item.Product.Price,
			Quantity:  item.Quantity,
			Subtotal:  subtotal,
		})
		sum.Total = sum.Total.Add(subtotal)
	}
	return sum
}

// ComputeTotal returns the sum of price times quantity over the user's cart.
func (s *Service) ComputeTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	sum, err := s.Summary(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return sum.Total, nil
}

// Checkout turns the user's cart into an order with status "new" and empties the cart.
// Nothing is created when the email is malformed or the cart is empty.
//
// The order is created before the lines are deleted. If a delete fails the
// order still exists and the error is returned; the remaining lines stay in
// the cart.
func (s *Service) Checkout(ctx context.Context, userID, email string) (*strapi.Order, error) {
	const op = "cart.Checkout"

	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	c, err := s.findCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil || len(c.Items) == 0 {
		return nil, core.NewValidationError(op, "Your cart is empty.")
	}
	sum := summarize(c)
	if !sum.Orderable() {
		return nil, core.NewValidationError(op, "None of the products in your cart are available anymore.")
	}

	lines := make([]strapi.OrderLine, 0, len(sum.Lines))
	for _, l := range sum.Lines {
		if l.Unavailable {
			continue
		}
		lines = append(lines, strapi.OrderLine{
			ProductID: l.ProductID,
			Title:     l.Title,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal,
		})
	}

	order, err := s.cms.Orders.Create(ctx, strapi.OrderInput{
		Email:  email,
		Status: strapi.OrderStatusNew,
		Total:  sum.Total.InexactFloat64(),
		Items:  lines,
	}, nil)
	if err != nil {
		return nil, err
	}

	for _, l := range sum.Lines {
		if err := s.cms.CartItems.Delete(ctx, l.ItemID); err != nil && !core.IsNotFound(err) {
			s.logger.Error("Failed to clear cart after checkout", map[string]interface{}{
				"user_id":  userID,
				"order_id": order.DocumentID,
				"item_id":  l.ItemID,
				"error":    err,
			})
			return order, err
		}
	}

	s.logger.Info("Order created", map[string]interface{}{
		"user_id":  userID,
		"order_id": order.DocumentID,
		"total":    sum.Total.StringFixed(2),
		"lines":    len(lines),
	})
	return order, nil
}
