// Package catalog pages through the products stored in the CMS and renders
// single products for display.
package catalog

import (
	"context"
	"iter"

	"github.com/shopspring/decimal"
	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/strapi"
)

// QuantityPresets are the weights (kg) offered as one-tap buttons.
var QuantityPresets = []decimal.Decimal{
	decimal.RequireFromString("0.5"),
	decimal.NewFromInt(1),
	decimal.RequireFromString("1.5"),
	decimal.NewFromInt(2),
}

// Page is one page of the catalog in stable id order.
type Page struct {
	Products  []strapi.Product
	Number    int
	Size      int
	PageCount int
	Total     int
}

// HasPrev reports whether a previous page exists.
func (p *Page) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a next page exists.
func (p *Page) HasNext() bool { return p.Number < p.PageCount }

// ProductCard is a product prepared for display.
type ProductCard struct {
	ID          string
	Title       string
	Description string
	Price       decimal.Decimal // per kg
	ImageURL    string          // absolute, empty when the product has no image
	Quantities  []decimal.Decimal
}

// Browser reads the catalog.
type Browser struct {
	cms    *strapi.Client
	logger core.Logger
}

// NewBrowser creates a Browser backed by the given CMS client.
func NewBrowser(cms *strapi.Client, logger core.Logger) *Browser {
	return &Browser{cms: cms, logger: core.LoggerOrNoOp(logger)}
}

// ListProducts returns page number page (1-based) of pageSize products sorted by id.
// Pages past the end are empty, not an error.
func (b *Browser) ListProducts(ctx context.Context, page, pageSize int) (*Page, error) {
	const op = "catalog.ListProducts"
	if page < 1 {
		return nil, core.NewValidationError(op, "page must be at least 1")
	}
	if pageSize < 1 {
		return nil, core.NewValidationError(op, "page size must be at least 1")
	}

	products, meta, err := b.cms.Products.List(ctx, strapi.NewQuery().
		Paginate(page, pageSize).
		Sort("id:asc").
		Populate("*"))
	if err != nil {
		return nil, err
	}

	p := &Page{Products: products, Number: page, Size: pageSize}
	if meta != nil {
		p.PageCount = meta.PageCount
		p.Total = meta.Total
	} else {
		// Without meta only the current page is known to exist.
		p.PageCount = page
		p.Total = (page-1)*pageSize + len(products)
	}

	b.logger.Debug("Catalog page loaded", map[string]interface{}{
		"page":       page,
		"page_size":  pageSize,
		"page_count": p.PageCount,
		"products":   len(products),
	})
	return p, nil
}

// Products yields the whole catalog in id order, fetching one page at a time.
// The sequence is finite and starts over on each range loop. A fetch error is
// yielded once and ends the sequence.
func (b *Browser) Products(ctx context.Context, pageSize int) iter.Seq2[strapi.Product, error] {
	return func(yield func(strapi.Product, error) bool) {
		for page := 1; ; page++ {
			p, err := b.ListProducts(ctx, page, pageSize)
			if err != nil {
				yield(strapi.Product{}, err)
				return
			}
			for _, product := range p.Products {
				if !yield(product, nil) {
					return
				}
			}
			if !p.HasNext() || len(p.Products) == 0 {
				return
			}
		}
	}
}

// RenderProduct loads a product and prepares it for display.
func (b *Browser) RenderProduct(ctx context.Context, productID string) (*ProductCard, error) {
	const op = "catalog.RenderProduct"

	product, err := b.cms.Products.Get(ctx, productID, strapi.NewQuery().Populate("*"))
	if err != nil {
		if core.IsNotFound(err) {
			return nil, core.NewNotFoundError(op, productID, "This product is no longer available.")
		}
		return nil, err
	}

	return &ProductCard{
		ID:          product.DocumentID,
		Title:       product.Title,
		Description: product.Description.String(),
		Price:       product.Price,
		ImageURL:    b.cms.MediaURL(product.Image.PreferredURL()),
		Quantities:  QuantityPresets,
	}, nil
}
