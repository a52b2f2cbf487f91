package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yelena0000/fish-store/cart"
	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/strapi"
	"github.com/yelena0000/fish-store/strapi/strapitest"
)

const user = "1001"

type fixture struct {
	cms    *strapitest.Server
	svc    *cart.Service
	salmon string
	trout  string
	ctx    context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cms := strapitest.NewServer(t)
	client, err := strapi.NewClient(cms.URL, strapitest.Token)
	require.NoError(t, err)

	return &fixture{
		cms:    cms,
		svc:    cart.NewService(client, &core.NoOpLogger{}),
		salmon: cms.AddProduct(strapitest.Product{Title: "Salmon", Price: 12.5}),
		trout:  cms.AddProduct(strapitest.Product{Title: "Trout", Price: 8}),
		ctx:    context.Background(),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGetOrCreateCart_Idempotent(t *testing.T) {
	f := setup(t)

	first, err := f.svc.GetOrCreateCart(f.ctx, user)
	require.NoError(t, err)
	second, err := f.svc.GetOrCreateCart(f.ctx, user)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, 1, f.cms.CartCount())
	assert.Empty(t, second.Items)
}

func TestAddProduct_CreatesCartLazily(t *testing.T) {
	f := setup(t)
	assert.Equal(t, 0, f.cms.CartCount())

	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1.5"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.cms.CartCount())
	items := f.cms.Items(user)
	require.Len(t, items, 1)
	assert.Equal(t, 1.5, items[0].Quantity)
	assert.Equal(t, f.salmon, items[0].Product)
}

func TestAddProduct_AggregatesSameProduct(t *testing.T) {
	f := setup(t)

	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1.5"))
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.salmon, dec("0.5"))
	require.NoError(t, err)

	items := f.cms.Items(user)
	require.Len(t, items, 1, "same product must stay on one line")
	assert.Equal(t, 2.0, items[0].Quantity)
}

func TestAddProduct_Validation(t *testing.T) {
	f := setup(t)

	for _, q := range []string{"0", "-1", "-0.5"} {
		t.Run(q, func(t *testing.T) {
			_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec(q))
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
		})
	}

	assert.Equal(t, 0, f.cms.Calls(http.MethodPost, strapi.CollectionCartItems), "no CMS write on rejected input")
}

func TestAddProduct_UnknownProduct(t *testing.T) {
	f := setup(t)

	_, err := f.svc.AddProduct(f.ctx, user, "no-such-product", dec("1"))
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
	assert.Empty(t, f.cms.Items(user))
}

func TestAddProduct_UpstreamFailure(t *testing.T) {
	f := setup(t)
	f.cms.FailNext(http.MethodPost, strapi.CollectionCartItems, 1)

	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1"))
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
	assert.Empty(t, f.cms.Items(user))
}

func TestComputeTotal(t *testing.T) {
	f := setup(t)

	total, err := f.svc.ComputeTotal(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, total.IsZero(), "no cart means zero total")

	_, err = f.svc.AddProduct(f.ctx, user, f.salmon, dec("1.5")) // 18.75
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("0.3")) // 2.4
	require.NoError(t, err)

	total, err = f.svc.ComputeTotal(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "21.15", total.StringFixed(2))
}

func TestSummary_Lines(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("2"))
	require.NoError(t, err)

	sum, err := f.svc.Summary(f.ctx, user)
	require.NoError(t, err)
	require.Len(t, sum.Lines, 1)

	line := sum.Lines[0]
	assert.Equal(t, "Salmon", line.Title)
	assert.Equal(t, f.salmon, line.ProductID)
	assert.True(t, dec("25").Equal(line.Subtotal))
	assert.True(t, dec("25").Equal(sum.Total))
	assert.False(t, sum.Empty())
}

func TestRemoveProduct(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1"))
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("1"))
	require.NoError(t, err)

	items := f.cms.Items(user)
	require.Len(t, items, 2)

	require.NoError(t, f.svc.RemoveProduct(f.ctx, user, items[0].DocumentID))

	left := f.cms.Items(user)
	require.Len(t, left, 1)
	assert.Equal(t, items[1].DocumentID, left[0].DocumentID)
}

func TestRemoveProduct_ForeignItem(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, "other-user", f.salmon, dec("1"))
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("1"))
	require.NoError(t, err)

	foreign := f.cms.Items("other-user")[0].DocumentID
	err = f.svc.RemoveProduct(f.ctx, user, foreign)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))

	assert.Len(t, f.cms.Items("other-user"), 1, "foreign cart untouched")
	assert.Len(t, f.cms.Items(user), 1, "own cart untouched")
	assert.Equal(t, 0, f.cms.Calls(http.MethodDelete, strapi.CollectionCartItems))
}

func TestRemoveProduct_NoCart(t *testing.T) {
	f := setup(t)
	err := f.svc.RemoveProduct(f.ctx, user, "anything")
	assert.True(t, core.IsNotFound(err))
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Checkout(f.ctx, user, "buyer@example.com")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	// Existing but empty cart behaves the same
	_, err = f.svc.GetOrCreateCart(f.ctx, user)
	require.NoError(t, err)
	_, err = f.svc.Checkout(f.ctx, user, "buyer@example.com")
	assert.True(t, core.IsValidation(err))

	assert.Empty(t, f.cms.Orders())
}

func TestCheckout_InvalidEmail(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1"))
	require.NoError(t, err)

	_, err = f.svc.Checkout(f.ctx, user, "not-an-email")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Empty(t, f.cms.Orders())
	assert.Len(t, f.cms.Items(user), 1)
}

func TestCheckout_Success(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1.5"))
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("2"))
	require.NoError(t, err)

	before, err := f.svc.ComputeTotal(f.ctx, user)
	require.NoError(t, err)

	order, err := f.svc.Checkout(f.ctx, user, "  buyer@example.com ")
	require.NoError(t, err)

	assert.Equal(t, strapi.OrderStatusNew, order.Status)
	assert.True(t, before.Equal(order.Total))
	assert.Equal(t, "buyer@example.com", order.Email)
	assert.Len(t, order.Items, 2)

	orders := f.cms.Orders()
	require.Len(t, orders, 1, "exactly one order")
	assert.Equal(t, "new", orders[0].Status)
	assert.Equal(t, 34.75, orders[0].Total)

	var snapshot []map[string]interface{}
	require.NoError(t, json.Unmarshal(orders[0].Items, &snapshot))
	assert.Len(t, snapshot, 2)

	assert.Empty(t, f.cms.Items(user), "cart emptied after checkout")
	total, err := f.svc.ComputeTotal(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestCheckout_OrderCreationFails(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1"))
	require.NoError(t, err)
	f.cms.FailNext(http.MethodPost, strapi.CollectionOrders, 1)

	_, err = f.svc.Checkout(f.ctx, user, "buyer@example.com")
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
	assert.Len(t, f.cms.Items(user), 1, "cart kept when no order was created")
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"first.last@sub.domain.org", true},
		{"user@localhost", false},
		{"user.example.com", false},
		{"@example.com", false},
		{"user@@example.com", false},
		{"us er@example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := cart.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, core.IsValidation(err))
			}
		})
	}
}

func TestCheckout_ClearFails(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("1"))
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("1"))
	require.NoError(t, err)
	f.cms.FailNext(http.MethodDelete, strapi.CollectionCartItems, 1)

	order, err := f.svc.Checkout(f.ctx, user, "buyer@example.com")
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
	require.NotNil(t, order, "the order was created before clearing failed")
	assert.Equal(t, 20.5, order.Total.InexactFloat64())

	assert.Len(t, f.cms.Orders(), 1)
	assert.Len(t, f.cms.Items(user), 2, "lines stay when the first delete fails")
}

func TestSummary_UnavailableProduct(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("2"))
	require.NoError(t, err)
	_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("1"))
	require.NoError(t, err)
	f.cms.DeleteProduct(f.trout)

	sum, err := f.svc.Summary(f.ctx, user)
	require.NoError(t, err)
	require.Len(t, sum.Lines, 2)
	assert.True(t, sum.Orderable())

	var gone cart.Line
	for _, l := range sum.Lines {
		if l.Unavailable {
			gone = l
		}
	}
	require.True(t, gone.Unavailable)
	assert.Equal(t, cart.UnavailableTitle, gone.Title)
	assert.True(t, gone.Subtotal.IsZero())
	assert.Equal(t, "25", sum.Total.String(), "unavailable lines add nothing")

	total, err := f.svc.ComputeTotal(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "25", total.String())

	require.NoError(t, f.svc.RemoveProduct(f.ctx, user, gone.ItemID))
	assert.Len(t, f.cms.Items(user), 1)
}

func TestCheckout_UnavailableProducts(t *testing.T) {
	t.Run("skipped in the order and cleared", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.AddProduct(f.ctx, user, f.salmon, dec("2"))
		require.NoError(t, err)
		_, err = f.svc.AddProduct(f.ctx, user, f.trout, dec("1"))
		require.NoError(t, err)
		f.cms.DeleteProduct(f.trout)

		order, err := f.svc.Checkout(f.ctx, user, "buyer@example.com")
		require.NoError(t, err)
		assert.Equal(t, "25", order.Total.String())

		orders := f.cms.Orders()
		require.Len(t, orders, 1)
		var snapshot []map[string]interface{}
		require.NoError(t, json.Unmarshal(orders[0].Items, &snapshot))
		assert.Len(t, snapshot, 1)
		assert.Empty(t, f.cms.Items(user))
	})

	t.Run("nothing orderable", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.AddProduct(f.ctx, user, f.trout, dec("1"))
		require.NoError(t, err)
		f.cms.DeleteProduct(f.trout)

		_, err = f.svc.Checkout(f.ctx, user, "buyer@example.com")
		require.Error(t, err)
		assert.True(t, core.IsValidation(err))
		assert.Empty(t, f.cms.Orders())
		assert.Len(t, f.cms.Items(user), 1)
	})
}
