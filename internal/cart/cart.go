// Package cart implements the Cart/Order Driver (C3): a stateless protocol
// wrapper over OVH's order endpoints, one call sequence per order attempt
// (spec.md §4.3).
package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/ovhclient"
	"github.com/ovhfleet/acquire/pkg/account"
)

// sequenceTimeout bounds the whole 7-step call sequence (spec.md §4.3: 90s).
const sequenceTimeout = 90 * time.Second

// ovhDoer is the slice of *ovhclient.Pool the driver needs.
type ovhDoer interface {
	Do(ctx context.Context, accountID uuid.UUID, method, path string, body, out any) error
}

// Driver places orders by driving the cart protocol against an OVH client pool.
type Driver struct {
	pool ovhDoer
}

// NewDriver creates a Driver backed by pool.
func NewDriver(pool ovhDoer) *Driver {
	return &Driver{pool: pool}
}

// Price is the breakdown extracted from the checkout preview (spec.md §3).
type Price struct {
	WithTax      float64 `json:"withTax"`
	WithoutTax   float64 `json:"withoutTax"`
	Tax          float64 `json:"tax"`
	CurrencyCode string  `json:"currencyCode"`
}

// OrderResult is the outcome of a successful PlaceOrder call.
type OrderResult struct {
	OrderID string
	URL     string
	Price   Price
}

// ErrPaymentFailed signals that the order was created but autoPay did not
// succeed. Per spec.md §4.5 step/edge case, this is still a successful
// acquisition — the slot is secured — so callers must still count the unit
// as purchased and only record this error on the history entry.
var ErrPaymentFailed = errors.New("cart: order created but payment failed")

type cartResponse struct {
	CartID string `json:"cartId"`
}

type itemResponse struct {
	ItemID int `json:"itemId"`
}

type checkoutPreview struct {
	Prices struct {
		WithTax    struct {
			Value        float64 `json:"value"`
			CurrencyCode string  `json:"currencyCode"`
		} `json:"withTax"`
		WithoutTax struct {
			Value float64 `json:"value"`
		} `json:"withoutTax"`
		Tax struct {
			Value float64 `json:"value"`
		} `json:"tax"`
	} `json:"prices"`
}

type checkoutResponse struct {
	OrderID int    `json:"orderId"`
	URL     string `json:"url"`
}

// requiredConfigEntry is one row of an item's required-configuration list
// (GET .../requiredConfiguration): the configuration label (e.g.
// "dedicated_datacenter", "region", "memory", "storage") and the option
// codes it accepts as a value.
type requiredConfigEntry struct {
	Label         string   `json:"label"`
	AllowedValues []string `json:"allowedValues"`
}

// matchConfigLabel finds the label whose allowed values contain opt.
func matchConfigLabel(entries []requiredConfigEntry, opt string) (string, bool) {
	for _, e := range entries {
		for _, v := range e.AllowedValues {
			if v == opt {
				return e.Label, true
			}
		}
	}
	return "", false
}

// itemEndpoint returns the cart sub-resource for adding this plan family.
// Dedicated server plans use /eco or /baremetalServers depending on range:
// plan codes starting with "eco" go to /eco, every other plan code goes to
// /baremetalServers.
func itemEndpoint(cartID, planCode string) string {
	if strings.HasPrefix(planCode, "eco") {
		return fmt.Sprintf("/order/cart/%s/eco", cartID)
	}
	return fmt.Sprintf("/order/cart/%s/baremetalServers", cartID)
}

// PlaceOrder runs the full cart protocol for one unit of planCode in
// datacenter, with the given non-default options, for acct. autoPay selects
// whether checkout attempts automatic payment.
func (d *Driver) PlaceOrder(ctx context.Context, acct account.Account, planCode, datacenter string, options []string, autoPay bool) (OrderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, sequenceTimeout)
	defer cancel()

	// 1. Create cart.
	var cartResp cartResponse
	if err := d.pool.Do(ctx, acct.ID, http.MethodPost, "/order/cart", map[string]string{
		"ovhSubsidiary": acct.Zone,
		"description":   "acquire-engine",
	}, &cartResp); err != nil {
		return OrderResult{}, fmt.Errorf("cart: create cart: %w", err)
	}
	cartID := cartResp.CartID

	// 2. Assign cart to the authenticated user.
	if err := d.pool.Do(ctx, acct.ID, http.MethodPost, fmt.Sprintf("/order/cart/%s/assign", cartID), nil, nil); err != nil {
		return OrderResult{}, fmt.Errorf("cart: assign cart: %w", err)
	}

	// 3. Add item.
	var itemResp itemResponse
	addItemBody := map[string]any{
		"planCode":     planCode,
		"pricingMode":  "default",
		"quantity":     1,
		"duration":     "P1M",
		"configuration": []map[string]string{
			{"label": "dedicated_datacenter", "value": datacenter},
		},
	}
	if err := d.pool.Do(ctx, acct.ID, http.MethodPost, itemEndpoint(cartID, planCode), addItemBody, &itemResp); err != nil {
		// OVH signals a lost stock race on add-to-cart with 409 Conflict.
		var conflict *ovhclient.ConflictError
		if errors.As(err, &conflict) {
			return OrderResult{}, &ovhclient.NotAvailable{PlanCode: planCode, Datacenter: datacenter}
		}
		return OrderResult{}, fmt.Errorf("cart: add item: %w", err)
	}

	// 4. Configure non-default options. The required-configuration list is
	// fetched once per order attempt and tells us which label (e.g.
	// "memory", "storage", "region") each option code belongs to, rather
	// than guessing the label from the option string itself (spec.md §4.3
	// step 4).
	if len(options) > 0 {
		var requiredConfig []requiredConfigEntry
		reqPath := fmt.Sprintf("/order/cart/%s/item/%d/requiredConfiguration", cartID, itemResp.ItemID)
		if err := d.pool.Do(ctx, acct.ID, http.MethodGet, reqPath, nil, &requiredConfig); err != nil {
			return OrderResult{}, fmt.Errorf("cart: fetch required configuration: %w", err)
		}

		path := fmt.Sprintf("/order/cart/%s/item/%d/configuration", cartID, itemResp.ItemID)
		for _, opt := range options {
			label, ok := matchConfigLabel(requiredConfig, opt)
			if !ok {
				return OrderResult{}, fmt.Errorf("cart: no required-configuration label matches option %q", opt)
			}
			cfgBody := map[string]string{"label": label, "value": opt}
			if err := d.pool.Do(ctx, acct.ID, http.MethodPost, path, cfgBody, nil); err != nil {
				return OrderResult{}, fmt.Errorf("cart: configure option %q: %w", opt, err)
			}
		}
	}

	// 5. Validate cart / fetch price preview.
	var preview checkoutPreview
	if err := d.pool.Do(ctx, acct.ID, http.MethodGet, fmt.Sprintf("/order/cart/%s/checkout", cartID), nil, &preview); err != nil {
		return OrderResult{}, fmt.Errorf("cart: validate cart: %w", err)
	}

	// 6. Checkout. A failure here means no order was created at all — a
	// genuine order-level error, not a payment failure.
	var checkout checkoutResponse
	checkoutBody := map[string]bool{
		"autoPayWithPreferredPaymentMethod": autoPay,
		"waiveRetractationPeriod":           true,
	}
	if err := d.pool.Do(ctx, acct.ID, http.MethodPost, fmt.Sprintf("/order/cart/%s/checkout", cartID), checkoutBody, &checkout); err != nil {
		return OrderResult{}, fmt.Errorf("cart: checkout: %w", err)
	}

	result := OrderResult{
		OrderID: fmt.Sprintf("%d", checkout.OrderID),
		URL:     checkout.URL,
		Price: Price{
			WithTax:      preview.Prices.WithTax.Value,
			WithoutTax:   preview.Prices.WithoutTax.Value,
			Tax:          preview.Prices.Tax.Value,
			CurrencyCode: preview.Prices.WithTax.CurrencyCode,
		},
	}

	// 7. The order exists at this point regardless of payment outcome. When
	// autoPay is requested, confirm the order's payment actually went
	// through; a decline is reported as ErrPaymentFailed but the unit is
	// still considered acquired (spec.md §4.5 edge case) — the caller must
	// still count it as purchased and only record the error message.
	if autoPay {
		var status struct {
			Status string `json:"status"`
		}
		path := fmt.Sprintf("/me/order/%d/status", checkout.OrderID)
		if err := d.pool.Do(ctx, acct.ID, http.MethodGet, path, nil, &status); err != nil {
			return result, fmt.Errorf("%w: checking order status: %v", ErrPaymentFailed, err)
		}
		if status.Status == "cancelled" || status.Status == "error" || status.Status == "unpaid" {
			return result, fmt.Errorf("%w: order status %q", ErrPaymentFailed, status.Status)
		}
	}

	return result, nil
}
