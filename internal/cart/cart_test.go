package cart

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/ovhclient"
	"github.com/ovhfleet/acquire/pkg/account"
)

// scriptedDoer plays back one response per call in sequence, recording the
// method+path it was called with so tests can assert call ordering.
type scriptedDoer struct {
	responses []func(out any) error
	calls     []string
}

func (s *scriptedDoer) Do(_ context.Context, _ uuid.UUID, method, path string, _, out any) error {
	s.calls = append(s.calls, method+" "+path)
	idx := len(s.calls) - 1
	if idx >= len(s.responses) {
		return nil
	}
	return s.responses[idx](out)
}

func jsonInto(v any) func(any) error {
	return func(out any) error {
		switch dst := out.(type) {
		case *cartResponse:
			*dst = v.(cartResponse)
		case *itemResponse:
			*dst = v.(itemResponse)
		case *checkoutPreview:
			*dst = v.(checkoutPreview)
		case *checkoutResponse:
			*dst = v.(checkoutResponse)
		case *[]requiredConfigEntry:
			*dst = v.([]requiredConfigEntry)
		}
		return nil
	}
}

func testAcct() account.Account {
	return account.Account{ID: uuid.New(), Zone: "FR", EndpointRegion: account.RegionEU}
}

func TestPlaceOrder_HappyPathCallSequence(t *testing.T) {
	doer := &scriptedDoer{responses: []func(any) error{
		jsonInto(cartResponse{CartID: "cart_1"}),             // create cart
		func(any) error { return nil },                       // assign
		jsonInto(itemResponse{ItemID: 42}),                    // add item
		jsonInto(checkoutPreview{}),                           // validate
		jsonInto(checkoutResponse{OrderID: 99, URL: "u"}),     // checkout
	}}

	d := NewDriver(doer)
	result, err := d.PlaceOrder(context.Background(), testAcct(), "24sk202", "gra", nil, false)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if result.OrderID != "99" {
		t.Errorf("OrderID = %q, want %q", result.OrderID, "99")
	}

	wantPrefixes := []string{
		"POST /order/cart",
		"POST /order/cart/cart_1/assign",
		"POST /order/cart/cart_1/baremetalServers",
		"GET /order/cart/cart_1/checkout",
		"POST /order/cart/cart_1/checkout",
	}
	if len(doer.calls) != len(wantPrefixes) {
		t.Fatalf("got %d calls, want %d: %v", len(doer.calls), len(wantPrefixes), doer.calls)
	}
	for i, want := range wantPrefixes {
		if doer.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, doer.calls[i], want)
		}
	}
}

func TestPlaceOrder_ConfiguresEachOption(t *testing.T) {
	options := []string{"ram-64g-noecc-2133", "softraid-2x480-ssd-ent"}
	doer := &scriptedDoer{responses: []func(any) error{
		jsonInto(cartResponse{CartID: "cart_1"}),
		func(any) error { return nil },
		jsonInto(itemResponse{ItemID: 42}),
		jsonInto([]requiredConfigEntry{ // required configuration, fetched once
			{Label: "memory", AllowedValues: []string{options[0]}},
			{Label: "storage", AllowedValues: []string{options[1]}},
		}),
		func(any) error { return nil }, // configure option 1
		func(any) error { return nil }, // configure option 2
		jsonInto(checkoutPreview{}),
		jsonInto(checkoutResponse{OrderID: 1}),
	}}

	d := NewDriver(doer)
	_, err := d.PlaceOrder(context.Background(), testAcct(), "24sk202", "gra", options, false)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if doer.calls[3] != "GET /order/cart/cart_1/item/42/requiredConfiguration" {
		t.Errorf("call[3] = %q, want requiredConfiguration fetch", doer.calls[3])
	}
	if doer.calls[4] != "POST /order/cart/cart_1/item/42/configuration" {
		t.Errorf("call[4] = %q, want configuration call", doer.calls[4])
	}
	if doer.calls[5] != "POST /order/cart/cart_1/item/42/configuration" {
		t.Errorf("call[5] = %q, want configuration call", doer.calls[5])
	}
}

func TestPlaceOrder_UnmatchedOptionFails(t *testing.T) {
	doer := &scriptedDoer{responses: []func(any) error{
		jsonInto(cartResponse{CartID: "cart_1"}),
		func(any) error { return nil },
		jsonInto(itemResponse{ItemID: 42}),
		jsonInto([]requiredConfigEntry{
			{Label: "memory", AllowedValues: []string{"ram-64g-noecc-2133"}},
		}),
	}}

	d := NewDriver(doer)
	_, err := d.PlaceOrder(context.Background(), testAcct(), "24sk202", "gra", []string{"unknown-option"}, false)
	if err == nil {
		t.Fatal("PlaceOrder() error = nil, want error for unmatched option")
	}
}

func TestPlaceOrder_AddItemRejectionMapsToNotAvailable(t *testing.T) {
	doer := &scriptedDoer{responses: []func(any) error{
		jsonInto(cartResponse{CartID: "cart_1"}),
		func(any) error { return nil },
		func(any) error {
			return &ovhclient.ConflictError{APIError: &ovhclient.APIError{Method: http.MethodPost, Path: "x", Status: 409, Message: "no stock"}}
		},
	}}

	d := NewDriver(doer)
	_, err := d.PlaceOrder(context.Background(), testAcct(), "24sk202", "gra", nil, false)

	var notAvailable *ovhclient.NotAvailable
	if !errors.As(err, &notAvailable) {
		t.Fatalf("PlaceOrder() error = %v (%T), want *ovhclient.NotAvailable", err, err)
	}
}

func TestPlaceOrder_AutoPayFailureStillReturnsOrder(t *testing.T) {
	doer := &scriptedDoer{responses: []func(any) error{
		jsonInto(cartResponse{CartID: "cart_1"}),
		func(any) error { return nil },
		jsonInto(itemResponse{ItemID: 1}),
		jsonInto(checkoutPreview{}),
		jsonInto(checkoutResponse{OrderID: 5, URL: "u"}),
		func(out any) error {
			dst := out.(*struct {
				Status string `json:"status"`
			})
			dst.Status = "unpaid"
			return nil
		},
	}}

	d := NewDriver(doer)
	result, err := d.PlaceOrder(context.Background(), testAcct(), "24sk202", "gra", nil, true)
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("PlaceOrder() error = %v, want ErrPaymentFailed", err)
	}
	if result.OrderID != "5" {
		t.Errorf("OrderID = %q, want %q (order should still be returned on payment failure)", result.OrderID, "5")
	}
}

func TestPlaceOrder_CheckoutFailurePropagates(t *testing.T) {
	doer := &scriptedDoer{responses: []func(any) error{
		jsonInto(cartResponse{CartID: "cart_1"}),
		func(any) error { return nil },
		jsonInto(itemResponse{ItemID: 1}),
		jsonInto(checkoutPreview{}),
		func(any) error {
			return &ovhclient.ServerError{APIError: &ovhclient.APIError{Status: 503, Message: "down"}}
		},
	}}

	d := NewDriver(doer)
	_, err := d.PlaceOrder(context.Background(), testAcct(), "24sk202", "gra", nil, false)
	if err == nil {
		t.Fatal("PlaceOrder() error = nil, want error")
	}
	if errors.Is(err, ErrPaymentFailed) {
		t.Error("a checkout-call failure should not be classified as ErrPaymentFailed")
	}
}
