package enums

import "testing"

func TestParseStockLevel(t *testing.T) {
	cases := map[string]StockStatus{
		"inStock":     StockStatusInStock,
		"lowStock":    StockStatusInStock,
		"outOfStock":  StockStatusOutOfStock,
		"":            StockStatusUnknown,
		"discontinue": StockStatusUnknown,
	}
	for raw, want := range cases {
		if got := ParseStockLevel(raw); got != want {
			t.Fatalf("ParseStockLevel(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseProductStatus(t *testing.T) {
	status, err := ParseProductStatus("pendingReview")
	if err != nil || status != ProductStatusPendingReview {
		t.Fatalf("unexpected parse result %q %v", status, err)
	}
	if _, err := ParseProductStatus("deleted"); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestOutboxEventTypeCarriesPrice(t *testing.T) {
	if !EventProductPriceChanged.CarriesPrice() {
		t.Fatal("price change events carry a price snapshot")
	}
	if EventProductPendingReview.CarriesPrice() {
		t.Fatal("pending review events do not carry a price snapshot")
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event type error")
	}
}

func TestParseAdminRole(t *testing.T) {
	role, err := ParseAdminRole("operator")
	if err != nil || !role.CanWrite() {
		t.Fatalf("unexpected parse result %q %v", role, err)
	}
	if role, _ := ParseAdminRole("viewer"); role.CanWrite() {
		t.Fatal("viewers are read-only")
	}
	if _, err := ParseAdminRole("Admin"); err == nil {
		t.Fatal("role parsing is case sensitive")
	}
}
