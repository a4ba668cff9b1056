package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/payloads"
)

func catalogRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{CatalogTopic: "catalog-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func sealed(t *testing.T, version int, data string) []byte {
	t.Helper()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(data),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func productRow(et enums.OutboxEventType, payload []byte) models.OutboxEvent {
	return models.OutboxEvent{EventType: et, AggregateType: enums.AggregateProduct, AggregateID: "701285", Payload: payload}
}

func TestResolveDecodesPriceEvent(t *testing.T) {
	reg := catalogRegistry(t)

	resolved, err := reg.Resolve(productRow(enums.EventProductNewDiscount,
		sealed(t, 1, `{"product_id":"701285","price_local":12000,"original_price_local":15000,"discount_percent":20}`)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "catalog-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	p, ok := resolved.Payload.(*payloads.ProductPriceEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if p.PriceLocal != 12000 || p.OriginalPriceLocal == nil || *p.OriginalPriceLocal != 15000 || p.DiscountPercent != 20 {
		t.Fatalf("payload mismatch %+v", p)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatal("envelope lost its event id")
	}
}

func TestResolveDecodesStatusEvent(t *testing.T) {
	reg := catalogRegistry(t)

	resolved, err := reg.Resolve(productRow(enums.EventProductInactive,
		sealed(t, 1, `{"product_id":"655123","status":"inactive","reason":"not_found_on_source"}`)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	p, ok := resolved.Payload.(*payloads.ProductStatusEvent)
	if !ok || p.Reason != "not_found_on_source" {
		t.Fatalf("unexpected payload %+v", resolved.Payload)
	}
}

func TestResolveTreatsUnversionedRowsAsV1(t *testing.T) {
	reg := catalogRegistry(t)

	resolved, err := reg.Resolve(productRow(enums.EventProductCreated, sealed(t, 0, `{"product_id":"1","price_local":990}`)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Envelope.Version != outbox.EnvelopeVersion {
		t.Fatalf("unexpected version %d", resolved.Envelope.Version)
	}
}

func TestResolveRejectsPermanently(t *testing.T) {
	reg := catalogRegistry(t)
	good := sealed(t, 1, `{"product_id":"1"}`)

	cases := map[string]models.OutboxEvent{
		"unknown type":     productRow("order_created", good),
		"aggregate":        {EventType: enums.EventProductPriceChanged, AggregateType: "store", AggregateID: "1", Payload: good},
		"blank aggregate":  {EventType: enums.EventProductPriceChanged, AggregateType: enums.AggregateProduct, AggregateID: " ", Payload: good},
		"null data":        productRow(enums.EventProductCreated, sealed(t, 1, `null`)),
		"future version":   productRow(enums.EventProductCreated, sealed(t, 7, `{"product_id":"1"}`)),
		"broken envelope":  productRow(enums.EventProductCreated, []byte(`{"version":`)),
		"mistyped payload": productRow(enums.EventProductCreated, sealed(t, 1, `{"price_local":"free"}`)),
	}
	for name, row := range cases {
		_, err := reg.Resolve(row)
		var permanentErr NonRetryableError
		if !errors.As(err, &permanentErr) {
			t.Fatalf("%s: expected a non-retryable error, got %v", name, err)
		}
	}
}

func TestRegistryTopics(t *testing.T) {
	topics := catalogRegistry(t).Topics()
	if len(topics) != 1 || topics[0] != "catalog-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{CatalogTopic: "  "}); err == nil {
		t.Fatal("expected error for missing topic")
	}
}
