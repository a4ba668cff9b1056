package catalogsync

import (
	"context"
	"reflect"
	"testing"
)

func TestTagBindingTags(t *testing.T) {
	b := TagBinding{Tag: "Featured", Companions: []string{"Trend", "Featured"}}
	if got := b.Tags(); !reflect.DeepEqual(got, []string{"Featured", "Trend"}) {
		t.Fatalf("unexpected tags %v", got)
	}
}

func TestConvergeMovesCompanionsWithPrimary(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		h.seed(t, item{Code: id, Name: id, Price: 1000}, nil)
	}
	binding := TagBinding{Tag: "Featured", Companions: []string{"Trend"}}
	ctx := context.Background()

	stats, err := h.tags.Converge(ctx, binding, []string{"p1", "p2", "p3", "missing"})
	if err != nil {
		t.Fatalf("converge: %v", err)
	}
	if stats.Added != 6 {
		t.Fatalf("expected 6 tag rows added, got %d", stats.Added)
	}

	stats, err = h.tags.Converge(ctx, binding, []string{"p3", "p4", "p5"})
	if err != nil {
		t.Fatalf("second converge: %v", err)
	}
	for _, tag := range []string{"Featured", "Trend"} {
		if got := h.tagHolders(t, tag); !reflect.DeepEqual(got, []string{"p3", "p4", "p5"}) {
			t.Fatalf("expected %s on [p3 p4 p5], got %v", tag, got)
		}
	}
	if stats.Added != 4 || stats.Removed != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestGrantNeverRemoves(t *testing.T) {
	h := newHarness(t)
	h.seed(t, item{Code: "held", Name: "held", Price: 1000}, nil, "New")
	h.seed(t, item{Code: "fresh", Name: "fresh", Price: 1000}, nil)

	if _, err := h.tags.Grant(context.Background(), TagBinding{Tag: "New"}, []string{"fresh"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if got := h.tagHolders(t, "New"); !reflect.DeepEqual(got, []string{"fresh", "held"}) {
		t.Fatalf("unexpected holders %v", got)
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]string{"a", "b", "c", "d", "e"}, 2)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if chunk(nil, 2) != nil {
		t.Fatal("expected nil for empty input")
	}
}
