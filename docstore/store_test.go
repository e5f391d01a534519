package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/rs/zerolog"
)

type counterDoc struct {
	Count int      `json:"count"`
	Notes []string `json:"notes"`
}

func newCounter() counterDoc {
	return counterDoc{Notes: []string{}}
}

func TestReadJSONMissingReturnsDefault(t *testing.T) {
	store := NewMemoryStore()
	doc, version, err := ReadJSON(context.Background(), store, "state/counter.json", newCounter)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if version != "" {
		t.Fatalf("expected empty version for missing document, got %q", version)
	}
	if doc.Count != 0 || doc.Notes == nil {
		t.Fatalf("expected default document, got %+v", doc)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	in := counterDoc{Count: 3, Notes: []string{"b", "a", "<tag>"}}
	version, err := WriteJSON(ctx, store, "c.json", in, "create", "")
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	blob, err := store.Read(ctx, "c.json")
	if err != nil || blob == nil {
		t.Fatalf("Read: blob=%v err=%v", blob, err)
	}
	want, _ := Encode(in)
	if string(blob.Data) != string(want) {
		t.Fatalf("stored bytes differ:\n got %s\nwant %s", blob.Data, want)
	}
	if blob.Version != version {
		t.Fatalf("version mismatch: %q vs %q", blob.Version, version)
	}

	out, _, err := ReadJSON(ctx, store, "c.json", newCounter)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out.Count != 3 || len(out.Notes) != 3 || out.Notes[2] != "<tag>" {
		t.Fatalf("round trip lost data: %+v", out)
	}
}

func TestStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v1, err := store.Write(ctx, "d.json", []byte(`{}`), "one", "")
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := store.Write(ctx, "d.json", []byte(`{"a":1}`), "two", v1); err != nil {
		t.Fatalf("second write: %v", err)
	}
	_, err = store.Write(ctx, "d.json", []byte(`{"a":2}`), "three", v1)
	if !fault.IsStoreConflict(err) {
		t.Fatalf("expected store conflict, got %v", err)
	}
}

func TestReadJSONRejectsCorruptDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Write(ctx, "bad.json", []byte("{not json"), "corrupt", ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := ReadJSON(ctx, store, "bad.json", newCounter)
	if !fault.IsStoreUnavailable(err) || fault.HintOf(err) == "" {
		t.Fatalf("expected store_unavailable with hint, got %v", err)
	}
}

func TestUpdateWithoutRetriesSurfacesConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := NewUpdater(store, 0, zerolog.Nop())
	seed(t, store)

	_, err := Update(ctx, u, "n.json", "bump", newCounter, func(doc *counterDoc) error {
		// A concurrent writer sneaks in between our read and our write.
		if _, err := WriteJSON(ctx, store, "n.json", counterDoc{Count: 100}, "other", ""); err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
		doc.Count++
		return nil
	})
	if !fault.IsStoreConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateRetriesConflictWithReread(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := NewUpdater(store, 2, zerolog.Nop())
	seed(t, store)

	calls := 0
	doc, err := Update(ctx, u, "n.json", "bump", newCounter, func(doc *counterDoc) error {
		calls++
		if calls == 1 {
			if _, err := WriteJSON(ctx, store, "n.json", counterDoc{Count: 10, Notes: []string{}}, "other", ""); err != nil {
				t.Fatalf("concurrent write: %v", err)
			}
		}
		doc.Count++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if doc.Count != 11 {
		t.Fatalf("expected the retry to build on the concurrent write, got %d", doc.Count)
	}
}

func seed(t *testing.T, store *MemoryStore) {
	t.Helper()
	if _, err := WriteJSON(context.Background(), store, "n.json", newCounter(), "seed", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestUpdateNoChangeSkipsWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := NewUpdater(store, 0, zerolog.Nop())

	if _, err := Update(ctx, u, "n.json", "noop", newCounter, func(*counterDoc) error {
		return ErrNoChange
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(store.Messages()) != 0 {
		t.Fatalf("expected no writes, got %v", store.Messages())
	}
}

func TestUpdatePropagatesFunctionError(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpdater(store, 3, zerolog.Nop())
	sentinel := errors.New("boom")

	_, err := Update(context.Background(), u, "n.json", "x", newCounter, func(*counterDoc) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}
