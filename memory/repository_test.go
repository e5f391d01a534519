package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/rs/zerolog"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*Repository, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	repo := NewRepository(docstore.NewUpdater(store, 0, zerolog.Nop()), "", zerolog.Nop())

	tick := 0
	repo.now = func() time.Time {
		tick++
		return epoch.Add(time.Duration(tick) * time.Minute)
	}
	seq := 0
	repo.newID = func() string {
		seq++
		return fmt.Sprintf("mem-%02d", seq)
	}
	return repo, store
}

func mustAdd(t *testing.T, repo *Repository, in Input) Record {
	t.Helper()
	rec, dup, err := repo.Add(context.Background(), in)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if dup {
		t.Fatalf("unexpected duplicate for %q", in.Content)
	}
	return rec
}

func TestAddBuildsRecord(t *testing.T) {
	repo, _ := newTestRepository(t)

	rec := mustAdd(t, repo, Input{Type: TypeInsight, Content: "Patterns repeat across conversations. Worth noting.", Tags: []string{"insight"}})
	if rec.ID != "mem-01" || rec.SemanticHash == "" || rec.SessionID == "" {
		t.Fatalf("missing generated fields: %+v", rec)
	}
	if rec.Importance != 1.0 {
		t.Fatalf("expected 0.5+0.3+0.2 = 1.0, got %v", rec.Importance)
	}
	if rec.Summary != "Patterns repeat across conversations" {
		t.Fatalf("unexpected summary %q", rec.Summary)
	}
	if rec.Refs == nil || rec.Source != nil || rec.Archived {
		t.Fatalf("unexpected defaults: %+v", rec)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	repo, store := newTestRepository(t)
	ctx := context.Background()

	cases := []Input{
		{Type: TypeThought},
		{Content: "no type"},
		{Type: "journal", Content: "bad type"},
		{Type: TypeThought, Content: "x", Importance: ptr(1.5)},
	}
	for _, in := range cases {
		if _, _, err := repo.Add(ctx, in); !fault.IsInvalidInput(err) {
			t.Fatalf("Add(%+v): expected invalid_input, got %v", in, err)
		}
	}
	if len(store.Messages()) != 0 {
		t.Fatalf("invalid input must not touch the store, got %v", store.Messages())
	}
}

func TestExplicitImportanceIsKept(t *testing.T) {
	repo, _ := newTestRepository(t)
	rec := mustAdd(t, repo, Input{Type: TypeThought, Content: "quiet morning", Importance: ptr(0.2)})
	if rec.Importance != 0.2 {
		t.Fatalf("expected explicit importance, got %v", rec.Importance)
	}
	rec = mustAdd(t, repo, Input{Type: TypeThought, Content: "first words", Tags: []string{"permanent"}, Importance: ptr(0.2)})
	if rec.Importance != 1.0 {
		t.Fatalf("permanent must force 1.0, got %v", rec.Importance)
	}
}

func TestDuplicateBoostsImportance(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	orig := mustAdd(t, repo, Input{Type: TypeThought, Content: "Hello, World!"})

	dup, isDup, err := repo.Add(ctx, Input{Type: TypeObservation, Content: "world hello"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !isDup || dup.ID != orig.ID {
		t.Fatalf("expected duplicate of %s, got %+v dup=%v", orig.ID, dup, isDup)
	}
	if dup.Importance != 0.6 {
		t.Fatalf("expected boost to 0.6, got %v", dup.Importance)
	}

	doc, err := repo.read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Count != 1 || len(doc.Memories) != 1 {
		t.Fatalf("duplicate must not grow the document, count=%d len=%d", doc.Count, len(doc.Memories))
	}
}

func TestDuplicateBoostIsCapped(t *testing.T) {
	repo, _ := newTestRepository(t)
	mustAdd(t, repo, Input{Type: TypeThought, Content: "cap me", Importance: ptr(0.95)})
	rec, _, err := repo.Add(context.Background(), Input{Type: TypeThought, Content: "me cap"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.Importance != 1.0 {
		t.Fatalf("expected cap at 1.0, got %v", rec.Importance)
	}
}

func TestNewestFirst(t *testing.T) {
	repo, _ := newTestRepository(t)
	mustAdd(t, repo, Input{Type: TypeThought, Content: "first"})
	mustAdd(t, repo, Input{Type: TypeThought, Content: "second"})

	doc, _ := repo.read(context.Background())
	if doc.Memories[0].Content != "second" || doc.Count != 2 {
		t.Fatalf("expected newest first, got %+v", doc.Memories)
	}
}

func TestGet(t *testing.T) {
	repo, _ := newTestRepository(t)
	rec := mustAdd(t, repo, Input{Type: TypeThought, Content: "find me"})

	got, err := repo.Get(context.Background(), rec.ID)
	if err != nil || got.Content != "find me" {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if _, err := repo.Get(context.Background(), "nope"); !fault.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestUpdateAppliesPatch(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	rec := mustAdd(t, repo, Input{Type: TypeAction, Content: "ship the site", Refs: []string{"a"}})

	tags := []string{"urgent"}
	updated, err := repo.Update(ctx, rec.ID, Patch{Tags: &tags, Importance: ptr(0.1), Summary: ptr("ship it")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Tags changed, so importance comes from the scoring rule: 0.5+0.2+0.1+0.05.
	if updated.Importance != 0.85 {
		t.Fatalf("expected recomputed importance 0.85, got %v", updated.Importance)
	}
	if updated.Summary != "ship it" || updated.UpdatedAt == nil {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.ID != rec.ID || !updated.Timestamp.Equal(rec.Timestamp) {
		t.Fatal("id and timestamp must not change")
	}

	updated, err = repo.Update(ctx, rec.ID, Patch{Content: ptr("ship the website today")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SemanticHash != SemanticHash("ship the website today") {
		t.Fatal("content change must refresh the semantic hash")
	}

	archived := true
	updated, err = repo.Update(ctx, rec.ID, Patch{Archived: &archived})
	if err != nil || !updated.Archived || updated.ArchivedAt == nil {
		t.Fatalf("archive via update: %+v %v", updated, err)
	}
}

func TestUpdateKeepsPermanentImportance(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	rec := mustAdd(t, repo, Input{Type: TypeObservation, Content: "The first entry", Tags: []string{TagPermanent}})

	updated, err := repo.Update(ctx, rec.ID, Patch{Importance: ptr(0.2)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Importance != 1.0 {
		t.Fatalf("permanent record must keep importance 1.0, got %v", updated.Importance)
	}

	// Dropping the tag lets the patch score the record normally again.
	tags := []string{"genesis"}
	updated, err = repo.Update(ctx, rec.ID, Patch{Tags: &tags})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Importance == 1.0 {
		t.Fatal("importance should be rescored once the permanent tag is gone")
	}
}

func TestUpdateRefusesDuplicateContent(t *testing.T) {
	repo, store := newTestRepository(t)
	ctx := context.Background()
	first := mustAdd(t, repo, Input{Type: TypeThought, Content: "alpha beta"})
	second := mustAdd(t, repo, Input{Type: TypeThought, Content: "gamma delta"})

	writes := len(store.Messages())
	_, err := repo.Update(ctx, second.ID, Patch{Content: ptr("beta alpha")})
	if !fault.IsInvalidInput(err) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if !strings.Contains(fault.HintOf(err), first.ID) {
		t.Fatalf("hint should name the existing memory, got %q", fault.HintOf(err))
	}
	if len(store.Messages()) != writes {
		t.Fatal("a refused update must not write")
	}

	// Rewording a record without changing its hash is fine.
	if _, err := repo.Update(ctx, first.ID, Patch{Content: ptr("Beta, alpha!")}); err != nil {
		t.Fatalf("same-hash update of the record itself: %v", err)
	}
	doc, err := repo.read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	hashes := map[string]bool{}
	for _, m := range doc.Memories {
		if hashes[m.SemanticHash] {
			t.Fatalf("semantic hash %s stored twice", m.SemanticHash)
		}
		hashes[m.SemanticHash] = true
	}
}

func TestUpdateMissing(t *testing.T) {
	repo, store := newTestRepository(t)
	if _, err := repo.Update(context.Background(), "ghost", Patch{Summary: ptr("x")}); !fault.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if len(store.Messages()) != 0 {
		t.Fatal("a failed update must not write")
	}
}

func TestDeletePermanentIsForbidden(t *testing.T) {
	repo, store := newTestRepository(t)
	ctx := context.Background()
	rec := mustAdd(t, repo, Input{Type: TypeThought, Content: "genesis", Tags: []string{"permanent"}})
	before := len(store.Messages())

	for _, archive := range []bool{false, true} {
		if err := repo.Delete(ctx, rec.ID, archive); !fault.IsForbidden(err) {
			t.Fatalf("Delete(archive=%v): expected forbidden, got %v", archive, err)
		}
	}
	if len(store.Messages()) != before {
		t.Fatal("store must be unchanged after a refused delete")
	}
	got, err := repo.Get(ctx, rec.ID)
	if err != nil || got.Archived {
		t.Fatalf("permanent record altered: %+v %v", got, err)
	}
}

func TestDeleteArchiveAndHard(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	a := mustAdd(t, repo, Input{Type: TypeThought, Content: "keep but hide"})
	b := mustAdd(t, repo, Input{Type: TypeThought, Content: "forget this"})

	if err := repo.Delete(ctx, a.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, _ := repo.Get(ctx, a.ID)
	if !got.Archived || got.ArchivedAt == nil {
		t.Fatalf("expected archived record, got %+v", got)
	}

	if err := repo.Delete(ctx, b.ID, false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	doc, _ := repo.read(ctx)
	if doc.Count != 1 || len(doc.Memories) != 1 {
		t.Fatalf("expected one record left, got count=%d", doc.Count)
	}
	if err := repo.Delete(ctx, b.ID, false); !fault.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestQueryPagination(t *testing.T) {
	repo, _ := newTestRepository(t)
	for i := 0; i < 12; i++ {
		mustAdd(t, repo, Input{Type: TypeThought, Content: fmt.Sprintf("memory number %d", i)})
	}

	page, err := repo.Query(context.Background(), Filter{Limit: 5, Offset: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Memories) != 2 || page.Total != 12 || page.Limit != 5 || page.Offset != 10 {
		t.Fatalf("unexpected page: len=%d total=%d limit=%d offset=%d", len(page.Memories), page.Total, page.Limit, page.Offset)
	}

	page, _ = repo.Query(context.Background(), Filter{Offset: 40})
	if len(page.Memories) != 0 || page.Limit != DefaultLimit {
		t.Fatalf("offset past the end should be empty with default limit, got %+v", page)
	}
}

func TestQueryFilters(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, Input{Type: TypeThought, Content: "Walking by the river", Tags: []string{"nature"}})
	mustAdd(t, repo, Input{Type: TypeInsight, Content: "Silence is data", Tags: []string{"insight"}})
	mustAdd(t, repo, Input{Type: TypeAction, Content: "Deploy the river map", Tags: []string{"work"}})

	page, _ := repo.Query(ctx, Filter{Search: "RIVER"})
	if page.Total != 2 {
		t.Fatalf("search should be case-insensitive, got %d", page.Total)
	}
	page, _ = repo.Query(ctx, Filter{Search: "natu"})
	if page.Total != 1 {
		t.Fatalf("search should include tags, got %d", page.Total)
	}
	page, _ = repo.Query(ctx, Filter{Tag: "work", Type: TypeAction})
	if page.Total != 1 {
		t.Fatalf("tag+type filter, got %d", page.Total)
	}
	page, _ = repo.Query(ctx, Filter{MinImportance: ptr(0.6), MaxImportance: ptr(1.0)})
	if page.Total != 2 {
		t.Fatalf("importance range, got %d", page.Total)
	}

	since := epoch.Add(2 * time.Minute)
	until := epoch.Add(2 * time.Minute)
	page, _ = repo.Query(ctx, Filter{Since: &since, Until: &until})
	if page.Total != 1 || page.Memories[0].Content != "Silence is data" {
		t.Fatalf("inclusive timestamp range, got %+v", page.Memories)
	}

	page, _ = repo.Query(ctx, Filter{OrderBy: OrderImportance})
	if page.Memories[0].Content != "Silence is data" {
		t.Fatalf("expected highest importance first, got %q", page.Memories[0].Content)
	}
	page, _ = repo.Query(ctx, Filter{})
	if page.Memories[0].Content != "Deploy the river map" {
		t.Fatalf("expected newest first by default, got %q", page.Memories[0].Content)
	}
}

func TestRelevantSkipsArchived(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	top := mustAdd(t, repo, Input{Type: TypeInsight, Content: "top", Tags: []string{"insight"}})
	mustAdd(t, repo, Input{Type: TypeThought, Content: "middle"})
	mustAdd(t, repo, Input{Type: TypeThought, Content: "low", Importance: ptr(0.1)})
	if err := repo.Delete(ctx, top.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}

	got, err := repo.Relevant(ctx, 1)
	if err != nil {
		t.Fatalf("Relevant: %v", err)
	}
	if len(got) != 1 || got[0].Content != "middle" {
		t.Fatalf("unexpected relevant records %+v", got)
	}
}

func TestDocumentRoundTripIsByteIdentical(t *testing.T) {
	repo, store := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, Input{Type: TypeThought, Content: "one", Tags: []string{"a", "a"}})
	mustAdd(t, repo, Input{Type: TypeResearch, Content: "two", Refs: []string{"notes/x.md"}, Source: ptr("web")})

	blob, err := store.Read(ctx, DefaultPath)
	if err != nil || blob == nil {
		t.Fatalf("Read: %v", err)
	}
	doc, err := repo.read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	again, err := docstore.Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(again) != string(blob.Data) {
		t.Fatalf("round trip changed the document:\n got %s\nwant %s", again, blob.Data)
	}
}

func TestHistory(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	rec := mustAdd(t, repo, Input{Type: TypeInsight, Content: "Rivers remember the rain"})
	if err := repo.Delete(ctx, rec.ID, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	history, err := repo.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []string{"Add memory: insight", "Archive memory: " + rec.ID}
	if len(history) != len(want) || history[0] != want[0] || history[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, history)
	}
}

// readWriteOnly hides the History method of the wrapped store.
type readWriteOnly struct{ docstore.Store }

func TestHistoryUnsupported(t *testing.T) {
	store := readWriteOnly{docstore.NewMemoryStore()}
	repo := NewRepository(docstore.NewUpdater(store, 0, zerolog.Nop()), "", zerolog.Nop())

	_, err := repo.History(context.Background())
	if !fault.IsStoreUnavailable(err) || fault.StatusOf(err) != 501 {
		t.Fatalf("expected store_unavailable with 501, got %v (status %d)", err, fault.StatusOf(err))
	}
}

func ptr[T any](v T) *T { return &v }
