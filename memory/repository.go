// Package memory manages Mira's memories document: create with duplicate
// detection, partial update, archive/delete, and filtered queries.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultPath is where the memories document lives in the backing store.
const DefaultPath = "memory-storage/memories.json"

// Repository owns the memories document. Every mutation is one
// read-modify-write cycle of the whole document through the Updater.
type Repository struct {
	updater *docstore.Updater
	path    string
	logger  zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewRepository creates a Repository storing its document at path.
func NewRepository(updater *docstore.Updater, path string, logger zerolog.Logger) *Repository {
	if path == "" {
		path = DefaultPath
	}
	return &Repository{
		updater: updater,
		path:    path,
		logger:  logger.With().Str("component", "memory_repository").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Add stores a new record built from in. When a record with the same semantic
// hash already exists its importance is boosted instead, and duplicate is true.
func (r *Repository) Add(ctx context.Context, in Input) (Record, bool, error) {
	if err := validateInput(in); err != nil {
		return Record{}, false, err
	}

	hash := SemanticHash(in.Content)
	var (
		result    Record
		duplicate bool
	)

	message := "Add memory: " + lo.CoalesceOrEmpty(in.Summary, string(in.Type))
	_, err := docstore.Update(ctx, r.updater, r.path, message, newDocument, func(doc *Document) error {
		now := r.now()
		duplicate = false

		// Archived records still count as duplicates.
		if _, idx, ok := lo.FindIndexOf(doc.Memories, func(m Record) bool { return m.SemanticHash == hash }); ok {
			existing := &doc.Memories[idx]
			existing.Importance = boost(existing.Importance)
			existing.UpdatedAt = &now
			doc.LastUpdated = now
			result = *existing
			duplicate = true
			return nil
		}

		result = r.build(in, hash, now)
		doc.Memories = append([]Record{result}, doc.Memories...)
		doc.Count = len(doc.Memories)
		doc.LastUpdated = now
		return nil
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("add memory: %w", err)
	}

	if duplicate {
		r.logger.Info().Str("id", result.ID).Float64("importance", result.Importance).Msg("Similar memory exists, boosted importance")
	} else {
		r.logger.Info().Str("id", result.ID).Str("type", string(result.Type)).Msg("Memory created")
	}
	return result, duplicate, nil
}

func (r *Repository) build(in Input, hash string, now time.Time) Record {
	tags := lo.Ternary(in.Tags == nil, []string{}, in.Tags)
	refs := lo.Ternary(in.Refs == nil, []string{}, in.Refs)

	importance := Importance(tags, in.Type, refs)
	if in.Importance != nil && !lo.Contains(tags, TagPermanent) {
		importance = *in.Importance
	}

	summary := in.Summary
	if summary == "" {
		summary = Summarize(in.Content)
	}

	return Record{
		ID:               r.newID(),
		Timestamp:        now,
		SessionID:        "sess_" + ulid.Make().String(),
		Type:             in.Type,
		Content:          in.Content,
		Summary:          summary,
		Tags:             tags,
		Importance:       importance,
		EmotionalValence: lo.FromPtr(in.EmotionalValence),
		SemanticHash:     hash,
		Refs:             refs,
		Source:           in.Source,
	}
}

// Get returns the record with the given id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	doc, err := r.read(ctx)
	if err != nil {
		return Record{}, err
	}
	idx := doc.index(id)
	if idx < 0 {
		return Record{}, fault.NotFound("memory %s not found", id)
	}
	return doc.Memories[idx], nil
}

// Update applies patch to the record with the given id. Changing tags
// recomputes importance, overriding any importance in the same patch, and a
// record tagged permanent always keeps importance 1.0. New content that
// matches another record is refused so no two records share a semantic hash.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (Record, error) {
	if err := validatePatch(patch); err != nil {
		return Record{}, err
	}

	var result Record
	_, err := docstore.Update(ctx, r.updater, r.path, "Update memory: "+id, newDocument, func(doc *Document) error {
		idx := doc.index(id)
		if idx < 0 {
			return fault.NotFound("memory %s not found", id)
		}

		now := r.now()
		rec := doc.Memories[idx]
		applyPatch(&rec, patch, now)
		if other, ok := lo.Find(doc.Memories, func(m Record) bool {
			return m.ID != id && m.SemanticHash == rec.SemanticHash
		}); ok {
			return fault.InvalidInput("content duplicates memory %s", other.ID).
				WithHint("Update or archive memory " + other.ID + " instead")
		}
		rec.UpdatedAt = &now

		doc.Memories[idx] = rec
		doc.LastUpdated = now
		result = rec
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("update memory %s: %w", id, err)
	}

	r.logger.Info().Str("id", id).Msg("Memory updated")
	return result, nil
}

func applyPatch(rec *Record, p Patch, now time.Time) {
	if p.Content != nil {
		rec.Content = *p.Content
		rec.SemanticHash = SemanticHash(rec.Content)
	}
	if p.Summary != nil {
		rec.Summary = *p.Summary
	}
	if p.Refs != nil {
		rec.Refs = lo.Ternary(*p.Refs == nil, []string{}, *p.Refs)
	}
	if p.EmotionalValence != nil {
		rec.EmotionalValence = *p.EmotionalValence
	}
	if p.Importance != nil {
		rec.Importance = *p.Importance
	}
	if p.Tags != nil {
		rec.Tags = lo.Ternary(*p.Tags == nil, []string{}, *p.Tags)
		rec.Importance = Importance(rec.Tags, rec.Type, rec.Refs)
	}
	if rec.Permanent() {
		rec.Importance = 1.0
	}
	if p.Archived != nil {
		rec.Archived = *p.Archived
		if rec.Archived {
			rec.ArchivedAt = &now
		} else {
			rec.ArchivedAt = nil
		}
	}
}

// Delete archives the record (archive=true) or removes it for good. Records
// tagged permanent are refused either way and the document is left untouched.
func (r *Repository) Delete(ctx context.Context, id string, archive bool) error {
	verb := lo.Ternary(archive, "Archive", "Delete")
	_, err := docstore.Update(ctx, r.updater, r.path, verb+" memory: "+id, newDocument, func(doc *Document) error {
		idx := doc.index(id)
		if idx < 0 {
			return fault.NotFound("memory %s not found", id)
		}
		if doc.Memories[idx].Permanent() {
			return fault.Forbidden("memory %s is tagged permanent and cannot be deleted", id)
		}

		now := r.now()
		if archive {
			doc.Memories[idx].Archived = true
			doc.Memories[idx].ArchivedAt = &now
		} else {
			doc.Memories = append(doc.Memories[:idx], doc.Memories[idx+1:]...)
			doc.Count = len(doc.Memories)
		}
		doc.LastUpdated = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s memory %s: %w", strings.ToLower(verb), id, err)
	}

	r.logger.Info().Str("id", id).Bool("archive", archive).Msg("Memory removed")
	return nil
}

// Query filters, sorts and paginates the stored records.
func (r *Repository) Query(ctx context.Context, f Filter) (Page, error) {
	doc, err := r.read(ctx)
	if err != nil {
		return Page{}, err
	}

	matches := lo.Filter(doc.Memories, func(m Record, _ int) bool { return f.match(m) })
	sortRecords(matches, f.OrderBy)

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := max(f.Offset, 0)

	page := lo.Subset(matches, offset, uint(limit))
	if offset >= len(matches) {
		page = []Record{}
	}
	return Page{Memories: page, Total: len(matches), Limit: limit, Offset: offset}, nil
}

func (f Filter) match(m Record) bool {
	if f.Tag != "" && !lo.Contains(m.Tags, f.Tag) {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.MinImportance != nil && m.Importance < *f.MinImportance {
		return false
	}
	if f.MaxImportance != nil && m.Importance > *f.MaxImportance {
		return false
	}
	if f.Since != nil && m.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && m.Timestamp.After(*f.Until) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hit := strings.Contains(strings.ToLower(m.Content), needle) ||
			strings.Contains(strings.ToLower(m.Summary), needle) ||
			lo.SomeBy(m.Tags, func(t string) bool { return strings.Contains(strings.ToLower(t), needle) })
		if !hit {
			return false
		}
	}
	return true
}

func sortRecords(records []Record, order Order) {
	switch order {
	case OrderImportance:
		sort.SliceStable(records, func(i, j int) bool { return records[i].Importance > records[j].Importance })
	default:
		sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	}
}

// Relevant returns up to n live (non-archived) records with the highest
// importance, for use as chat context.
func (r *Repository) Relevant(ctx context.Context, n int) ([]Record, error) {
	doc, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	live := lo.Filter(doc.Memories, func(m Record, _ int) bool { return !m.Archived })
	sortRecords(live, OrderImportance)
	if len(live) > n {
		live = live[:n]
	}
	return live, nil
}

// History returns the commit messages of the memories document, oldest first.
func (r *Repository) History(ctx context.Context) ([]string, error) {
	h, ok := r.updater.Store().(docstore.Historian)
	if !ok {
		return nil, fault.StoreUnavailable("memory history", errors.New("the store keeps no readable history")).
			WithHint("Run mirad with the sqlite or github store to keep a write history").
			WithStatus(http.StatusNotImplemented)
	}
	history, err := h.History(ctx, r.path)
	if err != nil {
		return nil, fmt.Errorf("read memory history: %w", err)
	}
	return history, nil
}

func (r *Repository) read(ctx context.Context) (Document, error) {
	doc, _, err := docstore.ReadJSON(ctx, r.updater.Store(), r.path, newDocument)
	if err != nil {
		return Document{}, fmt.Errorf("read memories: %w", err)
	}
	if doc.Memories == nil {
		doc.Memories = []Record{}
	}
	return doc, nil
}

func validateInput(in Input) error {
	if in.Type == "" || strings.TrimSpace(in.Content) == "" {
		return fault.InvalidInput("missing required fields: type and content are required")
	}
	if !in.Type.Valid() {
		return fault.InvalidInput("invalid type %q", in.Type).
			WithHint("valid types: " + strings.Join(lo.Map(Types, func(t Type, _ int) string { return string(t) }), ", "))
	}
	if in.Importance != nil && (*in.Importance < 0 || *in.Importance > 1) {
		return fault.InvalidInput("importance must be between 0 and 1, got %v", *in.Importance)
	}
	return nil
}

func validatePatch(p Patch) error {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return fault.InvalidInput("content cannot be empty")
	}
	if p.Importance != nil && (*p.Importance < 0 || *p.Importance > 1) {
		return fault.InvalidInput("importance must be between 0 and 1, got %v", *p.Importance)
	}
	return nil
}
