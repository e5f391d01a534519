package memory

import (
	"time"

	"github.com/samber/lo"
)

// Type describes the kind of memory record.
type Type string

const (
	TypeThought      Type = "thought"
	TypeObservation  Type = "observation"
	TypeInsight      Type = "insight"
	TypeConversation Type = "conversation"
	TypeResearch     Type = "research"
	TypeDraft        Type = "draft"
	TypeAction       Type = "action"
	TypeEmotion      Type = "emotion"
)

// Types lists every valid record type in display order.
var Types = []Type{
	TypeThought, TypeObservation, TypeInsight, TypeConversation,
	TypeResearch, TypeDraft, TypeAction, TypeEmotion,
}

// Valid reports whether t is one of Types.
func (t Type) Valid() bool {
	return lo.Contains(Types, t)
}

// TagPermanent marks a record that always scores 1.0 and can never be deleted.
const TagPermanent = "permanent"

// DocumentVersion is the schema version written into every memories document.
const DocumentVersion = "1.0"

// Record is a single stored memory.
type Record struct {
	ID               string     `json:"id"`
	Timestamp        time.Time  `json:"timestamp"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	SessionID        string     `json:"session_id,omitempty"`
	Type             Type       `json:"type"`
	Content          string     `json:"content"`
	Summary          string     `json:"summary"`
	Tags             []string   `json:"tags"`
	Importance       float64    `json:"importance"`
	EmotionalValence float64    `json:"emotional_valence"`
	SemanticHash     string     `json:"semantic_hash"`
	Refs             []string   `json:"refs"`
	Source           *string    `json:"source"`
	Archived         bool       `json:"archived"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
}

// Permanent reports whether the record carries the permanent tag.
func (r Record) Permanent() bool {
	return lo.Contains(r.Tags, TagPermanent)
}

// Document is the persisted aggregate: every record, most recent first.
type Document struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Count       int       `json:"count"`
	Memories    []Record  `json:"memories"`
}

func newDocument() Document {
	return Document{
		Version:     DocumentVersion,
		LastUpdated: time.Now().UTC(),
		Memories:    []Record{},
	}
}

func (d *Document) index(id string) int {
	_, idx, ok := lo.FindIndexOf(d.Memories, func(r Record) bool { return r.ID == id })
	if !ok {
		return -1
	}
	return idx
}

// Input is the data accepted when creating a record. Pointer fields are
// optional; nil means "derive a default".
type Input struct {
	Type             Type     `json:"type"`
	Content          string   `json:"content"`
	Summary          string   `json:"summary,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Importance       *float64 `json:"importance,omitempty"`
	EmotionalValence *float64 `json:"emotional_valence,omitempty"`
	Refs             []string `json:"refs,omitempty"`
	Source           *string  `json:"source,omitempty"`
}

// Patch holds the fields an update may change. Anything not listed here is
// ignored by the JSON decoder and never reaches the repository.
type Patch struct {
	Content          *string   `json:"content,omitempty"`
	Summary          *string   `json:"summary,omitempty"`
	Tags             *[]string `json:"tags,omitempty"`
	Importance       *float64  `json:"importance,omitempty"`
	EmotionalValence *float64  `json:"emotional_valence,omitempty"`
	Refs             *[]string `json:"refs,omitempty"`
	Archived         *bool     `json:"archived,omitempty"`
}

// Order selects the sort applied by Query.
type Order string

const (
	OrderDate       Order = "date"
	OrderImportance Order = "importance"
)

// DefaultLimit is the page size used when a query does not set one.
const DefaultLimit = 50

// Filter narrows a query. Zero values disable the corresponding filter.
type Filter struct {
	Tag           string
	Type          Type
	Search        string
	MinImportance *float64
	MaxImportance *float64
	Since         *time.Time
	Until         *time.Time
	Limit         int
	Offset        int
	OrderBy       Order
}

// Page is one slice of a query result.
type Page struct {
	Memories []Record `json:"memories"`
	Total    int      `json:"total"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}
