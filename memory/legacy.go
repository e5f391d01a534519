package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

// LegacyIndex is the hand-maintained memory_index.json that predates the
// memories document.
type LegacyIndex struct {
	Version     string        `json:"version"`
	LastUpdated string        `json:"last_updated"`
	Entries     []LegacyEntry `json:"entries"`
}

// LegacyEntry is one entry of a LegacyIndex.
type LegacyEntry struct {
	ID           string   `json:"id"`
	Timestamp    string   `json:"timestamp"`
	Type         string   `json:"type"`
	BriefSummary string   `json:"brief_summary,omitempty"`
	CoreInsight  string   `json:"core_insight,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	SemanticHash string   `json:"semantic_hash,omitempty"`
	FilePath     string   `json:"file_path,omitempty"`
}

// LoadLegacyIndex reads a memory_index.json file from disk.
func LoadLegacyIndex(path string) (LegacyIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LegacyIndex{}, fault.NotFound("legacy index %s does not exist", path).
				WithHint("Set memory.legacy_index_path to the location of memory_index.json")
		}
		return LegacyIndex{}, fmt.Errorf("failed to read legacy index: %w", err)
	}
	var idx LegacyIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return LegacyIndex{}, fmt.Errorf("failed to parse legacy index %s: %w", path, err)
	}
	return idx, nil
}

func (e LegacyEntry) parsedTime() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ImportResult reports what a legacy import did.
type ImportResult struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// ImportLegacy copies every entry of idx whose id is not stored yet into the
// memories document, in a single write.
func (r *Repository) ImportLegacy(ctx context.Context, idx LegacyIndex) (ImportResult, error) {
	var res ImportResult
	message := fmt.Sprintf("Migrate memories from memory_index.json (%d entries)", len(idx.Entries))

	doc, err := docstore.Update(ctx, r.updater, r.path, message, newDocument, func(doc *Document) error {
		res = ImportResult{}
		now := r.now()
		for _, entry := range idx.Entries {
			if doc.index(entry.ID) >= 0 {
				res.Skipped++
				continue
			}
			doc.Memories = append([]Record{legacyRecord(entry, now)}, doc.Memories...)
			res.Migrated++
		}
		if res.Migrated == 0 {
			return docstore.ErrNoChange
		}
		doc.Count = len(doc.Memories)
		doc.LastUpdated = now
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import legacy memories: %w", err)
	}
	res.Total = len(doc.Memories)

	r.logger.Info().
		Int("migrated", res.Migrated).
		Int("skipped", res.Skipped).
		Int("total", res.Total).
		Msg("Legacy memories imported")
	return res, nil
}

func legacyRecord(e LegacyEntry, now time.Time) Record {
	typ := Type(e.Type)
	if e.Type == "journal" || !typ.Valid() {
		typ = TypeThought
	}

	content := lo.CoalesceOrEmpty(e.BriefSummary, e.CoreInsight, "No content")
	hash := e.SemanticHash
	if hash == "" {
		hash = SemanticHash(content)
	}

	importance := 0.7
	if lo.Contains(e.Tags, "genesis") || lo.Contains(e.Tags, TagPermanent) {
		importance = 1.0
	}

	ts := e.parsedTime()
	if ts.IsZero() {
		ts = now
	}

	return Record{
		ID:               e.ID,
		Timestamp:        ts,
		SessionID:        "sess_" + ulid.Make().String(),
		Type:             typ,
		Content:          content,
		Summary:          lo.CoalesceOrEmpty(e.CoreInsight, e.BriefSummary),
		Tags:             lo.Ternary(e.Tags == nil, []string{}, e.Tags),
		Importance:       importance,
		EmotionalValence: 0.5,
		SemanticHash:     hash,
		Refs:             lo.Ternary(e.FilePath == "", []string{}, []string{e.FilePath}),
		Source:           lo.ToPtr("migration"),
	}
}

// LegacyFilter narrows the legacy list view.
type LegacyFilter struct {
	Tag    string
	Type   string
	Search string
	Limit  int
}

// LegacyView is one entry formatted for the front-end timeline.
type LegacyView struct {
	ID          string      `json:"id"`
	Time        string      `json:"time"`
	State       string      `json:"state"`
	Note        string      `json:"note"`
	FullContent LegacyEntry `json:"fullContent"`
	Tags        []string    `json:"tags"`
}

// LegacyList is the response shape of the legacy memories listing.
type LegacyList struct {
	Version     string       `json:"version"`
	LastUpdated string       `json:"last_updated"`
	Count       int          `json:"count"`
	Entries     []LegacyView `json:"entries"`
}

// ListLegacy filters idx, newest first, and formats each entry relative to now.
func ListLegacy(idx LegacyIndex, f LegacyFilter, now time.Time) LegacyList {
	needle := strings.ToLower(f.Search)
	entries := lo.Filter(idx.Entries, func(e LegacyEntry, _ int) bool {
		if f.Tag != "" && !lo.Contains(e.Tags, f.Tag) {
			return false
		}
		if f.Type != "" && e.Type != f.Type {
			return false
		}
		if needle != "" {
			return strings.Contains(strings.ToLower(e.BriefSummary), needle) ||
				strings.Contains(strings.ToLower(e.CoreInsight), needle) ||
				lo.SomeBy(e.Tags, func(t string) bool { return strings.Contains(strings.ToLower(t), needle) })
		}
		return true
	})

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].parsedTime().After(entries[j].parsedTime()) })
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}

	views := lo.Map(entries, func(e LegacyEntry, _ int) LegacyView {
		return LegacyView{
			ID:          e.ID,
			Time:        RelativeTime(e.parsedTime(), now),
			State:       legacyState(e.Type),
			Note:        lo.CoalesceOrEmpty(e.CoreInsight, e.BriefSummary, "No summary available"),
			FullContent: e,
			Tags:        lo.Ternary(e.Tags == nil, []string{}, e.Tags),
		}
	})

	return LegacyList{
		Version:     idx.Version,
		LastUpdated: idx.LastUpdated,
		Count:       len(views),
		Entries:     views,
	}
}

func legacyState(typ string) string {
	switch typ {
	case "journal":
		return "Journal"
	case "experiment":
		return "Experiment"
	case "reflection":
		return "Reflection"
	default:
		return "Memory"
	}
}

// RelativeTime renders t as "Today", "Yesterday", "3 days ago" and so on.
func RelativeTime(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return fmt.Sprintf("%d years ago", days/365)
	}
}
