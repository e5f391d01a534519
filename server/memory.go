package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/samber/lo"
)

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		rec, err := s.deps.Memories.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, "Failed to load memory", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memory": rec})
		return
	}

	filter, err := parseFilter(q)
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	page, err := s.deps.Memories.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, "Failed to query memories", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleMemoryCreate(w http.ResponseWriter, r *http.Request) {
	var in memory.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, "Invalid request", err)
		return
	}

	rec, duplicate, err := s.deps.Memories.Add(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "Failed to create memory", err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Similar memory already exists. Boosted importance.",
			"memory":    rec,
			"duplicate": true,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Memory created successfully",
		"memory":  rec,
	})
}

func (s *Server) handleMemoryUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, r, "Invalid request", missingParam("Memory ID"))
		return
	}
	var patch memory.Patch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, r, "Invalid request", err)
		return
	}

	rec, err := s.deps.Memories.Update(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, "Failed to update memory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Memory updated successfully",
		"memory":  rec,
	})
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		s.writeError(w, r, "Invalid request", missingParam("Memory ID"))
		return
	}
	// Archiving is the default; only an explicit archive=false deletes.
	archive := q.Get("archive") != "false"

	if err := s.deps.Memories.Delete(r.Context(), id, archive); err != nil {
		s.writeError(w, r, "Failed to delete memory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": lo.Ternary(archive, "Memory archived successfully", "Memory deleted permanently"),
		"id":      id,
	})
}

func (s *Server) handleMemoryHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Memories.History(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to load memory history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": history, "count": len(history)})
}

func (s *Server) handleLegacyList(w http.ResponseWriter, r *http.Request) {
	idx, err := memory.LoadLegacyIndex(s.cfg.LegacyIndexPath)
	if err != nil {
		s.writeError(w, r, "Failed to load memories", err)
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q, "limit")
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	list := memory.ListLegacy(idx, memory.LegacyFilter{
		Tag:    q.Get("tag"),
		Type:   q.Get("type"),
		Search: q.Get("search"),
		Limit:  limit,
	}, s.now())
	writeJSON(w, http.StatusOK, list)
}

func parseFilter(q url.Values) (memory.Filter, error) {
	f := memory.Filter{
		Tag:     q.Get("tag"),
		Type:    memory.Type(q.Get("type")),
		Search:  q.Get("search"),
		OrderBy: memory.Order(q.Get("order_by")),
	}

	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	if f.MinImportance, err = floatParam(q, "min_importance"); err != nil {
		return f, err
	}
	if f.MaxImportance, err = floatParam(q, "max_importance"); err != nil {
		return f, err
	}
	if f.Since, err = timeParam(q, "since"); err != nil {
		return f, err
	}
	if f.Until, err = timeParam(q, "until"); err != nil {
		return f, err
	}
	if f.OrderBy != "" && f.OrderBy != memory.OrderDate && f.OrderBy != memory.OrderImportance {
		return f, fault.InvalidInput("order_by must be %q or %q", memory.OrderDate, memory.OrderImportance)
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fault.InvalidInput("%s must be a non-negative integer", name)
	}
	return n, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fault.InvalidInput("%s must be a number", name)
	}
	return &v, nil
}

// timeParam accepts RFC 3339 timestamps and plain dates, both read as UTC.
func timeParam(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fault.InvalidInput("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date", name)
}
