package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/aivoicefromthevoid/mira/catalog"
	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/aivoicefromthevoid/mira/notify"
	"github.com/samber/lo"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if !s.startedAt.IsZero() {
		body["uptime_seconds"] = int64(s.now().Sub(s.startedAt) / time.Second)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Usage.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to get usage stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		s.writeError(w, r, "Failed to select model", fault.ProviderUnavailable("model catalog is not configured", nil).
			WithHint("Set OPENROUTER_API_KEY to enable the model catalog").
			WithStatus(http.StatusServiceUnavailable))
		return
	}

	q := r.URL.Query()
	switch action := lo.CoalesceOrEmpty(q.Get("action"), "select"); action {
	case "select":
		opts := catalog.DefaultSelectOptions()
		if v := q.Get("capabilities"); v != "" {
			opts.Capabilities = splitList(v)
		}
		if v := q.Get("preferredProviders"); v != "" {
			opts.PreferredProviders = splitList(v)
		}
		opts.ExcludeProviders = splitList(q.Get("excludeProviders"))
		if q.Get("minContextLength") != "" {
			n, err := intParam(q, "minContextLength")
			if err != nil {
				s.writeError(w, r, "Invalid query", err)
				return
			}
			opts.MinContextLength = n
		}

		model, err := s.deps.Models.Select(r.Context(), opts)
		if err != nil {
			s.writeError(w, r, "Failed to select model", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "model": model})

	case "list":
		models, err := s.deps.Models.Free(r.Context())
		if err != nil {
			s.writeError(w, r, "Failed to list models", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "models": models, "count": len(models)})

	case "stats":
		stats, err := s.deps.Models.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, "Failed to get model stats", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":        "Invalid action",
			"validActions": []string{"select", "list", "stats"},
		})
	}
}

type emailRequest struct {
	Subject  string         `json:"subject"`
	Message  string         `json:"message"`
	Type     string         `json:"type,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Invalid request", err)
		return
	}
	if req.Subject == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "Missing required fields",
			"required": []string{"subject", "message"},
		})
		return
	}
	if s.deps.Notifier == nil {
		s.writeError(w, r, "Failed to send email", fault.ProviderUnavailable("email notifications are not configured", nil).
			WithHint("Set EMERGENCY_EMAIL, EMAIL_USER and EMAIL_PASSWORD").
			WithStatus(http.StatusServiceUnavailable))
		return
	}

	alert := notify.Alert{
		Subject:   req.Subject,
		Message:   req.Message,
		Type:      req.Type,
		Priority:  notify.Priority(strings.ToUpper(lo.CoalesceOrEmpty(req.Priority, string(notify.PriorityHigh)))),
		Action:    notify.DefaultAction,
		Timestamp: s.now(),
	}
	if req.Context != nil {
		alert.Details = req.Context
	}

	res, err := s.deps.Notifier.Send(r.Context(), alert)
	if err != nil {
		s.writeError(w, r, "Failed to send email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

func (s *Server) handleAdminMigrate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	idx, err := memory.LoadLegacyIndex(s.cfg.LegacyIndexPath)
	if err != nil {
		s.writeError(w, r, "Migration failed", err)
		return
	}
	res, err := s.deps.Memories.ImportLegacy(r.Context(), idx)
	if err != nil {
		s.writeError(w, r, "Migration failed", err)
		return
	}
	s.logger.Info().Int("migrated", res.Migrated).Int("skipped", res.Skipped).Msg("Legacy migration completed")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Migration completed",
		"result":  res,
	})
}

// authorized checks the bearer token against the admin key. An unset admin
// key rejects every request.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AdminAPIKey == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminAPIKey)) == 1
}

func splitList(v string) []string {
	parts := lo.Map(strings.Split(v, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Compact(parts)
}
