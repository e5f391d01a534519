package server

import (
	"net/http"
	"time"

	"github.com/aivoicefromthevoid/mira/chat"
	"github.com/aivoicefromthevoid/mira/fault"
)

type chatRequest struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
	Model   string `json:"model,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Invalid request", err)
		return
	}

	out, err := s.deps.Chat.Reply(r.Context(), chat.Request{
		Message: req.Message,
		Context: req.Context,
		Model:   req.Model,
	})
	if err != nil {
		if fault.IsProviderUnavailable(err) {
			s.logger.Error().Err(err).Msg("Chat provider failed")
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":    "Failed to generate response",
				"message":  err.Error(),
				"hint":     fault.HintOf(err),
				"fallback": chat.FallbackReply,
			})
			return
		}
		s.writeError(w, r, "Failed to generate response", err)
		return
	}

	if out.Denial != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"status":  "paused",
			"reason":  out.Denial.Reason,
			"message": out.Denial.Message,
			"usage":   out.Denial.Usage,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"response":  out.Response,
		"model":     out.Model,
		"timestamp": out.Timestamp.UTC().Format(time.RFC3339Nano),
		"usage":     out.Usage,
	})
}
