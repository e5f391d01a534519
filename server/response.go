package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aivoicefromthevoid/mira/fault"
)

var errBodyTooLarge = errors.New("request too large")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &maxErr):
		return errBodyTooLarge
	case errors.Is(err, io.EOF):
		return fault.InvalidInput("Request body is required")
	default:
		return fault.InvalidInput("Invalid JSON body: %v", err)
	}
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if status := fault.StatusOf(err); status != 0 {
		return status
	}
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindForbidden:
		return http.StatusForbidden
	case fault.KindInvalidInput:
		return http.StatusBadRequest
	case fault.KindStoreConflict:
		return http.StatusConflict
	case fault.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case fault.KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {error, message, hint}. title is the headline
// used when the error carries no kind of its own.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := statusFor(err)
	body := errorBody{Error: title, Message: err.Error(), Hint: fault.HintOf(err)}

	var fe *fault.Error
	switch {
	case errors.Is(err, errBodyTooLarge):
		body = errorBody{Error: "Request too large"}
	case errors.As(err, &fe) && status < 500:
		body.Error = fe.Message
		body.Message = ""
	}

	event := s.logger.Warn()
	if status >= 500 {
		event = s.logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Str("kind", string(fault.KindOf(err))).Msg(title)
	writeJSON(w, status, body)
}

func missingParam(name string) error {
	return fault.InvalidInput("%s is required", name)
}
