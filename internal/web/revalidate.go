package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

type revalidateResponse struct {
	Message     string `json:"message"`
	Revalidated bool   `json:"revalidated"`
	Type        string `json:"type,omitempty"`
}

type revalidatePayload struct {
	Type string
}

var errNullPayload = errors.New("request body is null")

// decodeRevalidatePayload reads the webhook body. Any JSON value other than
// null is accepted; only an object can carry a _type.
func decodeRevalidatePayload(body io.Reader) (revalidatePayload, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return revalidatePayload{}, err
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return revalidatePayload{}, errNullPayload
	}

	var payload revalidatePayload
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return revalidatePayload{}, err
		}
		// a non-string _type is ignored
		_ = json.Unmarshal(fields["_type"], &payload.Type)
	}
	return payload, nil
}

// handleRevalidate is called by the content store when a document changes.
// It checks the shared secret and asks the deploy hook for a fresh build.
func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	if s.secret == "" {
		log.Error().Msg("SANITY_REVALIDATE_SECRET is not configured")
		writeJSON(w, http.StatusInternalServerError, revalidateResponse{
			Message: "Revalidation secret not configured",
		})
		return
	}

	// Format: "Bearer <secret>"
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || authHeader != "Bearer "+s.secret {
		log.Warn().Str("remote", r.RemoteAddr).Msg("unauthorized revalidation attempt")
		writeJSON(w, http.StatusUnauthorized, revalidateResponse{
			Message: "Unauthorized",
		})
		return
	}

	payload, err := decodeRevalidatePayload(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("revalidation payload")
		writeJSON(w, http.StatusInternalServerError, revalidateResponse{
			Message: err.Error(),
		})
		return
	}

	kind := payload.Type
	if kind == "" {
		kind = "unknown type"
	}
	log.Info().Str("kind", kind).Msg("revalidation triggered")

	if s.cache != nil {
		if err := s.cache.Invalidate(r.Context(), payload.Type); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("cache invalidation failed")
		}
	}

	if !s.hook.Configured() {
		// Acknowledged only; revalidated stays false so callers can tell
		writeJSON(w, http.StatusOK, revalidateResponse{
			Message: "Webhook received (deploy hook not configured)",
			Type:    payload.Type,
		})
		return
	}

	if err := s.hook.Trigger(r.Context()); err != nil {
		log.Error().Err(err).Msg("revalidation failed")
		writeJSON(w, http.StatusInternalServerError, revalidateResponse{
			Message: err.Error(),
		})
		return
	}

	log.Info().Msg("deploy hook triggered")
	writeJSON(w, http.StatusOK, revalidateResponse{
		Message:     "Revalidation triggered via deploy hook",
		Revalidated: true,
		Type:        payload.Type,
	})
}
