package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/parleyhq/parley/internal/services/assistant"
	"github.com/parleyhq/parley/internal/services/threads"
	"github.com/parleyhq/parley/pkg/httpext"
	"github.com/parleyhq/parley/pkg/stream"
	"github.com/rs/zerolog/log"
)

// use a single instance of Validate, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

// HandleMessage handles one assistant round trip. The request is answered
// with a stream of typed parts, not a JSON document, so after the control
// frame is sent every failure travels in-band as an error part.
func HandleMessage(assistantService *assistant.Service, w http.ResponseWriter, r *http.Request) {
	// Parse request
	var req assistant.Request

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	// Validate request against model constraints
	if err := validate.Struct(req); err != nil {
		log.Warn().Err(err).Msg("Request validation failed")
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "Invalid request",
			ErrorDescription: err.Error(),
		})
		return
	}

	switch req.Role {
	case "user":
		if req.Message == "" {
			log.Warn().Msg("Client sent empty message")
			httpext.JsonError(w, "Message cannot be empty", http.StatusBadRequest)
			return
		}
	case "tool":
		if len(req.Content) == 0 {
			log.Warn().Msg("Client sent tool round with no outputs")
			httpext.JsonError(w, "Content cannot be empty", http.StatusBadRequest)
			return
		}
	}

	threadID, err := assistantService.EnsureThread(r.Context(), req.ThreadID)
	if err != nil {
		if errors.Is(err, threads.ErrNotFound) {
			log.Warn().Str("thread_id", req.ThreadID).Msg("Client referenced unknown thread")
			httpext.JsonError(w, "Thread not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("thread_id", req.ThreadID).Msg("Failed to resolve thread")
		httpext.JsonError(w, "Failed to resolve thread", http.StatusInternalServerError)
		return
	}

	messageID := assistant.NewMessageID()

	log.Info().
		Str("thread_id", threadID).
		Str("message_id", messageID).
		Str("role", req.Role).
		Str("client_ip", r.RemoteAddr).
		Msg("Received assistant request")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	err = stream.Respond(r.Context(), w, threadID, messageID, func(ctx context.Context, sess *stream.Session) error {
		return assistantService.Respond(ctx, req, threadID, messageID, sess)
	})
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("Failed to stream assistant response")
		return
	}

	log.Info().
		Str("thread_id", threadID).
		Int("status", http.StatusOK).
		Msg("Assistant request processed successfully")
}
