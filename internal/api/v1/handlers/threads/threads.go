package threads

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/parleyhq/parley/internal/services/threads"
	"github.com/parleyhq/parley/pkg/httpext"
	"github.com/rs/zerolog/log"
)

// HandleGetThread returns a thread's transcript as JSON.
func HandleGetThread(threadService *threads.Service, w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]

	thread, err := threadService.GetThread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, threads.ErrNotFound) {
			log.Warn().Str("thread_id", threadID).Msg("Client requested unknown thread")
			httpext.JsonError(w, "Thread not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("thread_id", threadID).Msg("Failed to load thread")
		httpext.JsonError(w, "Failed to load thread", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(thread); err != nil {
		log.Error().Err(err).Msg("Failed to encode thread response")
		httpext.JsonError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
