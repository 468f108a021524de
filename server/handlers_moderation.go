package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-warden/moderator"
)

// sseTailInterval is how often the SSE tail re-checks the log for new entries.
const sseTailInterval = 2 * time.Second

// HandleModerationLog returns the in-memory moderation log, newest first.
// With ?stream=1 the response upgrades to an SSE tail that pushes new entries
// as they are detected.
func (h *Handlers) HandleModerationLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	if r.URL.Query().Get("stream") == "1" {
		h.handleModerationLogSSE(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.orch.LogSnapshot())
}

// handleModerationLogSSE tails the log over Server-Sent Events: the current
// snapshot first, then any entry not yet sent, polled on a short interval.
func (h *Handlers) handleModerationLogSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	enc := json.NewEncoder(w)
	sent := make(map[string]moderator.Kind)

	send := func(e moderator.LogEntry) bool {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if err := enc.Encode(e); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return false
		}
		sent[e.ID] = e.Kind
		return true
	}

	ticker := time.NewTicker(sseTailInterval)
	defer ticker.Stop()
	for {
		snap := h.orch.LogSnapshot()
		// Oldest first so the client sees entries in detection order; kind
		// upgrades re-emit the entry.
		for i := len(snap) - 1; i >= 0; i-- {
			e := snap[i]
			if kind, seen := sent[e.ID]; seen && kind == e.Kind {
				continue
			}
			if !send(e) {
				return
			}
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HandleModerationExport serves the flattened log as a JSON download.
func (h *Handlers) HandleModerationExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="moderation-log-%s.json"`, time.Now().UTC().Format("20060102-150405")))
	writeJSON(w, http.StatusOK, h.orch.ExportLog())
}

// manualActionRequest is the body of POST /moderation/action.
type manualActionRequest struct {
	Kind      string `json:"kind"` // delete | timeout | ban
	MessageID string `json:"messageId"`
}

// HandleModerationAction applies an operator-initiated action to a logged
// message.
func (h *Handlers) HandleModerationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req manualActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "messageId is required")
		return
	}

	var kind moderator.Kind
	switch req.Kind {
	case "delete":
		kind = moderator.KindDeleted
	case "timeout":
		kind = moderator.KindTimeout
	case "ban":
		kind = moderator.KindBanned
	default:
		writeError(w, http.StatusBadRequest, "kind must be delete, timeout, or ban")
		return
	}

	err := h.orch.TakeManualAction(r.Context(), kind, req.MessageID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, moderator.ErrNoSession):
		writeError(w, http.StatusConflict, "no session has been started")
	default:
		slog.Warn("manual action failed", slog.String("kind", req.Kind), slog.String("message_id", req.MessageID), slog.Any("err", err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
