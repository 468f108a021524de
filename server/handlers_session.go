package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/chat-warden/credpool"
	"github.com/onnwee/chat-warden/moderator"
	"github.com/onnwee/chat-warden/youtubeapi"
)

// startSessionRequest is the body of POST /session/start. Settings are
// optional; omitted fields fall back to the configured defaults.
type startSessionRequest struct {
	URL      string              `json:"url"`
	Settings *moderator.Settings `json:"settings,omitempty"`
}

// HandleSessionStart starts monitoring a live stream.
func (h *Handlers) HandleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	settings := h.defaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if settings.SpamThreshold < 0 || settings.SpamThreshold > 100 {
		writeError(w, http.StatusBadRequest, "spamThreshold must be in [0,100]")
		return
	}

	err := h.orch.StartSession(r.Context(), req.URL, settings)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.orch.Status())
	case errors.Is(err, youtubeapi.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "unrecognized stream URL; use a watch, live, or short link")
	case errors.Is(err, youtubeapi.ErrNotLive):
		writeError(w, http.StatusConflict, "that video has no active live chat; wait for the stream to start")
	case errors.Is(err, credpool.ErrPoolExhausted):
		writeError(w, http.StatusPreconditionFailed, "no bot identities configured; authorize a bot before starting")
	case youtubeapi.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, "platform rejected the bot credentials; re-authenticate the bot")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// HandleSessionStop stops the active session. The final log and counters stay
// readable until the next start.
func (h *Handlers) HandleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	h.orch.StopSession()
	writeJSON(w, http.StatusOK, h.orch.Status())
}

// HandleSessionStatus reports counters, broadcast info, and the moderator
// authority record (including any standing advisory).
func (h *Handlers) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Status())
}

// defaultSettings seeds session settings from the service configuration.
func (h *Handlers) defaultSettings() moderator.Settings {
	return moderator.Settings{
		AutoDelete:      h.cfg.AutoDelete,
		AutoTimeout:     h.cfg.AutoTimeout,
		AutoBan:         h.cfg.AutoBan,
		AIDetection:     h.cfg.AIDetection,
		SpamThreshold:   h.cfg.SpamThreshold,
		Whitelist:       h.cfg.Whitelist,
		Blacklist:       h.cfg.Blacklist,
		CustomSpamWords: h.cfg.CustomSpamWords,
	}
}
