package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/onnwee/chat-warden/db"
	"github.com/onnwee/chat-warden/youtubeapi"
)

// oauthStateTTL bounds how long a started OAuth flow stays valid.
const oauthStateTTL = 10 * time.Minute

// HandleGoogleOAuthStart begins the bot onboarding flow: it redirects the
// operator to Google's consent screen with offline access so a refresh token
// comes back.
func (h *Handlers) HandleGoogleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil || h.oauth.ClientID == "" {
		writeError(w, http.StatusPreconditionFailed, "google oauth is not configured; set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
		return
	}

	state := uuid.NewString()
	h.addOAuthState(state, time.Now().Add(oauthStateTTL))

	url := h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleGoogleOAuthCallback finishes onboarding: it exchanges the code,
// identifies the bot's channel, and upserts the identity (tokens encrypted at
// rest when configured) so the credential pool picks it up.
func (h *Handlers) HandleGoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadRequest, "authorization refused: "+errMsg)
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" || !h.consumeOAuthState(state) {
		writeError(w, http.StatusBadRequest, "invalid or expired oauth state")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	if tok.RefreshToken == "" {
		// Without a refresh token the identity dies at first expiry. Google
		// only returns one on the first consent unless approval is forced.
		writeError(w, http.StatusBadRequest, "no refresh token returned; revoke the app's access in your Google account and retry")
		return
	}

	api := &youtubeapi.Client{Tokens: youtubeapi.StaticToken(tok.AccessToken)}
	channelID, channelTitle, err := api.WhoAmI(r.Context())
	if err != nil {
		slog.Warn("channel lookup for new bot failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, "could not identify the authorized channel")
		return
	}

	row := db.IdentityRow{
		ID:           channelID,
		DisplayName:  channelTitle,
		ChannelID:    channelID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if err := db.UpsertBotIdentity(r.Context(), h.db, row); err != nil {
		slog.Error("bot identity persist failed", slog.String("channel_id", channelID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not store the bot identity")
		return
	}

	slog.Info("bot identity authorized",
		slog.String("channel_id", channelID),
		slog.String("display_name", channelTitle))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "authorized",
		"channelId":   channelID,
		"displayName": channelTitle,
	})
}
