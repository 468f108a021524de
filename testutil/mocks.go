// Package testutil provides httptest-backed mocks of the external services
// the pipeline talks to: the YouTube Data API live chat endpoints and an
// OpenAI-compatible chat completions endpoint.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockYouTubeServer mocks the YouTube Data API v3 paths the generated client
// hits when pointed at it via an endpoint override.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a mock API server. Unregistered paths 404.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockLiveVideo registers a videos.list response carrying an active chat id.
func (m *MockYouTubeServer) MockLiveVideo(videoID, liveChatID, channelID, title string) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"items": []map[string]any{{
				"id": videoID,
				"snippet": map[string]any{
					"channelId": channelID,
					"title":     title,
				},
				"liveStreamingDetails": map[string]any{
					"activeLiveChatId": liveChatID,
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockOfflineVideo registers a videos.list response without live details.
func (m *MockYouTubeServer) MockOfflineVideo(videoID string) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"items": []map[string]any{{
				"id":      videoID,
				"snippet": map[string]any{"title": "uploaded video"},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// ChatItem is one mocked live chat message.
type ChatItem struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Text        string
	PublishedAt string
	IsModerator bool
	IsOwner     bool
}

// MockChatPage registers a liveChatMessages.list response.
func (m *MockYouTubeServer) MockChatPage(items []ChatItem, nextToken string, pollingMillis int64) {
	m.Handlers["/youtube/v3/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			out = append(out, map[string]any{
				"id": it.ID,
				"snippet": map[string]any{
					"displayMessage": it.Text,
					"publishedAt":    it.PublishedAt,
				},
				"authorDetails": map[string]any{
					"channelId":       it.AuthorID,
					"displayName":     it.AuthorName,
					"profileImageUrl": "https://example.com/avatar.png",
					"isChatModerator": it.IsModerator,
					"isChatOwner":     it.IsOwner,
				},
			})
		}
		response := map[string]any{
			"items":                 out,
			"nextPageToken":         nextToken,
			"pollingIntervalMillis": pollingMillis,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockError registers an API error for the given path, in the error envelope
// the google client parses.
func (m *MockYouTubeServer) MockError(path string, status int, message string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"errors":[{"reason":"forbidden"}]}}`, status, message)
	}
}

// MockDeleteOK registers a successful liveChatMessages.delete response.
func (m *MockYouTubeServer) MockDeleteOK() {
	m.Handlers["/youtube/v3/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// MockBanOK registers a liveChatBans.insert response echoing the request.
func (m *MockYouTubeServer) MockBanOK() {
	m.Handlers["/youtube/v3/liveChat/bans"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test mock
		body["id"] = "ban-1"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockModerators registers a liveChatModerators.list response.
func (m *MockYouTubeServer) MockModerators(names ...string) {
	m.Handlers["/youtube/v3/liveChat/moderators"] = func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0, len(names))
		for i, n := range names {
			items = append(items, map[string]any{
				"id": fmt.Sprintf("mod-%d", i),
				"snippet": map[string]any{
					"moderatorDetails": map[string]any{
						"channelId":   fmt.Sprintf("UC-mod-%d", i),
						"displayName": n,
					},
				},
			})
		}
		response := map[string]any{"items": items}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockMyChannel registers a channels.list (mine=true) response.
func (m *MockYouTubeServer) MockMyChannel(channelID, title string) {
	m.Handlers["/youtube/v3/channels"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"items": []map[string]any{{
				"id":      channelID,
				"snippet": map[string]any{"title": title},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// NewMockOpenAIServer mocks a chat-completions endpoint that always answers
// with the given message content.
func NewMockOpenAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"id":     "chatcmpl-mock",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}))
	t.Cleanup(srv.Close)
	return srv
}
