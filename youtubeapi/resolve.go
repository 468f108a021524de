package youtubeapi

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// Broadcast identifies one live broadcast's chat session.
type Broadcast struct {
	VideoID    string
	LiveChatID string
	ChannelID  string
	Title      string
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID pulls the video id out of a human-supplied stream URL.
// Accepted shapes: watch page (youtube.com/watch?v=ID), live path
// (youtube.com/live/ID), and short link (youtu.be/ID). Returns ErrInvalidURL
// when none match.
func ExtractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case host == "youtube.com" || host == "m.youtube.com" || host == "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/live/"), "/")
		}
	}
	if !videoIDPattern.MatchString(id) {
		return "", ErrInvalidURL
	}
	return id, nil
}

// ResolveSession translates a stream URL into the broadcast's active chat
// session. Fails with ErrInvalidURL for unrecognized URLs and ErrNotLive when
// the video carries no active live chat.
func (c *Client) ResolveSession(ctx context.Context, rawURL string) (Broadcast, error) {
	videoID, err := ExtractVideoID(rawURL)
	if err != nil {
		return Broadcast{}, err
	}

	svc, err := c.service(ctx)
	if err != nil {
		return Broadcast{}, err
	}
	resp, err := svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return Broadcast{}, classifyAPIError(err)
	}
	if len(resp.Items) == 0 {
		return Broadcast{}, ErrNotLive
	}
	v := resp.Items[0]
	if v.LiveStreamingDetails == nil || v.LiveStreamingDetails.ActiveLiveChatId == "" {
		return Broadcast{}, ErrNotLive
	}
	b := Broadcast{
		VideoID:    videoID,
		LiveChatID: v.LiveStreamingDetails.ActiveLiveChatId,
	}
	if v.Snippet != nil {
		b.ChannelID = v.Snippet.ChannelId
		b.Title = v.Snippet.Title
	}
	return b, nil
}
