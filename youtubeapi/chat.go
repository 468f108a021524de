package youtubeapi

import (
	"context"
	"time"
)

// ChatMessage is one live chat message as fetched. Immutable once constructed;
// the classifier consumes it exactly once per poll cycle.
type ChatMessage struct {
	ID                string
	AuthorChannelID   string
	AuthorName        string
	AuthorPhotoURL    string
	Text              string
	PublishedAt       time.Time
	AuthorIsModerator bool
	AuthorIsOwner     bool
}

// Page is one paginated fetch result. SuggestedInterval is server-advised; the
// orchestrator floors it at one second before sleeping.
type Page struct {
	Messages          []ChatMessage
	NextCursor        string
	SuggestedInterval time.Duration
}

// FetchPage retrieves one page of new messages for a live chat session.
// An empty message list is a valid result, not an error.
func (c *Client) FetchPage(ctx context.Context, liveChatID, cursor string) (Page, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return Page{}, err
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).MaxResults(200)
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return Page{}, classifyAPIError(err)
	}

	page := Page{
		NextCursor:        resp.NextPageToken,
		SuggestedInterval: time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
		Messages:          make([]ChatMessage, 0, len(resp.Items)),
	}
	for _, item := range resp.Items {
		m := ChatMessage{ID: item.Id}
		if item.Snippet != nil {
			m.Text = item.Snippet.DisplayMessage
			if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				m.PublishedAt = t
			}
		}
		if item.AuthorDetails != nil {
			m.AuthorChannelID = item.AuthorDetails.ChannelId
			m.AuthorName = item.AuthorDetails.DisplayName
			m.AuthorPhotoURL = item.AuthorDetails.ProfileImageUrl
			m.AuthorIsModerator = item.AuthorDetails.IsChatModerator
			m.AuthorIsOwner = item.AuthorDetails.IsChatOwner
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}
