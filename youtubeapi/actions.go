package youtubeapi

import (
	"context"

	yt "google.golang.org/api/youtube/v3"
)

// timeoutSeconds is the fixed duration of a temporary ban.
const timeoutSeconds = 300

// DeleteMessage removes one chat message. Requires moderator privilege; the
// platform signals missing privilege with a 403 (surfaced as *AuthError).
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	if err := svc.LiveChatMessages.Delete(messageID).Context(ctx).Do(); err != nil {
		return classifyAPIError(err)
	}
	return nil
}

// BanUser bans a user from the chat, permanently or for the fixed 5-minute
// timeout. Same privilege requirement as DeleteMessage.
func (c *Client) BanUser(ctx context.Context, liveChatID, channelID string, permanent bool) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	snippet := &yt.LiveChatBanSnippet{
		LiveChatId:        liveChatID,
		BannedUserDetails: &yt.ChannelProfileDetails{ChannelId: channelID},
	}
	if permanent {
		snippet.Type = "permanent"
	} else {
		snippet.Type = "temporary"
		snippet.BanDurationSeconds = timeoutSeconds
	}
	_, err = svc.LiveChatBans.Insert([]string{"snippet"}, &yt.LiveChatBan{Snippet: snippet}).Context(ctx).Do()
	if err != nil {
		return classifyAPIError(err)
	}
	return nil
}

// ListModerators lists the chat's moderators. The call succeeds only for the
// channel owner, which makes it a privilege probe as much as a listing.
func (c *Client) ListModerators(ctx context.Context, liveChatID string) ([]string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.LiveChatModerators.List(liveChatID, []string{"snippet"}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError(err)
	}
	names := make([]string, 0, len(resp.Items))
	for _, m := range resp.Items {
		if m.Snippet != nil && m.Snippet.ModeratorDetails != nil {
			names = append(names, m.Snippet.ModeratorDetails.DisplayName)
		}
	}
	return names, nil
}

// WhoAmI resolves the authenticated identity's own channel id and title, used
// during bot onboarding after the OAuth code exchange.
func (c *Client) WhoAmI(ctx context.Context) (channelID, title string, err error) {
	svc, err := c.service(ctx)
	if err != nil {
		return "", "", err
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", "", classifyAPIError(err)
	}
	if len(resp.Items) == 0 {
		return "", "", &TransportError{Msg: "no channel for authenticated identity"}
	}
	ch := resp.Items[0]
	if ch.Snippet != nil {
		title = ch.Snippet.Title
	}
	return ch.Id, title, nil
}
