// Package youtubeapi wraps the YouTube Data API live chat endpoints consumed by
// the moderation pipeline: resolving a stream URL to its active live chat,
// paginated message fetches, and the privileged moderation actions
// (delete / ban / moderator listing). Credentials are drawn per call from the
// provided TokenSource so bot identities rotate across requests.
package youtubeapi

import (
	"context"

	"golang.org/x/oauth2"
	yt "google.golang.org/api/youtube/v3"
	"google.golang.org/api/option"
)

// TokenSource yields a valid access token per outbound call. Satisfied by
// credpool.Pool, which rotates bot identities and refreshes stale tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client provides the live chat operations needed by the orchestrator.
type Client struct {
	Tokens TokenSource

	// Endpoint overrides the API base URL (tests point this at a mock server).
	Endpoint string
}

// StaticToken is a TokenSource over one fixed access token, used for one-off
// calls outside the pool (e.g. identifying a freshly authorized bot).
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

// service builds a YouTube service authenticated with the next pool credential.
func (c *Client) service(ctx context.Context) (*yt.Service, error) {
	tok, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})),
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	return yt.NewService(ctx, opts...)
}
