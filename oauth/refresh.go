// Package oauth provides the Google OAuth config plus jittered background
// refresh scheduling for the bot identities in the credential pool.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/chat-warden/config"
	"github.com/onnwee/chat-warden/telemetry"
)

// GoogleConfig builds the oauth2 config used for both the onboarding flow and
// refresh-token exchanges.
func GoogleConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       strings.Fields(strings.ReplaceAll(cfg.GoogleScopes, ",", " ")),
		Endpoint:     google.Endpoint,
	}
}

// RefreshFuncFor adapts the oauth2 config into the credential pool's refresh
// signature: exchange a refresh token for (access, refresh, expiry).
func RefreshFuncFor(oc *oauth2.Config) func(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
	return func(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
		if refreshToken == "" {
			return "", "", time.Time{}, errors.New("empty refresh token")
		}
		ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := ts.Token()
		if err != nil {
			telemetry.TokenRefreshFailuresTotal.Inc()
			return "", "", time.Time{}, err
		}
		telemetry.TokenRefreshesTotal.Inc()
		// Google omits the refresh token when it has not rotated; the pool
		// keeps the old one on empty.
		return tok.AccessToken, tok.RefreshToken, tok.Expiry, nil
	}
}

// RefreshingPool is the pool surface the background refresher drives.
type RefreshingPool interface {
	RefreshExpiring(ctx context.Context, window time.Duration) (refreshed, failed int)
}

// StartRefresher launches a goroutine that periodically sweeps the credential
// pool and refreshes identities whose tokens expire within the window.
// interval: how often to wake up. window: refresh when remaining lifetime <=
// window.
func StartRefresher(ctx context.Context, pool RefreshingPool, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}

			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			refreshed, failed := pool.RefreshExpiring(sweepCtx, window)
			cancel()
			if refreshed > 0 || failed > 0 {
				slog.Info("credential sweep complete",
					slog.String("component", "token_refresher"),
					slog.Int("refreshed", refreshed),
					slog.Int("failed", failed))
			}
		}
	}()
}
