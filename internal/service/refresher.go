package service

import (
	"context"
	"log/slog"
	"time"

	"aetheris-web/internal/authapi"
	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"
	"aetheris-web/internal/token"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBuffer is how long before expiry an access token is
// considered due for refresh.
const DefaultRefreshBuffer = 30 * time.Second

// RefreshAPI is the part of the auth API used to rotate access tokens.
type RefreshAPI interface {
	Refresh(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error)
}

// Refresher keeps a session token's access token current.
type Refresher struct {
	api    RefreshAPI
	buffer time.Duration
	now    func() time.Time
	dedup  bool
	group  singleflight.Group
}

type RefresherOption func(*Refresher)

// WithClock replaces the time source.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// WithBuffer sets how early before expiry a refresh is triggered.
func WithBuffer(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d >= 0 {
			r.buffer = d
		}
	}
}

// WithDedup toggles coalescing of concurrent refreshes that share a
// refresh token. It is on by default.
func WithDedup(enabled bool) RefresherOption {
	return func(r *Refresher) { r.dedup = enabled }
}

func NewRefresher(api RefreshAPI, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		api:    api,
		buffer: DefaultRefreshBuffer,
		now:    time.Now,
		dedup:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NeedsRefresh reports whether tok is due for refresh at now. A token with
// no known expiry is always due.
func NeedsRefresh(tok domain.Token, now time.Time, buffer time.Duration) bool {
	if tok.AccessTokenExpires == 0 {
		return true
	}
	return now.UnixMilli() >= tok.AccessTokenExpires-buffer.Milliseconds()
}

// NeedsRefresh applies the refresher's buffer and clock.
func (r *Refresher) NeedsRefresh(tok domain.Token) bool {
	return NeedsRefresh(tok, r.now(), r.buffer)
}

// Refresh returns tok unchanged while it is fresh. Otherwise it calls the
// auth API once and returns the rotated token, or the previous token flagged
// with RefreshAccessTokenError when the call fails.
func (r *Refresher) Refresh(ctx context.Context, tok domain.Token) domain.Outcome {
	if !r.NeedsRefresh(tok) {
		observability.TokenRefreshes.WithLabelValues("fresh").Inc()
		return domain.OutcomeOf(tok)
	}

	res, err := r.call(ctx, tok.RefreshToken)
	if err == nil && res.AccessToken == "" {
		err = authapi.ErrMalformedResponse
	}
	if err != nil {
		observability.FromContext(ctx).Warn("access token refresh failed",
			slog.String("user_id", tok.ID),
			slog.String("error", err.Error()))
		observability.TokenRefreshes.WithLabelValues("failed").Inc()
		return domain.Errored(tok)
	}

	next := tok
	next.AccessToken = res.AccessToken
	next.AccessTokenExpires = token.ExpiryMillis(res.AccessToken)
	if res.RefreshToken != "" {
		next.RefreshToken = res.RefreshToken
	}

	observability.TokenRefreshes.WithLabelValues("refreshed").Inc()
	return domain.OutcomeOf(next)
}

func (r *Refresher) call(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
	if !r.dedup {
		return r.api.Refresh(ctx, refreshToken)
	}

	ch := r.group.DoChan(refreshToken, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		return r.api.Refresh(context.WithoutCancel(ctx), refreshToken)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*authapi.RefreshResult), nil
	}
}
