package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"aetheris-web/internal/authapi"
	"aetheris-web/internal/domain"
	"aetheris-web/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func rotatingAPI(next time.Time) *testutil.MockAuthAPI {
	return &testutil.MockAuthAPI{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
			return &authapi.RefreshResult{
				AccessToken:  testutil.AccessTokenExpiringAt(next),
				RefreshToken: refreshToken + "-rotated",
			}, nil
		},
	}
}

func TestNeedsRefresh(t *testing.T) {
	tests := []struct {
		name    string
		expires int64
		want    bool
	}{
		{"expires_in_an_hour", fixedNow.Add(time.Hour).UnixMilli(), false},
		{"one_ms_outside_buffer", fixedNow.Add(30*time.Second).UnixMilli() + 1, false},
		{"exactly_at_buffer", fixedNow.Add(30 * time.Second).UnixMilli(), true},
		{"inside_buffer", fixedNow.Add(10 * time.Second).UnixMilli(), true},
		{"already_expired", fixedNow.Add(-time.Hour).UnixMilli(), true},
		{"unknown_expiry", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := domain.Token{AccessTokenExpires: tt.expires}
			assert.Equal(t, tt.want, NeedsRefresh(tok, fixedNow, DefaultRefreshBuffer))
		})
	}
}

func TestRefresh_FreshTokenIsUnchanged(t *testing.T) {
	offsets := []time.Duration{31 * time.Second, 5 * time.Minute, 24 * time.Hour}

	for _, offset := range offsets {
		t.Run(offset.String(), func(t *testing.T) {
			api := &testutil.MockAuthAPI{}
			r := NewRefresher(api, WithClock(fixedClock))
			tok := testutil.NewTestToken(testutil.WithTokenExpiresAt(fixedNow.Add(offset)))

			out := r.Refresh(context.Background(), tok)

			got, ok := out.Token()
			require.True(t, ok)
			assert.Equal(t, tok, got)
			assert.Equal(t, int32(0), api.RefreshCalls.Load())
		})
	}
}

func TestRefresh_DueTokenCallsAPIOnce(t *testing.T) {
	tests := []struct {
		name string
		opt  func(*testutil.TokenOptions)
	}{
		{"at_buffer_edge", testutil.WithTokenExpiresAt(fixedNow.Add(30 * time.Second))},
		{"inside_buffer", testutil.WithTokenExpiresAt(fixedNow.Add(time.Second))},
		{"expired", testutil.WithTokenExpiresAt(fixedNow.Add(-time.Hour))},
		{"malformed_access_token", testutil.WithUnknownExpiry()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := fixedNow.Add(15 * time.Minute).Truncate(time.Second)
			api := rotatingAPI(next)
			r := NewRefresher(api, WithClock(fixedClock))
			tok := testutil.NewTestToken(tt.opt, testutil.WithRefreshToken("rt-current"))

			out := r.Refresh(context.Background(), tok)

			assert.Equal(t, int32(1), api.RefreshCalls.Load())
			assert.Equal(t, []string{"rt-current"}, api.RefreshedWith())

			got, ok := out.Token()
			require.True(t, ok)
			assert.NotEqual(t, tok.AccessToken, got.AccessToken)
			assert.Equal(t, next.UnixMilli(), got.AccessTokenExpires)
			assert.Equal(t, "rt-current-rotated", got.RefreshToken)
			assert.Equal(t, tok.ID, got.ID)
			assert.Equal(t, tok.Email, got.Email)
			assert.Empty(t, got.Error)
		})
	}
}

func TestRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	api := &testutil.MockAuthAPI{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
			return &authapi.RefreshResult{AccessToken: testutil.AccessTokenExpiringAt(fixedNow.Add(time.Hour))}, nil
		},
	}
	r := NewRefresher(api, WithClock(fixedClock))
	tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow), testutil.WithRefreshToken("rt-keep"))

	got, ok := r.Refresh(context.Background(), tok).Token()

	require.True(t, ok)
	assert.Equal(t, "rt-keep", got.RefreshToken)
}

func TestRefresh_FailurePreservesTokens(t *testing.T) {
	failures := map[string]error{
		"api_error":     &authapi.APIError{StatusCode: 401},
		"malformed":     authapi.ErrMalformedResponse,
		"network_error": testutil.ErrMockUnavailable,
	}

	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			api := &testutil.MockAuthAPI{
				RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
					return nil, failure
				},
			}
			r := NewRefresher(api, WithClock(fixedClock))
			tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow))

			out := r.Refresh(context.Background(), tok)

			assert.True(t, out.IsErrored())
			assert.ErrorIs(t, out.Err(), domain.ErrRefreshAccessToken)
			_, ok := out.Token()
			assert.False(t, ok)

			last := out.LastKnown()
			assert.Equal(t, domain.RefreshAccessTokenError, last.Error)
			assert.Equal(t, tok.AccessToken, last.AccessToken)
			assert.Equal(t, tok.RefreshToken, last.RefreshToken)
			assert.Equal(t, tok.AccessTokenExpires, last.AccessTokenExpires)
		})
	}
}

func TestRefresh_EmptyAccessTokenIsFailure(t *testing.T) {
	api := &testutil.MockAuthAPI{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
			return &authapi.RefreshResult{RefreshToken: "rt-new"}, nil
		},
	}
	r := NewRefresher(api, WithClock(fixedClock))
	tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow), testutil.WithRefreshToken("rt-old"))

	out := r.Refresh(context.Background(), tok)

	require.True(t, out.IsErrored())
	last := out.LastKnown()
	assert.Equal(t, tok.AccessToken, last.AccessToken)
	assert.Equal(t, "rt-old", last.RefreshToken)
	assert.Equal(t, tok.AccessTokenExpires, last.AccessTokenExpires)
}

func TestRefresh_ExpiredFixtureIsDueAtTestClock(t *testing.T) {
	r := NewRefresher(&testutil.MockAuthAPI{}, WithClock(fixedClock))

	tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow))

	assert.Equal(t, fixedNow.Add(-time.Hour).UnixMilli(), tok.AccessTokenExpires)
	assert.True(t, r.NeedsRefresh(tok))
}

func TestRefresh_ErrorIsSticky(t *testing.T) {
	t.Run("fresh_errored_token_stays_errored", func(t *testing.T) {
		api := &testutil.MockAuthAPI{}
		r := NewRefresher(api, WithClock(fixedClock))
		tok := testutil.NewTestToken(
			testutil.WithTokenExpiresAt(fixedNow.Add(time.Hour)),
			testutil.WithRefreshError(),
		)

		out := r.Refresh(context.Background(), tok)

		assert.True(t, out.IsErrored())
		assert.Equal(t, int32(0), api.RefreshCalls.Load())
	})

	t.Run("successful_retry_keeps_flag", func(t *testing.T) {
		api := rotatingAPI(fixedNow.Add(time.Hour))
		r := NewRefresher(api, WithClock(fixedClock))
		tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow), testutil.WithRefreshError())

		out := r.Refresh(context.Background(), tok)

		assert.Equal(t, int32(1), api.RefreshCalls.Load())
		assert.True(t, out.IsErrored())
		assert.NotEqual(t, tok.AccessToken, out.LastKnown().AccessToken)
		assert.Equal(t, domain.RefreshAccessTokenError, out.LastKnown().Error)
	})
}

func TestRefresh_CustomBuffer(t *testing.T) {
	api := rotatingAPI(fixedNow.Add(time.Hour))
	r := NewRefresher(api, WithClock(fixedClock), WithBuffer(5*time.Minute))
	tok := testutil.NewTestToken(testutil.WithTokenExpiresAt(fixedNow.Add(4 * time.Minute)))

	r.Refresh(context.Background(), tok)

	assert.Equal(t, int32(1), api.RefreshCalls.Load())
}

// concurrentRefresh runs n refreshes of the same token while the API call
// is held open, then releases it.
func concurrentRefresh(t *testing.T, r *Refresher, tok domain.Token, n int, release chan struct{}) []domain.Outcome {
	t.Helper()
	outcomes := make([]domain.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = r.Refresh(context.Background(), tok)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	return outcomes
}

func TestRefresh_ConcurrentCallsAreCoalesced(t *testing.T) {
	release := make(chan struct{})
	next := fixedNow.Add(time.Hour).Truncate(time.Second)
	api := &testutil.MockAuthAPI{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
			<-release
			return &authapi.RefreshResult{AccessToken: testutil.AccessTokenExpiringAt(next), RefreshToken: "rt-2"}, nil
		},
	}
	r := NewRefresher(api, WithClock(fixedClock))
	tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow), testutil.WithRefreshToken("rt-1"))

	outcomes := concurrentRefresh(t, r, tok, 8, release)

	assert.Equal(t, int32(1), api.RefreshCalls.Load())
	first, ok := outcomes[0].Token()
	require.True(t, ok)
	for _, out := range outcomes {
		got, ok := out.Token()
		require.True(t, ok)
		assert.Equal(t, first, got)
		assert.Equal(t, "rt-2", got.RefreshToken)
	}
}

func TestRefresh_DedupDisabled(t *testing.T) {
	release := make(chan struct{})
	api := &testutil.MockAuthAPI{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
			<-release
			return &authapi.RefreshResult{AccessToken: testutil.AccessTokenExpiringAt(fixedNow.Add(time.Hour))}, nil
		},
	}
	r := NewRefresher(api, WithClock(fixedClock), WithDedup(false))
	tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow))

	concurrentRefresh(t, r, tok, 4, release)

	assert.Equal(t, int32(4), api.RefreshCalls.Load())
}

func TestRefresh_CanceledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	api := &testutil.MockAuthAPI{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error) {
			<-release
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return &authapi.RefreshResult{AccessToken: testutil.AccessTokenExpiringAt(fixedNow.Add(time.Hour))}, nil
		},
	}
	r := NewRefresher(api, WithClock(fixedClock))
	tok := testutil.NewTestToken(testutil.WithExpiredAccessToken(fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan domain.Outcome, 1)
	go func() { canceled <- r.Refresh(ctx, tok) }()
	time.Sleep(50 * time.Millisecond)

	survivor := make(chan domain.Outcome, 1)
	go func() { survivor <- r.Refresh(context.Background(), tok) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.True(t, (<-canceled).IsErrored())

	close(release)
	out := <-survivor
	assert.False(t, out.IsErrored())
	assert.Equal(t, int32(1), api.RefreshCalls.Load())
}
