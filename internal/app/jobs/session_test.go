package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/account"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/internal/app/store"
)

type fakeSession struct {
	session *account.Session
	err     error
	calls   int
}

func (f *fakeSession) Session() *account.Session { return f.session }

func (f *fakeSession) RefreshSession(ctx context.Context) error {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("refresh without deadline")
	}
	return f.err
}

func TestNewSessionKeeper_Defaults(t *testing.T) {
	k, err := NewSessionKeeper(&fakeSession{}, "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionSchedule, k.schedule)
	assert.Equal(t, DefaultRefreshMargin, k.margin)
	assert.Equal(t, "session-keeper", k.Name())

	_, err = NewSessionKeeper(&fakeSession{}, "soonish", 0, nil)
	assert.ErrorContains(t, err, "parse session-keeper schedule")
}

func TestSessionKeeper_RefreshesInsideMargin(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	target := &fakeSession{}
	k, err := NewSessionKeeper(target, "", 5*time.Minute, nil)
	require.NoError(t, err)
	k.now = func() time.Time { return now }

	k.RunOnce(context.Background())
	assert.Zero(t, target.calls, "signed out")

	target.session = &account.Session{UserID: "u1"}
	k.RunOnce(context.Background())
	assert.Zero(t, target.calls, "no expiry known")

	target.session.ExpiresAt = now.Add(time.Hour)
	k.RunOnce(context.Background())
	assert.Zero(t, target.calls, "far from expiry")

	target.session.ExpiresAt = now.Add(4 * time.Minute)
	k.RunOnce(context.Background())
	assert.Equal(t, 1, target.calls)
	assert.Equal(t, 1, k.Refreshes())

	target.err = errors.New("refresh token revoked")
	k.RunOnce(context.Background())
	assert.Equal(t, 2, target.calls)
	assert.Equal(t, 1, k.Refreshes(), "failures are not counted")
}

func TestSessionKeeper_RenewsStoreSession(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mem := memory.New()
	mem.SetClock(func() time.Time { return clock })
	st := store.New(store.Backends{Catalog: mem, Orders: mem, Auth: mem}, store.Options{SkipInitialFetch: true})
	defer st.Close()
	require.NoError(t, st.Start(context.Background()))

	require.NoError(t, st.SignInWithOTP(context.Background(), "a@b.co"))
	first, err := st.VerifyOTP(context.Background(), "a@b.co", memory.OTPCode)
	require.NoError(t, err)

	k, err := NewSessionKeeper(st, "", 5*time.Minute, nil)
	require.NoError(t, err)
	k.now = func() time.Time { return clock.Add(58 * time.Minute) }
	k.RunOnce(context.Background())

	renewed := st.Session()
	require.NotNil(t, renewed)
	assert.NotEqual(t, first.AccessToken, renewed.AccessToken)
	assert.Equal(t, 1, k.Refreshes())
}
