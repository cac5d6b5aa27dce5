package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ooredoo-bot/internal/identity"
	"ooredoo-bot/internal/ooredoo"
	"ooredoo-bot/internal/storage"
)

// fakeStore is an in-memory storage.Store.
type fakeStore struct {
	users map[int64]*storage.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*storage.User)}
}

func (f *fakeStore) user(chatID int64) *storage.User {
	u, ok := f.users[chatID]
	if !ok {
		u = &storage.User{ChatID: chatID}
		f.users[chatID] = u
	}
	return u
}

func (f *fakeStore) GetUser(ctx context.Context, chatID int64) (*storage.User, error) {
	u, ok := f.users[chatID]
	if !ok {
		return nil, fmt.Errorf("%w: user not found with chat ID %d", storage.ErrNotFound, chatID)
	}
	return u, nil
}

func (f *fakeStore) SaveDeviceIdentity(ctx context.Context, chatID int64, deviceUUID, instantID string) error {
	u := f.user(chatID)
	u.DeviceUUID = sql.NullString{String: deviceUUID, Valid: true}
	u.InstantID = sql.NullString{String: instantID, Valid: true}
	return nil
}

func (f *fakeStore) SaveCredentials(ctx context.Context, chatID int64, phone, access, refresh string, expiresIn int64) error {
	u := f.user(chatID)
	u.PhoneNumber = sql.NullString{String: phone, Valid: true}
	u.AccessToken = sql.NullString{String: access, Valid: true}
	u.RefreshToken = sql.NullString{String: refresh, Valid: true}
	u.TokenExpiresIn = sql.NullInt64{Int64: expiresIn, Valid: true}
	u.LastUpdated = time.Now()
	return nil
}

func (f *fakeStore) UpdatePlan(ctx context.Context, chatID int64, planType string) error {
	f.user(chatID).PlanType = sql.NullString{String: planType, Valid: true}
	return nil
}

func (f *fakeStore) UpdateLastPlayed(ctx context.Context, chatID int64, playedTime string) error {
	f.user(chatID).LastPlayedTime = sql.NullString{String: playedTime, Valid: true}
	return nil
}

// fakeClient is a scriptable CarrierClient.
type fakeClient struct {
	checkpointErr error
	requestOTPErr error
	verifyErr     error
	creds         ooredoo.Credentials
	plan          string
	packages      *ooredoo.Packages
	giftStatus    *ooredoo.GiftStatus
	giftStatusErr error
	playResult    *ooredoo.GiftPlayResult
	playErr       error

	checkpointCalls  int
	checkpointDevIDs []string
	giftStatusCalls  int
}

func (f *fakeClient) Checkpoint(ctx context.Context, msisdn, deviceUUID string) (ooredoo.HandshakeToken, error) {
	f.checkpointCalls++
	f.checkpointDevIDs = append(f.checkpointDevIDs, deviceUUID)
	if f.checkpointErr != nil {
		return ooredoo.HandshakeToken{}, f.checkpointErr
	}
	return ooredoo.HandshakeToken{Nonce: "n", Chronos: "c"}, nil
}

func (f *fakeClient) RequestOTP(ctx context.Context, msisdn string, hs ooredoo.HandshakeToken, deviceUUID string) error {
	return f.requestOTPErr
}

func (f *fakeClient) VerifyOTP(ctx context.Context, msisdn, otp string, hs ooredoo.HandshakeToken, deviceUUID string) (ooredoo.Credentials, error) {
	if f.verifyErr != nil {
		return ooredoo.Credentials{}, f.verifyErr
	}
	return f.creds, nil
}

func (f *fakeClient) ValidateUser(ctx context.Context, s ooredoo.Session) (string, error) {
	if f.plan == "" {
		return "Unknown", nil
	}
	return f.plan, nil
}

func (f *fakeClient) ActivePackages(ctx context.Context, s ooredoo.Session) (*ooredoo.Packages, error) {
	if f.packages == nil {
		return &ooredoo.Packages{AccountBalance: "0"}, nil
	}
	return f.packages, nil
}

func (f *fakeClient) FetchGiftStatus(ctx context.Context, s ooredoo.Session) (*ooredoo.GiftStatus, error) {
	f.giftStatusCalls++
	if f.giftStatusErr != nil {
		return nil, f.giftStatusErr
	}
	if f.giftStatus == nil {
		return &ooredoo.GiftStatus{}, nil
	}
	return f.giftStatus, nil
}

func (f *fakeClient) PlayGift(ctx context.Context, s ooredoo.Session, hs ooredoo.HandshakeToken) (*ooredoo.GiftPlayResult, error) {
	if f.playErr != nil {
		return nil, f.playErr
	}
	return f.playResult, nil
}

func newTestMachine(store *fakeStore, client *fakeClient) *Machine {
	logger := log.New(io.Discard, "", 0)
	return NewMachine(store, identity.NewProvider(store), client, logger)
}

func (m *Machine) stateOf(chatID int64) State {
	h := m.registry.Acquire(chatID)
	defer h.Release()
	return h.State()
}

func (m *Machine) setStateOf(chatID int64, s State) {
	h := m.registry.Acquire(chatID)
	defer h.Release()
	h.SetState(s)
}

const chatID = int64(42)

func TestStartNewUser(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, &fakeClient{})

	result, err := m.Start(context.Background(), chatID)
	require.NoError(t, err)
	assert.False(t, result.Authenticated)
	assert.Equal(t, PhaseAwaitingPhone, m.stateOf(chatID).Phase)

	// The device identity is synthesized eagerly.
	u := store.users[chatID]
	require.NotNil(t, u)
	assert.Len(t, u.InstantID.String, identity.InstantIDLength)
}

func TestStartAuthenticatedUser(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.SaveDeviceIdentity(context.Background(), chatID, "d", validInstantID()))
	require.NoError(t, store.SaveCredentials(context.Background(), chatID, "213551234567", "A", "R", 3600))

	client := &fakeClient{plan: "YOOZ"}
	m := newTestMachine(store, client)

	result, err := m.Start(context.Background(), chatID)
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
	require.NotNil(t, result.Dashboard)
	assert.Equal(t, "YOOZ", result.Dashboard.PlanType)
	assert.Equal(t, PhaseIdle, m.stateOf(chatID).Phase, "state does not change for a logged-in user")
}

func TestStartExpiredSessionRestartsLogin(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.SaveDeviceIdentity(context.Background(), chatID, "d", validInstantID()))
	require.NoError(t, store.SaveCredentials(context.Background(), chatID, "213551234567", "A", "R", 3600))
	store.users[chatID].LastUpdated = time.Now().Add(-2 * time.Hour) // past the 3600s expiry

	m := newTestMachine(store, &fakeClient{})

	result, err := m.Start(context.Background(), chatID)
	require.NoError(t, err)
	assert.False(t, result.Authenticated)
	assert.Equal(t, PhaseAwaitingPhone, m.stateOf(chatID).Phase)
}

func TestHandleTextIdleIsIgnored(t *testing.T) {
	m := newTestMachine(newFakeStore(), &fakeClient{})

	result, err := m.HandleText(context.Background(), chatID, "hello")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
}

func TestHandleTextPhoneStep(t *testing.T) {
	ctx := context.Background()

	t.Run("bad format rejected without state change", func(t *testing.T) {
		m := newTestMachine(newFakeStore(), &fakeClient{})
		m.setStateOf(chatID, State{Phase: PhaseAwaitingPhone})

		_, err := m.HandleText(ctx, chatID, "12345")
		require.Error(t, err)
		assert.ErrorIs(t, err, ooredoo.ErrValidation)
		assert.Equal(t, PhaseAwaitingPhone, m.stateOf(chatID).Phase)
	})

	t.Run("checkpoint failure keeps the state", func(t *testing.T) {
		client := &fakeClient{checkpointErr: fmt.Errorf("%w: checkpoint failed: status 500", ooredoo.ErrProtocol)}
		m := newTestMachine(newFakeStore(), client)
		m.setStateOf(chatID, State{Phase: PhaseAwaitingPhone})

		_, err := m.HandleText(ctx, chatID, "0551234567")
		require.Error(t, err)
		assert.ErrorIs(t, err, ooredoo.ErrProtocol)
		assert.Equal(t, PhaseAwaitingPhone, m.stateOf(chatID).Phase)
	})

	t.Run("dispatched OTP advances to the OTP step", func(t *testing.T) {
		m := newTestMachine(newFakeStore(), &fakeClient{})
		m.setStateOf(chatID, State{Phase: PhaseAwaitingPhone})

		result, err := m.HandleText(ctx, chatID, "0551234567")
		require.NoError(t, err)
		assert.Equal(t, OutcomeOTPSent, result.Outcome)

		state := m.stateOf(chatID)
		assert.Equal(t, PhaseAwaitingOTP, state.Phase)
		assert.Equal(t, "213551234567", state.Phone, "phone stored normalized")
	})

	t.Run("send failure keeps the state", func(t *testing.T) {
		client := &fakeClient{requestOTPErr: fmt.Errorf("%w: OTP send failed: status 400", ooredoo.ErrProtocol)}
		m := newTestMachine(newFakeStore(), client)
		m.setStateOf(chatID, State{Phase: PhaseAwaitingPhone})

		_, err := m.HandleText(ctx, chatID, "0551234567")
		require.Error(t, err)
		assert.Equal(t, PhaseAwaitingPhone, m.stateOf(chatID).Phase)
	})
}

func TestHandleTextOTPStep(t *testing.T) {
	ctx := context.Background()

	setup := func(client *fakeClient) (*Machine, *fakeStore) {
		store := newFakeStore()
		require.NoError(t, store.SaveDeviceIdentity(ctx, chatID, "d", validInstantID()))
		m := newTestMachine(store, client)
		m.setStateOf(chatID, State{Phase: PhaseAwaitingOTP, Phone: "213551234567"})
		return m, store
	}

	t.Run("verified code persists credentials and returns to idle", func(t *testing.T) {
		client := &fakeClient{creds: ooredoo.Credentials{AccessToken: "A", RefreshToken: "R", ExpiresIn: 3600}}
		m, store := setup(client)

		result, err := m.HandleText(ctx, chatID, "123456")
		require.NoError(t, err)
		assert.Equal(t, OutcomeLoggedIn, result.Outcome)
		assert.Equal(t, PhaseIdle, m.stateOf(chatID).Phase)

		u := store.users[chatID]
		assert.Equal(t, "A", u.AccessToken.String)
		assert.Equal(t, "R", u.RefreshToken.String)
		assert.Equal(t, "213551234567", u.PhoneNumber.String)
	})

	t.Run("wrong code keeps the state and the stored record", func(t *testing.T) {
		client := &fakeClient{verifyErr: fmt.Errorf("%w: OTP verify failed: status 401", ooredoo.ErrProtocol)}
		m, store := setup(client)

		_, err := m.HandleText(ctx, chatID, "000000")
		require.Error(t, err)
		assert.Equal(t, PhaseAwaitingOTP, m.stateOf(chatID).Phase)
		assert.False(t, store.users[chatID].Authenticated())
	})

	t.Run("checkpoint failure before verify keeps the state", func(t *testing.T) {
		client := &fakeClient{checkpointErr: errors.New("boom")}
		m, _ := setup(client)

		_, err := m.HandleText(ctx, chatID, "123456")
		require.Error(t, err)
		assert.Equal(t, PhaseAwaitingOTP, m.stateOf(chatID).Phase)
	})
}

func authenticatedStore(t *testing.T) *fakeStore {
	t.Helper()
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.SaveDeviceIdentity(ctx, chatID, "d", validInstantID()))
	require.NoError(t, store.SaveCredentials(ctx, chatID, "213551234567", "A", "R", 3600))
	return store
}

func TestDashboardGiftCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 13, 0, 0, 0, time.Local)

	t.Run("recent cached play skips the remote check", func(t *testing.T) {
		store := authenticatedStore(t)
		played := now.Add(-time.Hour).Format("2006-01-02T15:04:05")
		require.NoError(t, store.UpdateLastPlayed(ctx, chatID, played))

		client := &fakeClient{}
		m := newTestMachine(store, client)
		m.now = func() time.Time { return now }

		dash, err := m.Dashboard(ctx, chatID, false)
		require.NoError(t, err)
		assert.Zero(t, client.giftStatusCalls, "cache must suppress the status call")
		assert.False(t, dash.Gift.Claimable)
		assert.Equal(t, 23*time.Hour, dash.Gift.Remaining)
	})

	t.Run("stale cache triggers a remote check and updates the cache", func(t *testing.T) {
		store := authenticatedStore(t)
		stale := now.Add(-25 * time.Hour).Format("2006-01-02T15:04:05")
		require.NoError(t, store.UpdateLastPlayed(ctx, chatID, stale))

		fresh := now.Add(-time.Hour).Format("2006-01-02T15:04:05") + ".563"
		client := &fakeClient{giftStatus: &ooredoo.GiftStatus{Played: true, LastPlayedTime: fresh}}
		m := newTestMachine(store, client)
		m.now = func() time.Time { return now }

		dash, err := m.Dashboard(ctx, chatID, false)
		require.NoError(t, err)
		assert.Equal(t, 1, client.giftStatusCalls)
		assert.Equal(t, fresh, store.users[chatID].LastPlayedTime.String)
		assert.False(t, dash.Gift.Claimable)
		assert.Equal(t, 23*time.Hour, dash.Gift.Remaining)
	})

	t.Run("unplayed status is claimable without a cache write", func(t *testing.T) {
		store := authenticatedStore(t)
		client := &fakeClient{giftStatus: &ooredoo.GiftStatus{Played: false}}
		m := newTestMachine(store, client)
		m.now = func() time.Time { return now }

		dash, err := m.Dashboard(ctx, chatID, false)
		require.NoError(t, err)
		assert.True(t, dash.Gift.Claimable)
		assert.False(t, store.users[chatID].LastPlayedTime.Valid)
	})

	t.Run("status failure is reported, dashboard still renders", func(t *testing.T) {
		store := authenticatedStore(t)
		client := &fakeClient{giftStatusErr: fmt.Errorf("%w: gift status failed: status 500", ooredoo.ErrProtocol)}
		m := newTestMachine(store, client)
		m.now = func() time.Time { return now }

		dash, err := m.Dashboard(ctx, chatID, false)
		require.NoError(t, err)
		assert.Error(t, dash.Gift.Err)
		assert.False(t, dash.Gift.Claimable)
	})
}

func TestDashboardExpiredSession(t *testing.T) {
	store := authenticatedStore(t)
	store.users[chatID].LastUpdated = time.Now().Add(-2 * time.Hour)

	m := newTestMachine(store, &fakeClient{})

	_, err := m.Dashboard(context.Background(), chatID, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ooredoo.ErrSessionExpired)
}

func TestClaimGift(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 13, 30, 0, 0, time.Local)

	t.Run("successful claim updates the cooldown cache", func(t *testing.T) {
		store := authenticatedStore(t)
		playedTime := "2026-02-14T13:21:48.563"
		client := &fakeClient{playResult: &ooredoo.GiftPlayResult{
			GiftName:     "1GB",
			ValidityHour: "24",
			PlayedTime:   playedTime,
		}}
		m := newTestMachine(store, client)
		m.now = func() time.Time { return now }

		result, err := m.ClaimGift(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, "1GB", result.GiftName)
		assert.Equal(t, playedTime, store.users[chatID].LastPlayedTime.String)

		// The claim-path handshake omits the device ID.
		require.Len(t, client.checkpointDevIDs, 1)
		assert.Empty(t, client.checkpointDevIDs[0])

		// A dashboard right after relies on the cache: no status call,
		// nearly a full day remaining.
		dash, err := m.Dashboard(ctx, chatID, false)
		require.NoError(t, err)
		assert.Zero(t, client.giftStatusCalls)
		assert.False(t, dash.Gift.Claimable)
		assert.InDelta(t, (24 * time.Hour).Seconds(), dash.Gift.Remaining.Seconds(), (15 * time.Minute).Seconds())
	})

	t.Run("failed play leaves the cache untouched", func(t *testing.T) {
		store := authenticatedStore(t)
		client := &fakeClient{playErr: fmt.Errorf("%w: gift play failed: status 409", ooredoo.ErrProtocol)}
		m := newTestMachine(store, client)

		_, err := m.ClaimGift(ctx, chatID)
		require.Error(t, err)
		assert.False(t, store.users[chatID].LastPlayedTime.Valid)
	})

	t.Run("failed checkpoint never reaches play", func(t *testing.T) {
		store := authenticatedStore(t)
		client := &fakeClient{checkpointErr: errors.New("boom")}
		m := newTestMachine(store, client)

		_, err := m.ClaimGift(ctx, chatID)
		require.Error(t, err)
		assert.False(t, store.users[chatID].LastPlayedTime.Valid)
	})
}

func validInstantID() string {
	return "11111111-2222-3333-4444-555555555555" + "1700000000000"
}
