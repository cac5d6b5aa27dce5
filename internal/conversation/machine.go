package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ooredoo-bot/internal/gift"
	"ooredoo-bot/internal/identity"
	"ooredoo-bot/internal/ooredoo"
	"ooredoo-bot/internal/storage"
)

// CarrierClient is the slice of the carrier API the conversation drives.
type CarrierClient interface {
	Checkpoint(ctx context.Context, msisdn, deviceUUID string) (ooredoo.HandshakeToken, error)
	RequestOTP(ctx context.Context, msisdn string, hs ooredoo.HandshakeToken, deviceUUID string) error
	VerifyOTP(ctx context.Context, msisdn, otp string, hs ooredoo.HandshakeToken, deviceUUID string) (ooredoo.Credentials, error)
	ValidateUser(ctx context.Context, s ooredoo.Session) (string, error)
	ActivePackages(ctx context.Context, s ooredoo.Session) (*ooredoo.Packages, error)
	FetchGiftStatus(ctx context.Context, s ooredoo.Session) (*ooredoo.GiftStatus, error)
	PlayGift(ctx context.Context, s ooredoo.Session, hs ooredoo.HandshakeToken) (*ooredoo.GiftPlayResult, error)
}

// Machine sequences each user through phone entry, OTP entry and the
// authenticated dashboard. All per-user work happens under the registry's
// exclusion scope, so a second message arriving mid-handshake waits instead
// of interleaving.
type Machine struct {
	registry *Registry
	store    storage.Store
	devices  *identity.Provider
	client   CarrierClient
	logger   *log.Logger
	now      func() time.Time
}

// NewMachine creates a conversation machine.
func NewMachine(store storage.Store, devices *identity.Provider, client CarrierClient, logger *log.Logger) *Machine {
	return &Machine{
		registry: NewRegistry(),
		store:    store,
		devices:  devices,
		client:   client,
		logger:   logger,
		now:      time.Now,
	}
}

// Start handles the /start command. A user with a still-valid session goes
// straight to the dashboard; everyone else is asked for their phone number.
// An expired session restarts the login flow rather than operating on a dead
// token.
func (m *Machine) Start(ctx context.Context, chatID int64) (*StartResult, error) {
	h := m.registry.Acquire(chatID)
	defer h.Release()

	if _, _, err := m.devices.GetOrCreate(ctx, chatID); err != nil {
		return nil, err
	}

	user, err := m.store.GetUser(ctx, chatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if user.Authenticated() && user.SessionValid() {
		dash, err := m.buildDashboard(ctx, chatID, user, false)
		if err != nil {
			return nil, err
		}
		return &StartResult{Authenticated: true, Dashboard: dash}, nil
	}

	h.SetState(State{Phase: PhaseAwaitingPhone})
	return &StartResult{}, nil
}

// HandleText routes a free-text message according to the user's current
// phase. On any failure the state stays exactly where it was so the user can
// retry; nonce/chronos pairs are never reused across attempts.
func (m *Machine) HandleText(ctx context.Context, chatID int64, text string) (*TextResult, error) {
	h := m.registry.Acquire(chatID)
	defer h.Release()

	deviceUUID, _, err := m.devices.GetOrCreate(ctx, chatID)
	if err != nil {
		return nil, err
	}

	state := h.State()
	text = strings.TrimSpace(text)

	switch state.Phase {
	case PhaseAwaitingPhone:
		msisdn, err := ooredoo.NormalizeMSISDN(text)
		if err != nil {
			return nil, err
		}

		hs, err := m.client.Checkpoint(ctx, msisdn, deviceUUID)
		if err != nil {
			return nil, err
		}
		if err := m.client.RequestOTP(ctx, msisdn, hs, deviceUUID); err != nil {
			return nil, err
		}

		h.SetState(State{Phase: PhaseAwaitingOTP, Phone: msisdn})
		return &TextResult{Outcome: OutcomeOTPSent}, nil

	case PhaseAwaitingOTP:
		hs, err := m.client.Checkpoint(ctx, state.Phone, deviceUUID)
		if err != nil {
			return nil, err
		}
		creds, err := m.client.VerifyOTP(ctx, state.Phone, text, hs, deviceUUID)
		if err != nil {
			return nil, err
		}

		if err := m.store.SaveCredentials(ctx, chatID, state.Phone, creds.AccessToken, creds.RefreshToken, creds.ExpiresIn); err != nil {
			return nil, err
		}
		h.SetState(State{Phase: PhaseIdle})

		result := &TextResult{Outcome: OutcomeLoggedIn}
		user, err := m.store.GetUser(ctx, chatID)
		if err != nil {
			m.logger.Printf("reloading user %d after login: %v", chatID, err)
			return result, nil
		}
		dash, err := m.buildDashboard(ctx, chatID, user, false)
		if err != nil {
			m.logger.Printf("building dashboard for %d after login: %v", chatID, err)
			return result, nil
		}
		result.Dashboard = dash
		return result, nil

	default:
		return &TextResult{Outcome: OutcomeIgnored}, nil
	}
}

// Dashboard builds the account dashboard for an authenticated user. With
// cachedPlan set, a stored plan type is used instead of a validate call, as
// the refresh button does.
func (m *Machine) Dashboard(ctx context.Context, chatID int64, cachedPlan bool) (*DashboardData, error) {
	h := m.registry.Acquire(chatID)
	defer h.Release()

	user, err := m.store.GetUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return m.buildDashboard(ctx, chatID, user, cachedPlan)
}

// ClaimGift performs the two-step claim: a fresh checkpoint handshake, then
// the play call with fingerprint plus nonce/chronos headers. The cooldown
// cache is updated only after the play call succeeds.
func (m *Machine) ClaimGift(ctx context.Context, chatID int64) (*ClaimResult, error) {
	h := m.registry.Acquire(chatID)
	defer h.Release()

	user, err := m.store.GetUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sess, err := m.session(user)
	if err != nil {
		return nil, err
	}

	// The mobile app omits X-Device-ID on the claim-path handshake.
	hs, err := m.client.Checkpoint(ctx, sess.MSISDN, "")
	if err != nil {
		return nil, err
	}

	res, err := m.client.PlayGift(ctx, *sess, hs)
	if err != nil {
		return nil, err
	}

	if res.PlayedTime != "" {
		if err := m.store.UpdateLastPlayed(ctx, chatID, res.PlayedTime); err != nil {
			m.logger.Printf("caching played time for %d: %v", chatID, err)
		}
	}

	return &ClaimResult{
		GiftName:     res.GiftName,
		ValidityHour: res.ValidityHour,
		PlayedTime:   res.PlayedTime,
	}, nil
}

// session assembles the authenticated-request material from a stored user.
func (m *Machine) session(user *storage.User) (*ooredoo.Session, error) {
	if !user.Authenticated() {
		return nil, fmt.Errorf("%w: no stored credentials", ooredoo.ErrSessionExpired)
	}
	if !user.SessionValid() {
		return nil, fmt.Errorf("%w: access token past expiry", ooredoo.ErrSessionExpired)
	}
	if !user.InstantID.Valid || !user.PhoneNumber.Valid {
		return nil, fmt.Errorf("%w: account record incomplete", ooredoo.ErrSessionExpired)
	}

	msisdn, err := ooredoo.NormalizeMSISDN(user.PhoneNumber.String)
	if err != nil {
		// Legacy rows may hold an unnormalizable value; pass it through.
		msisdn = user.PhoneNumber.String
	}

	return &ooredoo.Session{
		AccessToken: user.AccessToken.String,
		MSISDN:      msisdn,
		InstantID:   user.InstantID.String,
	}, nil
}

func (m *Machine) buildDashboard(ctx context.Context, chatID int64, user *storage.User, cachedPlan bool) (*DashboardData, error) {
	sess, err := m.session(user)
	if err != nil {
		return nil, err
	}

	dash := &DashboardData{}

	if cachedPlan && user.PlanType.Valid && user.PlanType.String != "" {
		dash.PlanType = user.PlanType.String
	} else {
		plan, err := m.client.ValidateUser(ctx, *sess)
		if err != nil {
			m.logger.Printf("fetching plan for %d: %v", chatID, err)
			plan = "Unknown"
		} else if err := m.store.UpdatePlan(ctx, chatID, plan); err != nil {
			m.logger.Printf("caching plan for %d: %v", chatID, err)
		}
		dash.PlanType = plan
	}

	dash.Packages, dash.PackagesErr = m.client.ActivePackages(ctx, *sess)
	dash.Gift = m.giftInfo(ctx, chatID, *sess, user.LastPlayedTime.String)

	return dash, nil
}

// giftInfo answers the gift question, consulting the cooldown cache first and
// calling the status endpoint only when the cache cannot decide.
func (m *Machine) giftInfo(ctx context.Context, chatID int64, sess ooredoo.Session, cachedLastPlayed string) GiftInfo {
	if d := gift.Decide(cachedLastPlayed, m.now()); !d.RemoteCheck {
		return GiftInfo{Remaining: d.Remaining}
	}

	status, err := m.client.FetchGiftStatus(ctx, sess)
	if err != nil {
		return GiftInfo{Err: err}
	}

	if !status.Played || status.LastPlayedTime == "" {
		return GiftInfo{Claimable: true}
	}

	if err := m.store.UpdateLastPlayed(ctx, chatID, status.LastPlayedTime); err != nil {
		m.logger.Printf("caching played time for %d: %v", chatID, err)
	}

	playedAt, err := gift.ParsePlayedTime(status.LastPlayedTime)
	if err != nil {
		return GiftInfo{Err: fmt.Errorf("%w: unparsable played time %q", ooredoo.ErrProtocol, status.LastPlayedTime)}
	}

	remaining := playedAt.Add(gift.Cooldown).Sub(m.now())
	if remaining <= 0 {
		return GiftInfo{Claimable: true}
	}
	return GiftInfo{Remaining: remaining}
}
