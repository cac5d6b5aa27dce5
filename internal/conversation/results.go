package conversation

import (
	"time"

	"ooredoo-bot/internal/ooredoo"
)

// GiftInfo is the gift line of the dashboard. Exactly one of the three
// shapes holds: claimable now, cooling down with Remaining set, or a fetch
// failure recorded in Err.
type GiftInfo struct {
	Claimable bool
	Remaining time.Duration
	Err       error
}

// DashboardData is the structured account state handed to the presentation
// layer; all message formatting happens there.
type DashboardData struct {
	PlanType    string
	Packages    *ooredoo.Packages
	PackagesErr error
	Gift        GiftInfo
}

// StartResult is the outcome of a /start command.
type StartResult struct {
	// Authenticated is true when a valid session already exists; Dashboard
	// is populated in that case. Otherwise the user was moved to the
	// phone-entry step.
	Authenticated bool
	Dashboard     *DashboardData
}

// TextOutcome classifies what a free-text message did.
type TextOutcome int

const (
	// OutcomeIgnored means no login flow was active for the user.
	OutcomeIgnored TextOutcome = iota

	// OutcomeOTPSent means the phone was accepted and an OTP dispatched.
	OutcomeOTPSent

	// OutcomeLoggedIn means the OTP verified and credentials were saved.
	OutcomeLoggedIn
)

// TextResult is the outcome of a free-text message.
type TextResult struct {
	Outcome   TextOutcome
	Dashboard *DashboardData // set on OutcomeLoggedIn when the fetch succeeded
}

// ClaimResult is the outcome of a successful gift claim.
type ClaimResult struct {
	GiftName     string
	ValidityHour string
	PlayedTime   string
}
