package conversation

// Phase identifies where a user is in the login conversation.
type Phase int

const (
	// PhaseIdle means no login flow is in progress.
	PhaseIdle Phase = iota

	// PhaseAwaitingPhone means the bot asked for a phone number.
	PhaseAwaitingPhone

	// PhaseAwaitingOTP means an OTP was dispatched and the bot is waiting
	// for the code.
	PhaseAwaitingOTP
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingPhone:
		return "awaiting_phone"
	case PhaseAwaitingOTP:
		return "awaiting_otp"
	default:
		return "unknown"
	}
}

// State is the ephemeral conversational position of one user. Phone is set
// only in PhaseAwaitingOTP and is already normalized to international form.
type State struct {
	Phase Phase
	Phone string
}
