package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"ooredoo-bot/internal/storage"
)

const (
	// InstantIDLength is the length of a well-formed instant ID: a 36
	// character UUID followed by a 13 digit millisecond timestamp.
	InstantIDLength = 49

	uuidLength      = 36
	timestampDigits = 13
)

// Provider synthesizes and persists a stable per-user device identity. The
// carrier backend binds sessions to the instant ID, so once a valid one is
// stored it is never regenerated.
type Provider struct {
	store storage.Store
}

// NewProvider creates a device identity provider backed by the given store.
func NewProvider(store storage.Store) *Provider {
	return &Provider{store: store}
}

// GetOrCreate returns the device UUID and instant ID for a user, generating
// and persisting a fresh identity when none is stored or the stored value is
// malformed.
func (p *Provider) GetOrCreate(ctx context.Context, chatID int64) (deviceUUID, instantID string, err error) {
	user, err := p.store.GetUser(ctx, chatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", "", fmt.Errorf("loading device identity: %w", err)
	}

	if user != nil && user.InstantID.Valid && len(user.InstantID.String) == InstantIDLength {
		instantID = user.InstantID.String
		return instantID[:uuidLength], instantID, nil
	}

	// Malformed or absent: regenerate and persist.
	instantID, err = NewInstantID()
	if err != nil {
		return "", "", fmt.Errorf("generating instant ID: %w", err)
	}
	deviceUUID = instantID[:uuidLength]

	if err := p.store.SaveDeviceIdentity(ctx, chatID, deviceUUID, instantID); err != nil {
		return "", "", fmt.Errorf("persisting device identity: %w", err)
	}
	return deviceUUID, instantID, nil
}

// NewInstantID generates a time-ordered UUID and appends the millisecond Unix
// timestamp embedded in it, right-padded with zeros to 13 digits.
func NewInstantID() (string, error) {
	u, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("generating time-based UUID: %w", err)
	}

	sec, nsec := u.Time().UnixTime()
	ms := sec*1000 + nsec/1e6

	ts := strconv.FormatInt(ms, 10)
	for len(ts) < timestampDigits {
		ts += "0"
	}

	return u.String() + ts, nil
}
