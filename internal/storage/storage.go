package storage

import (
	"context"
)

// Store defines the persistence contract for user accounts. Every write is a
// partial update: it touches only the fields it names and leaves the rest of
// the row alone.
type Store interface {
	GetUser(ctx context.Context, chatID int64) (*User, error)
	SaveDeviceIdentity(ctx context.Context, chatID int64, deviceUUID, instantID string) error
	SaveCredentials(ctx context.Context, chatID int64, phone, accessToken, refreshToken string, expiresIn int64) error
	UpdatePlan(ctx context.Context, chatID int64, planType string) error
	UpdateLastPlayed(ctx context.Context, chatID int64, playedTime string) error
}
