package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// SQLiteStore handles all database operations for user accounts.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore wraps an already-open database handle.
func NewSQLiteStore(db *sql.DB, path string) *SQLiteStore {
	return &SQLiteStore{db: db, path: path}
}

// DB exposes the underlying handle for lifecycle management.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func validateChatID(chatID int64) error {
	if chatID <= 0 {
		return fmt.Errorf("%w: chat ID must be positive", ErrInvalidInput)
	}
	return nil
}

// GetUser retrieves a user by their Telegram chat ID.
func (s *SQLiteStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	if err := validateChatID(chatID); err != nil {
		return nil, err
	}

	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			chat_id, phone_number, access_token, refresh_token,
			token_expires_in, last_updated, device_uuid, instant_id,
			plan_type, last_played_time
		FROM users
		WHERE chat_id = ?`,
		chatID).Scan(
		&user.ChatID,
		&user.PhoneNumber,
		&user.AccessToken,
		&user.RefreshToken,
		&user.TokenExpiresIn,
		&user.LastUpdated,
		&user.DeviceUUID,
		&user.InstantID,
		&user.PlanType,
		&user.LastPlayedTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user not found with chat ID %d", ErrNotFound, chatID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// SaveDeviceIdentity stores the synthesized device identity for a user,
// creating the row if it does not exist yet.
func (s *SQLiteStore) SaveDeviceIdentity(ctx context.Context, chatID int64, deviceUUID, instantID string) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	if deviceUUID == "" || instantID == "" {
		return fmt.Errorf("%w: device identity cannot be empty", ErrInvalidInput)
	}

	query := `
		INSERT INTO users (chat_id, device_uuid, instant_id, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			device_uuid = excluded.device_uuid,
			instant_id = excluded.instant_id,
			last_updated = excluded.last_updated
	`
	_, err := s.db.ExecContext(ctx, query, chatID, deviceUUID, instantID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save device identity: %w", err)
	}
	return nil
}

// SaveCredentials stores the session credentials obtained from a successful
// OTP verification, creating the row if it does not exist yet.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, chatID int64, phone, accessToken, refreshToken string, expiresIn int64) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	if phone == "" {
		return fmt.Errorf("%w: phone number cannot be empty", ErrInvalidInput)
	}
	if accessToken == "" {
		return fmt.Errorf("%w: access token cannot be empty", ErrInvalidInput)
	}

	query := `
		INSERT INTO users (chat_id, phone_number, access_token, refresh_token, token_expires_in, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			phone_number = excluded.phone_number,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_in = excluded.token_expires_in,
			last_updated = excluded.last_updated
	`
	_, err := s.db.ExecContext(ctx, query, chatID, phone, accessToken, refreshToken, expiresIn, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// UpdatePlan records the last known subscription plan for a user.
func (s *SQLiteStore) UpdatePlan(ctx context.Context, chatID int64, planType string) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET plan_type = ? WHERE chat_id = ?`, planType, chatID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return requireRowsAffected(result, chatID)
}

// UpdateLastPlayed records the timestamp of the last successful gift claim.
func (s *SQLiteStore) UpdateLastPlayed(ctx context.Context, chatID int64, playedTime string) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	if playedTime == "" {
		return fmt.Errorf("%w: played time cannot be empty", ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_played_time = ? WHERE chat_id = ?`, playedTime, chatID)
	if err != nil {
		return fmt.Errorf("failed to update last played time: %w", err)
	}
	return requireRowsAffected(result, chatID)
}

func requireRowsAffected(result sql.Result, chatID int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user not found with chat ID %d", ErrNotFound, chatID)
	}
	return nil
}
