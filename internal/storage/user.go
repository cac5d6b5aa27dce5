package storage

import (
	"database/sql"
	"time"

	"golang.org/x/oauth2"
)

// User represents one Telegram account and everything the carrier backend
// knows about it.
type User struct {
	ChatID         int64
	PhoneNumber    sql.NullString
	AccessToken    sql.NullString
	RefreshToken   sql.NullString
	TokenExpiresIn sql.NullInt64
	LastUpdated    time.Time
	DeviceUUID     sql.NullString
	InstantID      sql.NullString
	PlanType       sql.NullString
	LastPlayedTime sql.NullString
}

// Authenticated reports whether the user has a stored access token.
func (u *User) Authenticated() bool {
	return u != nil && u.AccessToken.Valid && u.AccessToken.String != ""
}

// OAuthToken builds the session credentials as an oauth2.Token so callers can
// use its expiry handling. Returns nil when the user has never logged in.
func (u *User) OAuthToken() *oauth2.Token {
	if !u.Authenticated() {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  u.AccessToken.String,
		RefreshToken: u.RefreshToken.String,
		TokenType:    "Bearer",
	}
	if u.TokenExpiresIn.Valid {
		tok.Expiry = u.LastUpdated.Add(time.Duration(u.TokenExpiresIn.Int64) * time.Second)
	}
	return tok
}

// SessionValid reports whether the stored access token exists and has not
// passed its advertised expiry.
func (u *User) SessionValid() bool {
	tok := u.OAuthToken()
	return tok != nil && tok.Valid()
}
