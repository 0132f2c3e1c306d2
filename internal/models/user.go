package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// UserID is a user identifier. Telegram users arrive with numeric ids and web or
// guest users with string ids, so both JSON forms decode into the same value.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) String() string {
	return string(id)
}

// User is the profile returned by login and /api/auth/me. Balance is a cached
// copy of the server ledger and is only authoritative right after a fetch.
type User struct {
	ID          UserID          `json:"id"`
	DisplayName string          `json:"display_name,omitempty"`
	FirstName   string          `json:"first_name,omitempty"`
	LastName    string          `json:"last_name,omitempty"`
	Username    string          `json:"username,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	PhotoURL    string          `json:"photo_url,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	Level       string          `json:"level,omitempty"`

	balanceSet bool
}

type userFields User

func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		userFields
		Balance *decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.userFields)
	if raw.Balance != nil {
		u.Balance = *raw.Balance
		u.balanceSet = true
	}
	return nil
}

// HasBalance reports whether the decoded profile carried a balance, zero included.
func (u *User) HasBalance() bool {
	return u != nil && u.balanceSet
}

// Name returns the best available human-readable name.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return "Player"
}

// Avatar prefers the explicit avatar over the Telegram photo.
func (u *User) Avatar() string {
	if u == nil {
		return ""
	}
	if u.AvatarURL != "" {
		return u.AvatarURL
	}
	return u.PhotoURL
}
