// Package telegram parses, signs and verifies Telegram Mini App init-data.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash = errors.New("init data: hash is missing")
	ErrBadHash     = errors.New("init data: signature mismatch")
	ErrExpired     = errors.New("init data: auth_date too old")
	ErrMissingUser = errors.New("init data: user is missing")
)

// WebAppUser is the "user" field of init-data.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

type InitData struct {
	QueryID  string
	User     *WebAppUser
	AuthDate time.Time
	Hash     string
	Raw      url.Values
}

func ParseInitData(raw string) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("init data: %w", err)
	}

	data := &InitData{
		QueryID: values.Get("query_id"),
		Hash:    values.Get("hash"),
		Raw:     values,
	}

	if s := values.Get("auth_date"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("init data: invalid auth_date: %w", err)
		}
		data.AuthDate = time.Unix(sec, 0)
	}

	if s := values.Get("user"); s != "" {
		var user WebAppUser
		if err := json.Unmarshal([]byte(s), &user); err != nil {
			return nil, fmt.Errorf("init data: invalid user: %w", err)
		}
		data.User = &user
	}

	return data, nil
}

// Validate checks the HMAC signature against botToken and, when maxAge > 0,
// rejects payloads whose auth_date is older than maxAge.
func Validate(raw, botToken string, maxAge time.Duration) (*InitData, error) {
	data, err := ParseInitData(raw)
	if err != nil {
		return nil, err
	}
	if data.Hash == "" {
		return nil, ErrMissingHash
	}

	expected := signature(data.Raw, botToken)
	got, err := hex.DecodeString(data.Hash)
	if err != nil || !hmac.Equal(got, expected) {
		return nil, ErrBadHash
	}

	if maxAge > 0 && time.Since(data.AuthDate) > maxAge {
		return nil, ErrExpired
	}
	return data, nil
}

// Sign returns values encoded with a valid hash for botToken.
func Sign(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		if k == "hash" {
			continue
		}
		signed[k] = v
	}
	signed.Set("hash", hex.EncodeToString(signature(signed, botToken)))
	return signed.Encode()
}

// NewUserValues builds the fields a Telegram client would send for user.
func NewUserValues(user WebAppUser, authDate time.Time) (url.Values, error) {
	encoded, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("user", string(encoded))
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	return v, nil
}

func signature(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(lines, "\n")))
	return h.Sum(nil)
}
