package telegram_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniapp-wallet-client/internal/telegram"
)

const botToken = "123456:TEST-TOKEN"

func signedPayload(t *testing.T, authDate time.Time) string {
	t.Helper()
	values, err := telegram.NewUserValues(telegram.WebAppUser{
		ID:        987654321,
		FirstName: "Alem",
		Username:  "alem_plays",
	}, authDate)
	require.NoError(t, err)
	values.Set("query_id", "AAE-test")
	return telegram.Sign(values, botToken)
}

func TestValidate_RoundTrip(t *testing.T) {
	raw := signedPayload(t, time.Now())

	data, err := telegram.Validate(raw, botToken, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, data.User)
	assert.Equal(t, int64(987654321), data.User.ID)
	assert.Equal(t, "alem_plays", data.User.Username)
	assert.Equal(t, "AAE-test", data.QueryID)
}

func TestValidate_Rejects(t *testing.T) {
	fresh := signedPayload(t, time.Now())

	tampered, _ := url.ParseQuery(fresh)
	tampered.Set("query_id", "other")

	noHash, _ := url.ParseQuery(fresh)
	noHash.Del("hash")

	tests := []struct {
		name    string
		raw     string
		token   string
		maxAge  time.Duration
		wantErr error
	}{
		{"wrong bot token", fresh, "other-token", 0, telegram.ErrBadHash},
		{"tampered field", tampered.Encode(), botToken, 0, telegram.ErrBadHash},
		{"missing hash", noHash.Encode(), botToken, 0, telegram.ErrMissingHash},
		{"expired", signedPayload(t, time.Now().Add(-2*time.Hour)), botToken, time.Hour, telegram.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := telegram.Validate(tt.raw, tt.token, tt.maxAge)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseInitData_BadUser(t *testing.T) {
	_, err := telegram.ParseInitData("user=%7Bnot-json&auth_date=1")
	assert.Error(t, err)
}

func TestSign_ReplacesExistingHash(t *testing.T) {
	values := url.Values{"auth_date": {"1700000000"}, "hash": {"deadbeef"}}
	raw := telegram.Sign(values, botToken)

	assert.Equal(t, 1, strings.Count(raw, "hash="))
	_, err := telegram.Validate(raw, botToken, 0)
	assert.NoError(t, err)
}
