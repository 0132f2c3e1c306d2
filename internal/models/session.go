package models

import "errors"

// Session is the persisted credential state. A non-empty AccessToken means the
// client considers itself authenticated until a call proves otherwise.
type Session struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user_data,omitempty"`
}

func (s Session) HasToken() bool {
	return s.AccessToken != ""
}

// LoginRequest is an identity assertion: either Telegram init-data or an
// email/password pair, never both.
type LoginRequest struct {
	InitData string `json:"init_data,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func TelegramLogin(initData string) LoginRequest {
	return LoginRequest{InitData: initData}
}

func PasswordLogin(email, password string) LoginRequest {
	return LoginRequest{Email: email, Password: password}
}

var (
	ErrEmptyAssertion     = errors.New("login requires init data or email and password")
	ErrAmbiguousAssertion = errors.New("login accepts init data or email and password, not both")
)

func (r LoginRequest) Validate() error {
	hasTelegram := r.InitData != ""
	hasPassword := r.Email != "" || r.Password != ""
	switch {
	case hasTelegram && hasPassword:
		return ErrAmbiguousAssertion
	case hasTelegram:
		return nil
	case r.Email != "" && r.Password != "":
		return nil
	default:
		return ErrEmptyAssertion
	}
}

// Method names the assertion type for logs.
func (r LoginRequest) Method() string {
	if r.InitData != "" {
		return "telegram"
	}
	return "password"
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
