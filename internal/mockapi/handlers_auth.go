package mockapi

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/telegram"
)

// WebModeInitData is the placeholder the web build sends outside Telegram.
const WebModeInitData = "web_mode_user"

type AuthHandler struct {
	ledger   *Ledger
	tokens   *TokenService
	botToken string
	email    string
	password string
}

func NewAuthHandler(ledger *Ledger, tokens *TokenService, botToken, email, password string) *AuthHandler {
	return &AuthHandler{
		ledger:   ledger,
		tokens:   tokens,
		botToken: botToken,
		email:    email,
		password: password,
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var (
		user *models.User
		err  error
	)
	if req.InitData != "" {
		user, err = h.identifyTelegram(req.InitData)
	} else {
		user, err = h.identifyPassword(req.Email, req.Password)
	}
	if err != nil {
		logger.Warn(c.Request.Context(), "login rejected", "method", req.Method(), "error", err)
		fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
		return
	}

	stored := h.ledger.UpsertUser(*user)
	access, err := h.tokens.Issue(stored.ID.String(), "")
	if err != nil {
		fail(c, http.StatusInternalServerError, "INTERNAL", "Failed to issue token")
		return
	}
	refresh := h.ledger.IssueRefreshToken(stored.ID.String(), h.tokens.RefreshTTL())

	respond(c, http.StatusOK, models.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         &stored,
	})
}

// identifyTelegram verifies init-data when a bot token is configured. Without
// one it trusts the payload, and web or malformed payloads get throwaway users.
func (h *AuthHandler) identifyTelegram(initData string) (*models.User, error) {
	if h.botToken != "" {
		if initData == WebModeInitData {
			return nil, errors.New("web mode login is disabled")
		}
		user, err := telegramUser(initData, h.botToken)
		if err != nil {
			return nil, err
		}
		user.Level = "Gold"
		return user, nil
	}

	if initData == WebModeInitData {
		return &models.User{
			ID:        models.UserID("web_" + shortID()),
			FirstName: "Web",
			LastName:  "Player",
			Username:  "webplayer",
			Level:     "Silver",
		}, nil
	}

	data, err := telegram.ParseInitData(initData)
	if err != nil || data.User == nil {
		return &models.User{
			ID:        models.UserID("guest_" + shortID()),
			FirstName: "Guest",
			LastName:  "Player",
			Username:  "guest",
			Level:     "Bronze",
		}, nil
	}
	return &models.User{
		ID:        models.UserID(strconv.FormatInt(data.User.ID, 10)),
		FirstName: data.User.FirstName,
		LastName:  data.User.LastName,
		Username:  data.User.Username,
		PhotoURL:  data.User.PhotoURL,
		Level:     "Gold",
	}, nil
}

func (h *AuthHandler) identifyPassword(email, password string) (*models.User, error) {
	if h.email == "" || !strings.EqualFold(email, h.email) ||
		subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) != 1 {
		return nil, errors.New("invalid email or password")
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email)))
	return &models.User{
		ID:          models.UserID("user_" + strings.ReplaceAll(id.String(), "-", "")[:12]),
		DisplayName: strings.SplitN(email, "@", 2)[0],
		Level:       "Silver",
	}, nil
}

// Refresh rotates a refresh token when one is posted, and otherwise re-issues
// from a signed bearer token that is still inside the refresh window.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	if req.RefreshToken != "" {
		userID, next, err := h.ledger.RotateRefreshToken(req.RefreshToken, h.tokens.RefreshTTL())
		if err != nil {
			fail(c, http.StatusUnauthorized, "REFRESH_INVALID", err.Error())
			return
		}
		access, err := h.tokens.Issue(userID, "")
		if err != nil {
			fail(c, http.StatusInternalServerError, "INTERNAL", "Failed to issue token")
			return
		}
		respond(c, http.StatusOK, models.RefreshResponse{AccessToken: access, RefreshToken: next})
		return
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		fail(c, http.StatusUnauthorized, "REFRESH_INVALID", "Refresh token required")
		return
	}
	claims, err := h.tokens.ValidateForRefresh(parts[1])
	if err != nil {
		fail(c, http.StatusUnauthorized, "REFRESH_INVALID", err.Error())
		return
	}
	if _, err := h.ledger.User(claims.UserID); err != nil {
		fail(c, http.StatusUnauthorized, "REFRESH_INVALID", err.Error())
		return
	}
	access, err := h.tokens.Issue(claims.UserID, claims.SessionID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "INTERNAL", "Failed to issue token")
		return
	}
	respond(c, http.StatusOK, models.RefreshResponse{AccessToken: access})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.ledger.User(c.GetString(ctxUserID))
	if err != nil {
		fail(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	respond(c, http.StatusOK, user)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
