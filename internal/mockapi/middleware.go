package mockapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/telegram"
)

const (
	ctxUserID    = "user_id"
	ctxSessionID = "session_id"

	initDataMaxAge = 24 * time.Hour
)

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message, "code": code})
}

// RequestLogger tags each request with X-Request-ID and logs it on completion.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Telegram-Init-Data, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthMiddleware accepts a bearer token, a ?token= query parameter (websocket
// clients), or signed init-data in X-Telegram-Init-Data when botToken is set.
func AuthMiddleware(tokens *TokenService, ledger *Ledger, botToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format")
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			if initData := c.GetHeader("X-Telegram-Init-Data"); initData != "" && botToken != "" {
				user, err := telegramUser(initData, botToken)
				if err != nil {
					fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid init data")
					return
				}
				ledger.UpsertUser(*user)
				c.Set(ctxUserID, user.ID.String())
				c.Next()
				return
			}
			fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header required")
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			fail(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Invalid or expired token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxSessionID, claims.SessionID)
		c.Next()
	}
}

// telegramUser verifies init-data and maps its user onto a wallet profile.
func telegramUser(initData, botToken string) (*models.User, error) {
	data, err := telegram.Validate(initData, botToken, initDataMaxAge)
	if err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, telegram.ErrMissingUser
	}
	return &models.User{
		ID:        models.UserID(strconv.FormatInt(data.User.ID, 10)),
		FirstName: data.User.FirstName,
		LastName:  data.User.LastName,
		Username:  data.User.Username,
		PhotoURL:  data.User.PhotoURL,
	}, nil
}

// RateLimiter holds one token bucket per authenticated user.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) get(userID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = l
	}
	return l
}

// Middleware rejects wallet mutations past the per-user budget with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ctxUserID)
		if userID == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		if !rl.get(userID).Allow() {
			c.Header("Retry-After", "1")
			fail(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			return
		}
		c.Next()
	}
}
