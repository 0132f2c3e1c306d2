package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/transport"
)

const (
	PathWebSocket = "/api/ws"

	MessageBalanceUpdate = "BALANCE_UPDATE"
	MessagePing          = "PING"
	MessagePong          = "PONG"

	defaultPingInterval = 25 * time.Second
	writeWait           = 5 * time.Second
)

// FeedMessage is the push envelope used on /api/ws.
type FeedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type balanceUpdate struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency,omitempty"`
}

// BalanceFeed streams server balance pushes into a BalanceCache.
type BalanceFeed struct {
	client       *transport.Client
	cache        *BalanceCache
	dialer       *websocket.Dialer
	PingInterval time.Duration
}

func NewBalanceFeed(client *transport.Client, cache *BalanceCache) *BalanceFeed {
	return &BalanceFeed{
		client:       client,
		cache:        cache,
		dialer:       websocket.DefaultDialer,
		PingInterval: defaultPingInterval,
	}
}

// URL maps the API base URL onto the websocket endpoint.
func (f *BalanceFeed) URL() string {
	base := f.client.BaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + PathWebSocket
}

// Run connects and applies updates until ctx ends or the server closes.
func (f *BalanceFeed) Run(ctx context.Context) error {
	creds, err := f.client.Store().Load(ctx)
	if err != nil {
		return err
	}
	if !creds.HasToken() {
		return apierror.Auth("not logged in", nil)
	}

	header := http.Header{}
	header.Set(transport.HeaderAuthorization, "Bearer "+creds.AccessToken)
	if initData := f.client.InitData(); initData != "" {
		header.Set(transport.HeaderInitData, initData)
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.URL(), header)
	if err != nil {
		if resp != nil {
			return apierror.API(resp.StatusCode, "", "websocket handshake rejected")
		}
		return apierror.Network("websocket dial failed", err)
	}
	defer conn.Close()

	logger.Info(ctx, "balance feed connected", "url", f.URL())

	var writeMu sync.Mutex
	write := func(msg FeedMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(f.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := write(FeedMessage{Type: MessagePing}); err != nil {
					logger.Debug(ctx, "balance feed ping failed", "error", err)
					return
				}
			case <-ctx.Done():
				writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				writeMu.Unlock()
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		var msg FeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return apierror.Network("balance feed read failed", err)
		}
		f.handle(ctx, msg)
	}
}

func (f *BalanceFeed) handle(ctx context.Context, msg FeedMessage) {
	switch msg.Type {
	case MessageBalanceUpdate:
		var update balanceUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			logger.Warn(ctx, "malformed balance update", "error", err)
			return
		}
		f.cache.Set(update.Balance, update.Currency)
	case MessagePong:
	default:
		logger.Debug(ctx, "ignoring feed message", "type", msg.Type)
	}
}
