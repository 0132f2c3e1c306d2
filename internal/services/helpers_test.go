package services_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/services"
	"miniapp-wallet-client/internal/storage"
	"miniapp-wallet-client/internal/transport"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// stubAPI serves canned responses and records every request it sees.
type stubAPI struct {
	mux *http.ServeMux
	srv *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newStubAPI(t *testing.T) *stubAPI {
	t.Helper()
	s := &stubAPI{mux: http.NewServeMux()}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		s.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubAPI) URL() string {
	return s.srv.URL
}

// reply registers a fixed JSON response for pattern, e.g. "GET /api/wallet/balance".
func (s *stubAPI) reply(pattern string, status int, body any) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

func (s *stubAPI) handle(pattern string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, fn)
}

func (s *stubAPI) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubAPI) countPath(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *stubAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests, "no request reached the server")
	return s.requests[len(s.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func ok(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

type harness struct {
	store   *storage.MemoryStore
	client  *transport.Client
	cache   *services.BalanceCache
	auth    *services.AuthService
	wallet  *services.WalletService
	session *services.Session
}

func newHarness(t *testing.T, baseURL string, limits ...models.CurrencyLimits) *harness {
	t.Helper()
	store := storage.NewMemoryStore()
	client, err := transport.New(transport.Options{BaseURL: baseURL, Store: store})
	require.NoError(t, err)

	cache := services.NewBalanceCache()
	auth := services.NewAuthService(client)
	return &harness{
		store:   store,
		client:  client,
		cache:   cache,
		auth:    auth,
		wallet:  services.NewWalletService(client, cache, limits...),
		session: services.NewSession(auth, client, cache),
	}
}
