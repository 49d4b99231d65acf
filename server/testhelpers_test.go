package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
	"github.com/GoCodeAlone/tms/config"
	"github.com/GoCodeAlone/tms/internal/storage"
	"github.com/GoCodeAlone/tms/task"
	"github.com/GoCodeAlone/tms/user"
)

const (
	testSecret     = "test-secret-key-1234567890"
	testAdminEmail = "admin@example.com"
	testAdminPass  = "admin-pass"
)

// testServer is a fully wired server backed by a temporary database.
type testServer struct {
	srv     *Server
	handler http.Handler
	codec   *auth.Codec
	bus     *comms.InMemoryBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":0", CORSOrigin: "http://localhost:8081"},
		Auth: config.AuthConfig{
			AdminUser:  testAdminEmail,
			AdminPass:  testAdminPass,
			JWTSecret:  testSecret,
			BcryptCost: bcrypt.MinCost,
		},
		Env: "test",
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "tms.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec, err := auth.NewCodec(cfg.Auth.JWTSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	userStore := user.NewSQLiteStore(db)
	users := user.NewService(userStore, auth.NewPasswordHasher(cfg.Auth.BcryptCost), codec, logger)
	if err := users.EnsureAdmin(context.Background(), cfg.Auth.AdminUser, cfg.Auth.AdminPass); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	bus := comms.NewInMemoryBus()

	srv := New(cfg, "test", logger)
	srv.SetAuthenticator(&auth.Authenticator{Codec: codec, Resolver: auth.NewResolver(userStore)})
	srv.SetUserService(users)
	srv.SetTaskService(task.NewService(task.NewSQLiteStore(db), bus, logger))
	srv.SetBus(bus)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	return &testServer{srv: srv, handler: srv.Handler(), codec: codec, bus: bus}
}

// do sends a request with an optional bearer token and JSON body.
func (ts *testServer) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

// register creates an account and returns its token.
func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w := ts.do(t, "", http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, w.Code, w.Body.String())
	}
	return decodeToken(t, w)
}

// login returns a token for an existing account.
func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := ts.do(t, "", http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, w.Code, w.Body.String())
	}
	return decodeToken(t, w)
}

// me returns the principal behind token.
func (ts *testServer) me(t *testing.T, token string) auth.Principal {
	t.Helper()
	w := ts.do(t, token, http.MethodGet, "/api/auth/me", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var p auth.Principal
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode principal: %v", err)
	}
	return p
}

func decodeToken(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}
	return resp.Token
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Message
}
