package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/CrowderSoup/taskmaster/database"
	"github.com/CrowderSoup/taskmaster/services"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type brokenStore struct{}

func (brokenStore) Ping(ctx context.Context) error { return errors.New("database is closed") }

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	db, err := database.InitDB(database.DriverModernc, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.Out = io.Discard

	tokens, err := services.NewTokenIssuer(services.TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
	})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	store := database.NewStore(db)
	guard := services.NewOwnershipGuard(store)
	return Deps{
		Auth:   services.NewAuthService(store, services.NewPasswordHasher(), tokens, log),
		Boards: services.NewBoardService(store, guard),
		Tasks:  services.NewTaskService(store, guard),
		Store:  store,
		Log:    log,
	}
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	return NewRouter("/api", newTestDeps(t))
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T interface{}](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// signup registers and logs in a user, returning its tokens.
func signup(t *testing.T, h http.Handler, username string) services.TokenPair {
	t.Helper()
	creds := map[string]string{"username": username, "password": "password"}
	expectStatus(t, do(t, h, "POST", "/api/register", "", creds), http.StatusCreated)
	rec := do(t, h, "POST", "/api/login", "", creds)
	expectStatus(t, rec, http.StatusOK)
	return decode[services.TokenPair](t, rec)
}

func TestAuthFlow(t *testing.T) {
	h := newTestRouter(t)
	creds := map[string]string{"username": "u_user", "password": "password"}

	rec := do(t, h, "POST", "/api/register", "", creds)
	expectStatus(t, rec, http.StatusCreated)
	reg := decode[registerResponse](t, rec)
	if reg.Message != "User registered successfully" || reg.UserID <= 0 {
		t.Fatalf("unexpected register response: %+v", reg)
	}

	expectStatus(t, do(t, h, "POST", "/api/register", "", creds), http.StatusBadRequest)

	rec = do(t, h, "POST", "/api/login", "", creds)
	expectStatus(t, rec, http.StatusOK)
	pair := decode[services.TokenPair](t, rec)

	rec = do(t, h, "POST", "/api/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	expectStatus(t, rec, http.StatusOK)
	refreshed := decode[refreshResponse](t, rec)
	expectStatus(t, do(t, h, "GET", "/api/boards", refreshed.AccessToken, nil), http.StatusOK)

	rec = do(t, h, "POST", "/api/logout", pair.AccessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[messageResponse](t, rec); msg.Message != "Logged out successfully" {
		t.Fatalf("unexpected logout message: %q", msg.Message)
	}

	rec = do(t, h, "POST", "/api/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestLoginFailures(t *testing.T) {
	h := newTestRouter(t)
	signup(t, h, "u_user")

	wrong := do(t, h, "POST", "/api/login", "", map[string]string{"username": "u_user", "password": "wrong"})
	missing := do(t, h, "POST", "/api/login", "", map[string]string{"username": "nouser", "password": "x"})
	expectStatus(t, wrong, http.StatusUnauthorized)
	expectStatus(t, missing, http.StatusUnauthorized)
	if wrong.Body.String() != missing.Body.String() {
		t.Fatalf("login failures differ: %s vs %s", wrong.Body, missing.Body)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "POST", "/api/register", "", map[string]string{"username": "ab", "password": "123"})
	expectStatus(t, rec, http.StatusBadRequest)
	resp := decode[errorResponse](t, rec)
	if resp.Error != "Validation Error" || len(resp.Details) != 2 {
		t.Fatalf("unexpected validation response: %+v", resp)
	}

	expectStatus(t, do(t, h, "POST", "/api/login", "", "{not json"), http.StatusBadRequest)
	expectStatus(t, do(t, h, "POST", "/api/refresh", "", nil), http.StatusBadRequest)
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "GET", "/api/boards", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if resp := decode[errorResponse](t, rec); resp.Error != "Missing authorization header" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}

	req := httptest.NewRequest("GET", "/api/boards", nil)
	req.Header.Set("Authorization", "Token abc")
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	expectStatus(t, bad, http.StatusUnauthorized)

	rec = do(t, h, "GET", "/api/boards", "not-a-jwt", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if resp := decode[errorResponse](t, rec); resp.Error != "Invalid token" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}

	pair := signup(t, h, "alice")
	expectStatus(t, do(t, h, "GET", "/api/boards", pair.RefreshToken, nil), http.StatusUnauthorized)
}

func TestBoardAndTaskCRUD(t *testing.T) {
	h := newTestRouter(t)
	token := signup(t, h, "alice").AccessToken

	rec := do(t, h, "GET", "/api/boards", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty array, got %q", got)
	}

	rec = do(t, h, "POST", "/api/boards", token, map[string]string{"name": "Home"})
	expectStatus(t, rec, http.StatusCreated)
	board := decode[database.Board](t, rec)

	rec = do(t, h, "PUT", fmt.Sprintf("/api/boards/%d", board.ID), token, map[string]string{"name": "House"})
	expectStatus(t, rec, http.StatusOK)
	if b := decode[database.Board](t, rec); b.Name != "House" {
		t.Fatalf("expected renamed board, got %+v", b)
	}

	rec = do(t, h, "POST", fmt.Sprintf("/api/boards/%d/tasks", board.ID), token, map[string]string{"title": "Dishes"})
	expectStatus(t, rec, http.StatusCreated)
	task := decode[database.Task](t, rec)
	if task.Completed || task.BoardID != board.ID {
		t.Fatalf("unexpected task: %+v", task)
	}

	rec = do(t, h, "PUT", fmt.Sprintf("/api/tasks/%d", task.ID), token, map[string]bool{"completed": true})
	expectStatus(t, rec, http.StatusOK)
	if updated := decode[database.Task](t, rec); !updated.Completed || updated.Title != "Dishes" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	expectStatus(t, do(t, h, "PUT", fmt.Sprintf("/api/tasks/%d", task.ID), token, map[string]interface{}{}), http.StatusBadRequest)

	rec = do(t, h, "GET", fmt.Sprintf("/api/boards/%d/tasks", board.ID), token, nil)
	expectStatus(t, rec, http.StatusOK)
	if tasks := decode[[]database.Task](t, rec); len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	rec = do(t, h, "DELETE", fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[messageResponse](t, rec); msg.Message != "Task deleted successfully" {
		t.Fatalf("unexpected message: %q", msg.Message)
	}
	expectStatus(t, do(t, h, "GET", fmt.Sprintf("/api/tasks/%d", task.ID), token, nil), http.StatusNotFound)
}

func TestOwnershipAndCascade(t *testing.T) {
	h := newTestRouter(t)
	alice := signup(t, h, "alice").AccessToken
	carol := signup(t, h, "carol").AccessToken

	board := decode[database.Board](t, do(t, h, "POST", "/api/boards", alice, map[string]string{"name": "Private"}))
	task := decode[database.Task](t, do(t, h, "POST", fmt.Sprintf("/api/boards/%d/tasks", board.ID), alice, map[string]string{"title": "Secret"}))

	boardPath := fmt.Sprintf("/api/boards/%d", board.ID)
	taskPath := fmt.Sprintf("/api/tasks/%d", task.ID)

	for _, tc := range []struct {
		method, path string
		body         interface{}
	}{
		{"GET", boardPath, nil},
		{"PUT", boardPath, map[string]string{"name": "Mine"}},
		{"DELETE", boardPath, nil},
		{"GET", boardPath + "/tasks", nil},
		{"POST", boardPath + "/tasks", map[string]string{"title": "x"}},
		{"GET", taskPath, nil},
		{"PUT", taskPath, map[string]bool{"completed": true}},
		{"DELETE", taskPath, nil},
	} {
		rec := do(t, h, tc.method, tc.path, carol, tc.body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s as non-owner: expected 403, got %d", tc.method, tc.path, rec.Code)
		}
	}

	if boards := decode[[]database.Board](t, do(t, h, "GET", "/api/boards", carol, nil)); len(boards) != 0 {
		t.Fatalf("carol sees %d boards", len(boards))
	}

	expectStatus(t, do(t, h, "DELETE", boardPath, alice, nil), http.StatusOK)
	expectStatus(t, do(t, h, "GET", taskPath, alice, nil), http.StatusNotFound)
	expectStatus(t, do(t, h, "GET", boardPath, alice, nil), http.StatusNotFound)
}

func TestBadPathIDs(t *testing.T) {
	h := newTestRouter(t)
	token := signup(t, h, "alice").AccessToken

	expectStatus(t, do(t, h, "GET", "/api/boards/abc", token, nil), http.StatusBadRequest)
	expectStatus(t, do(t, h, "GET", "/api/tasks/0", token, nil), http.StatusBadRequest)
	expectStatus(t, do(t, h, "GET", "/api/boards/424242", token, nil), http.StatusNotFound)
}

func TestHealthAndIndex(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "GET", "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if body := decode[map[string]string](t, rec); body["status"] != "OK" || body["timestamp"] == "" {
		t.Fatalf("unexpected health body: %v", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	rec = do(t, h, "GET", "/", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if body := decode[map[string]string](t, rec); body["name"] != apiName {
		t.Fatalf("unexpected index body: %v", body)
	}

	expectStatus(t, do(t, h, "GET", "/api/nope", "", nil), http.StatusNotFound)

	deps := newTestDeps(t)
	deps.Store = brokenStore{}
	expectStatus(t, do(t, NewRouter("/api", deps), "GET", "/health", "", nil), http.StatusServiceUnavailable)
}

func TestRateLimitOnCredentialRoutes(t *testing.T) {
	deps := newTestDeps(t)
	limiter := &fakeLimiter{allow: false}
	deps.Limiter = limiter
	h := NewRouter("", deps)

	creds := map[string]string{"username": "alice", "password": "password"}
	expectStatus(t, do(t, h, "POST", "/register", "", creds), http.StatusTooManyRequests)
	expectStatus(t, do(t, h, "POST", "/login", "", creds), http.StatusTooManyRequests)
	if len(limiter.keys) != 2 || limiter.keys[0] != "auth:192.0.2.1" {
		t.Fatalf("unexpected limiter keys: %v", limiter.keys)
	}

	// refresh is not throttled
	expectStatus(t, do(t, h, "POST", "/refresh", "", map[string]string{"refreshToken": "x"}), http.StatusUnauthorized)

	limiter.allow, limiter.err = false, errors.New("redis down")
	expectStatus(t, do(t, h, "POST", "/register", "", creds), http.StatusCreated)
}
