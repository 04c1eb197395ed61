package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/cache"
	"github.com/chd000125/Study/services/identity/internal/config"
	"github.com/chd000125/Study/services/identity/internal/crypto"
	"github.com/chd000125/Study/services/identity/internal/db"
	"github.com/chd000125/Study/services/identity/internal/identity"
	"github.com/chd000125/Study/services/identity/internal/metrics"
	"github.com/chd000125/Study/services/identity/internal/profile"
	"github.com/chd000125/Study/services/identity/internal/repository"
)

type accountStore interface {
	identity.AccountStore
	profile.Store
}

type testApp struct {
	server *httptest.Server
	redis  *miniredis.Miniredis
	codec  *auth.Codec
}

func newTestApp(t *testing.T, store accountStore) testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{
		JWTSecret:          "test-secret",
		CookieSecure:       true,
		CookieSameSite:     http.SameSiteLaxMode,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
	codec, err := auth.NewCodec([]byte(cfg.JWTSecret), 0, 0)
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	sessions := cache.New(client, codec.RefreshTTL(), 0)
	svc := identity.NewService(identity.Deps{
		Store:     store,
		Cache:     sessions,
		Profiles:  profile.NewGateway(store, sessions, m),
		Codec:     codec,
		Passwords: crypto.NewVerifier(bcrypt.MinCost),
		Metrics:   m,
		Logger:    logger,
	}, identity.Options{})

	app := httptest.NewServer(NewServer(cfg, svc, logger).Router())
	t.Cleanup(app.Close)
	return testApp{server: app, redis: mr, codec: codec}
}

func TestSessionLifecycle(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	runSessionLifecycle(t, app, "a@x.com")
}

func TestSessionLifecyclePostgres(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	if err := db.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	app := newTestApp(t, repository.NewStore(pool))
	runSessionLifecycle(t, app, "e2e."+time.Now().Format("150405.000000")+"@x.com")
}

func runSessionLifecycle(t *testing.T, app testApp, email string) {
	resp := doReq(t, http.MethodPost, app.server.URL+"/api/users/register", "", nil, map[string]string{
		"email":    email,
		"password": "p1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: expected 200, got %d", resp.StatusCode)
	}
	var registered map[string]string
	decodeBody(t, resp, &registered)
	if registered["token"] == "" {
		t.Fatalf("register: expected token")
	}

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/login", "", nil, map[string]string{
		"email":    email,
		"password": "p1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login loginResponse
	decodeBody(t, resp, &login)
	if login.AccessToken == "" || login.Email != email || login.Role != "USER" {
		t.Fatalf("login: unexpected body %+v", login)
	}
	refresh := findCookie(resp, refreshCookieName)
	if refresh == nil || refresh.Value == "" {
		t.Fatalf("login: expected refresh cookie")
	}
	if refresh.MaxAge != 7*24*60*60 || !refresh.HttpOnly || !refresh.Secure || refresh.Path != "/" {
		t.Fatalf("login: unexpected refresh cookie %+v", refresh)
	}

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/refresh", "", refresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	var refreshed map[string]string
	decodeBody(t, resp, &refreshed)
	if refreshed["accessToken"] == "" || refreshed["accessToken"] == login.AccessToken {
		t.Fatalf("refresh: expected a new access token")
	}

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/logout", "", refresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{accessCookieName, refreshCookieName} {
		cleared := findCookie(resp, name)
		if cleared == nil || cleared.Value != "" || cleared.MaxAge >= 0 {
			t.Fatalf("logout: expected %s cleared, got %+v", name, cleared)
		}
	}
	resp.Body.Close()

	// Logout is client-side only; the first cookie value still redeems.
	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/refresh", "", refresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh after logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshWithoutCookieIsUnauthorized(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())

	resp := doReq(t, http.MethodPost, app.server.URL+"/api/users/refresh", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %v", body)
	}
}

func TestLoginFailuresShareOneResponse(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	resp := doReq(t, http.MethodPost, app.server.URL+"/api/users/register", "", nil, map[string]string{
		"email": "a@x.com", "password": "p1",
	})
	resp.Body.Close()

	wrong := doReq(t, http.MethodPost, app.server.URL+"/api/users/login", "", nil, map[string]string{
		"email": "a@x.com", "password": "bad",
	})
	unknown := doReq(t, http.MethodPost, app.server.URL+"/api/users/login", "", nil, map[string]string{
		"email": "ghost@x.com", "password": "p1",
	})
	wrongBody, _ := io.ReadAll(wrong.Body)
	unknownBody, _ := io.ReadAll(unknown.Body)
	wrong.Body.Close()
	unknown.Body.Close()

	if wrong.StatusCode != http.StatusUnauthorized || unknown.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrong.StatusCode, unknown.StatusCode)
	}
	if !bytes.Equal(wrongBody, unknownBody) {
		t.Fatalf("expected identical bodies, got %q and %q", wrongBody, unknownBody)
	}
}

func TestProfileEndpoints(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	token := registerAndToken(t, app, "a@x.com")

	resp := doReq(t, http.MethodGet, app.server.URL+"/api/users/me", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReqAuth(t, http.MethodPut, app.server.URL+"/api/users/update", token, map[string]string{"name": "X"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var updated profileResponse
	decodeBody(t, resp, &updated)

	resp = doReqAuth(t, http.MethodGet, app.server.URL+"/api/users/"+updated.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get user: expected 200, got %d", resp.StatusCode)
	}
	var byID profileResponse
	decodeBody(t, resp, &byID)
	if byID.Name != "X" {
		t.Fatalf("expected written-through name X, got %q", byID.Name)
	}

	resp = doReqAuth(t, http.MethodGet, app.server.URL+"/api/users/not-a-uuid", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get malformed id: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReqAuth(t, http.MethodPut, app.server.URL+"/api/users/change-password", token, map[string]string{"newPassword": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank password: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReqAuth(t, http.MethodPut, app.server.URL+"/api/users/change-password", token, map[string]string{"newPassword": "p2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReqAuth(t, http.MethodPost, app.server.URL+"/api/users/verify-password", token, map[string]string{"password": "p2"})
	var verified map[string]bool
	decodeBody(t, resp, &verified)
	if !verified["verified"] {
		t.Fatalf("expected new password to verify")
	}
}

func TestDeleteAccount(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	token := registerAndToken(t, app, "a@x.com")
	registerAndToken(t, app, "b@x.com")

	resp := doReqAuth(t, http.MethodPost, app.server.URL+"/api/users/delete/b@x.com", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReqAuth(t, http.MethodPost, app.server.URL+"/api/users/delete/a@x.com?type=bogus", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReqAuth(t, http.MethodPost, app.server.URL+"/api/users/delete/a@x.com?type=soft", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("soft delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/login", "", nil, map[string]string{
		"email": "a@x.com", "password": "p1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login after delete: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMailVerificationFlow(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	registerAndToken(t, app, "a@x.com")

	resp := doReq(t, http.MethodPost, app.server.URL+"/api/mail/send-verification?email=a@x.com", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	code, err := app.redis.Get("authCode:a@x.com")
	if err != nil {
		t.Fatalf("expected stored code: %v", err)
	}

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/mail/verify-code?email=a@x.com&code=000000x", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong code: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/mail/verify-code?email=a@x.com&code="+code, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("right code: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/verify-email/a@x.com?token="+code, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify email: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.server.URL+"/api/users/verify-email/a@x.com?token="+code, "", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("verify twice: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshTokenIsNotABearerCredential(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	access := registerAndToken(t, app, "a@x.com")

	resp := doReq(t, http.MethodPost, app.server.URL+"/api/users/login", "", nil, map[string]string{
		"email": "a@x.com", "password": "p1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	refresh := findCookie(resp, refreshCookieName)
	resp.Body.Close()
	if refresh == nil || refresh.Value == "" {
		t.Fatalf("login: expected refresh cookie")
	}

	resp = doReqAuth(t, http.MethodGet, app.server.URL+"/api/users/me", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with access token: expected 200, got %d", resp.StatusCode)
	}
	var me profileResponse
	decodeBody(t, resp, &me)

	for _, path := range []string{"/api/users/me", "/api/users/" + me.ID} {
		resp = doReqAuth(t, http.MethodGet, app.server.URL+path, refresh.Value, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s with refresh token: expected 401, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestCacheOutageIsServiceUnavailable(t *testing.T) {
	app := newTestApp(t, repository.NewMemoryStore())
	app.redis.Close()

	resp := doReq(t, http.MethodPost, app.server.URL+"/api/users/refresh", "", &http.Cookie{Name: refreshCookieName, Value: "tok"}, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func registerAndToken(t *testing.T, app testApp, email string) string {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.server.URL+"/api/users/register", "", nil, map[string]string{
		"email": email, "password": "p1", "name": "Ann",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	return body["token"]
}

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("IDENTITY_TEST_DB")
	if url == "" {
		t.Skip("IDENTITY_TEST_DB not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	return pool
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func doReqAuth(t *testing.T, method, url, token string, body interface{}) *http.Response {
	return doReq(t, method, url, token, nil, body)
}

func doReq(t *testing.T, method, url, token string, cookie *http.Cookie, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}
