package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"admincore.org/internal/auth"
	"admincore.org/internal/cache"
	"admincore.org/internal/captcha"
)

// fakeStore serves a fixed admin user with one role.
type fakeStore struct {
	disabled bool
	noRoles  bool
}

func (f *fakeStore) Users() auth.UserStore             { return f }
func (f *fakeStore) Roles() auth.RoleStore             { return f }
func (f *fakeStore) Permissions() auth.PermissionStore { return f }
func (f *fakeStore) Departments() auth.DepartmentStore { return f }

func (f *fakeStore) user() *auth.User {
	status := auth.StatusActive
	if f.disabled {
		status = auth.StatusDisabled
	}
	return &auth.User{
		ID:              "u1",
		Username:        "alice",
		PasswordHash:    auth.MD5Digest("pw123"),
		Status:          status,
		PasswordVersion: 1,
	}
}

func (f *fakeStore) Find(_ context.Context, id string) (*auth.User, error) {
	if id != "u1" {
		return nil, auth.ErrNotFound
	}
	return f.user(), nil
}

func (f *fakeStore) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	if username != "alice" {
		return nil, auth.ErrNotFound
	}
	return f.user(), nil
}

func (f *fakeStore) RolesForUser(context.Context, string) ([]string, error) {
	if f.noRoles {
		return nil, nil
	}
	return []string{"r1"}, nil
}

func (f *fakeStore) PermissionsForRoles(context.Context, []string) ([]string, error) {
	return []string{"sys:user:list"}, nil
}

func (f *fakeStore) DepartmentsForRoles(context.Context, []string, bool) ([]string, error) {
	return []string{"d1"}, nil
}

type apiEnv struct {
	baseURL string
	client  *http.Client
	mr      *miniredis.Miniredis
	t       *testing.T
}

func newTestAPI(t *testing.T, store auth.Store) *apiEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewRedis(client)

	captchas := captcha.NewStore(redisCache)
	svc, err := auth.NewService(store, redisCache, captchas, []byte("test-secret"))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}

	api := New(ReadyProbe{Redis: redisCache}, "test", svc, captchas)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiEnv{baseURL: srv.URL, client: srv.Client(), mr: mr, t: t}
}

func (e *apiEnv) post(path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (e *apiEnv) get(path string) *http.Response {
	e.t.Helper()
	resp, err := e.client.Get(e.baseURL + path)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (e *apiEnv) login(username, password string) (*http.Response, map[string]any) {
	e.t.Helper()
	e.mr.Set("verify:img:ch1", "1234")
	resp := e.post("/admin/base/open/login", map[string]string{
		"username":   username,
		"captchaId":  "ch1",
		"verifyCode": "1234",
		"password":   password,
	}, nil)
	return resp, decodeBody[map[string]any](e.t, resp)
}

func TestHealthz(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	resp := env.get("/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("body=%v", body)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	resp := env.get("/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestCaptchaEndpoint(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})

	resp := env.get("/admin/base/open/captcha?type=base64&width=200&height=80")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body := decodeBody[captchaResponse](t, resp)
	if body.CaptchaID == "" {
		t.Fatal("expected captchaId")
	}
	if !strings.HasPrefix(body.Data, "data:image/png;base64,") {
		t.Fatal("expected a data URL")
	}
	if !env.mr.Exists("verify:img:" + body.CaptchaID) {
		t.Fatal("expected stored challenge answer")
	}
}

func TestCaptchaMethodNotAllowed(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	resp := env.post("/admin/base/open/captcha", nil, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginEndpointSuccess(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})

	resp, body := env.login("alice", "pw123")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	for _, field := range []string{"token", "refreshToken", "expire", "refreshExpire"} {
		if _, ok := body[field]; !ok {
			t.Fatalf("missing %s in %v", field, body)
		}
	}
	if body["token"] == "" || body["refreshToken"] == "" {
		t.Fatal("empty tokens")
	}
}

func TestLoginEndpointBadCaptcha(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})

	resp := env.post("/admin/base/open/login", map[string]string{
		"username":   "alice",
		"captchaId":  "missing",
		"verifyCode": "1234",
		"password":   "pw123",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["code"] != "bad_captcha" {
		t.Fatalf("code=%v", body["code"])
	}
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})

	resp, body := env.login("alice", "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if body["code"] != "bad_credentials" {
		t.Fatalf("code=%v", body["code"])
	}
}

func TestLoginEndpointNoRoles(t *testing.T) {
	env := newTestAPI(t, &fakeStore{noRoles: true})

	resp, body := env.login("alice", "pw123")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if body["code"] != "no_roles" {
		t.Fatalf("code=%v", body["code"])
	}
}

func TestRefreshTokenEndpoint(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	_, body := env.login("alice", "pw123")

	resp := env.post("/admin/base/open/refreshToken", map[string]string{
		"refreshToken": body["refreshToken"].(string),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	renewed := decodeBody[map[string]any](t, resp)
	if renewed["token"] == "" {
		t.Fatal("expected renewed access token")
	}
}

func TestRefreshTokenEndpointRejectsAccessToken(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	_, body := env.login("alice", "pw123")

	resp := env.post("/admin/base/open/refreshToken", map[string]string{
		"refreshToken": body["token"].(string),
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	errBody := decodeBody[map[string]any](t, resp)
	if errBody["code"] != "invalid_token" {
		t.Fatalf("code=%v", errBody["code"])
	}
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	_, body := env.login("alice", "pw123")
	token := body["token"].(string)

	resp := env.post("/admin/base/comm/logout", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp.Body.Close()

	if env.mr.Exists("admin:token:u1") {
		t.Fatal("session mirror should be cleared")
	}

	// The same token no longer authenticates.
	resp = env.post("/admin/base/comm/logout", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d after logout", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRequiresToken(t *testing.T) {
	env := newTestAPI(t, &fakeStore{})
	resp := env.post("/admin/base/comm/logout", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp.Body.Close()
}
