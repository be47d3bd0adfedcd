package http

import (
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/api/http/handlers"
	"github.com/spec-kit/worker-portal/internal/apiclient"
	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/events"
	"github.com/spec-kit/worker-portal/internal/observability"
	"github.com/spec-kit/worker-portal/internal/service"
	"github.com/spec-kit/worker-portal/internal/session"
)

const cookieName = "portal_session"

// fakeUpstream mimics the complaint API for one worker.
type fakeUpstream struct {
	mu        sync.Mutex
	token     string
	revoked   bool
	meCalls   int
	loggedOut []string
	completed url.Values
	imageName string
}

func (u *fakeUpstream) authorized(r *nethttp.Request) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.revoked && r.Header.Get("Authorization") == "Token "+u.token
}

func (u *fakeUpstream) revoke() {
	u.mu.Lock()
	u.revoked = true
	u.mu.Unlock()
}

func (u *fakeUpstream) handler() nethttp.Handler {
	mux := nethttp.NewServeMux()
	deny := func(w nethttp.ResponseWriter) {
		w.WriteHeader(nethttp.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Invalid token."}`)
	}
	mux.HandleFunc("/worker/login/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "pw" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Invalid credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"token":"`+u.token+`","user":{"id":1,"username":"jdoe","first_name":"Jane","last_name":"Doe"},"worker":{"id":9,"role":"FIELD","department":{"name":"Roads"},"office_name":"North"}}`)
	})
	mux.HandleFunc("/worker/me/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		u.mu.Lock()
		u.meCalls++
		u.mu.Unlock()
		if !u.authorized(r) {
			deny(w)
			return
		}
		_, _ = io.WriteString(w, `{"id":9,"username":"jdoe","first_name":"Jane","last_name":"Doe","department":"Roads"}`)
	})
	mux.HandleFunc("/worker/logout/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		u.mu.Lock()
		u.loggedOut = append(u.loggedOut, r.Header.Get("Authorization"))
		u.mu.Unlock()
		w.WriteHeader(nethttp.StatusNoContent)
	})
	mux.HandleFunc("/worker/dashboard/stats/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusInternalServerError)
	})
	mux.HandleFunc("/worker/assignments/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !u.authorized(r) {
			deny(w)
			return
		}
		_, _ = io.WriteString(w, `{"results":[
			{"id":1,"status":"ASSIGNED","sla_deadline":"2000-01-01T00:00:00Z","created_at":"2024-01-01T00:00:00Z"},
			{"id":2,"status":"COMPLETED","created_at":"2024-01-02T00:00:00Z"},
			{"id":3,"status":"PENDING","created_at":"2024-01-03T00:00:00Z"}]}`)
	})
	mux.HandleFunc("/worker/complaints/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !u.authorized(r) {
			deny(w)
			return
		}
		switch r.URL.Path {
		case "/worker/complaints/5/":
			_, _ = io.WriteString(w, `{"id":5,"status":"IN_PROGRESS","title":"Pothole","city":{"name":"Springfield"}}`)
		case "/worker/complaints/5/complete/":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(nethttp.StatusBadRequest)
				return
			}
			u.mu.Lock()
			u.completed = r.MultipartForm.Value
			if files := r.MultipartForm.File["completion_image"]; len(files) > 0 {
				u.imageName = files[0].Filename
			}
			u.mu.Unlock()
			_, _ = io.WriteString(w, `{"id":5,"status":"COMPLETED","completion_note":"done"}`)
		default:
			nethttp.NotFound(w, r)
		}
	})
	return mux
}

type portal struct {
	app      *fiber.App
	upstream *fakeUpstream
	store    *session.MemoryStore
	metrics  *observability.Metrics
}

func newPortal(t *testing.T, up *fakeUpstream, store *session.MemoryStore, loginLimit int) *portal {
	t.Helper()
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	client := apiclient.New(apiclient.Options{
		BaseURL:       srv.URL,
		Timeout:       2 * time.Second,
		RetryAttempts: 1,
	}, dispatcher, metrics, logger)

	guard := session.NewGuard(client, store, dispatcher, logger)
	cookies := auth.NewSessionCookie(auth.NewTokenManager("test-secret", time.Hour), cookieName, false)
	factory := func(sid, token string) service.WorkerAPI { return client.ForSession(sid, token) }

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:       handlers.NewHealthHandler("worker-portal", "test", map[string]handlers.Pinger{"session_store": store}),
		Metrics:      handlers.NewMetricsHandler(metrics),
		Auth:         handlers.NewAuthHandler(guard, cookies, logger),
		Dashboard:    handlers.NewDashboardHandler(service.NewDashboardService(nil, logger), factory),
		Complaints:   handlers.NewComplaintsHandler(service.NewComplaintService(dispatcher, nil, logger), factory),
		Session:      NewSessionMiddleware(guard, cookies, logger),
		LoginLimiter: NewRateLimiter(loginLimit, time.Minute),
	})
	return &portal{app: app, upstream: up, store: store, metrics: metrics}
}

func (p *portal) do(t *testing.T, req *nethttp.Request) *nethttp.Response {
	t.Helper()
	resp, err := p.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func (p *portal) login(t *testing.T, password string) *nethttp.Response {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodPost, "/login", strings.NewReader("username=jdoe&password="+password))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	return p.do(t, req)
}

func (p *portal) get(t *testing.T, path, cookie string) *nethttp.Response {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return p.do(t, req)
}

func sessionCookie(resp *nethttp.Response) string {
	for _, c := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(c, cookieName+"=") {
			return strings.SplitN(c, ";", 2)[0]
		}
	}
	return ""
}

func decode(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func loggedIn(t *testing.T) (*portal, string) {
	t.Helper()
	p := newPortal(t, &fakeUpstream{token: "tok-1"}, session.NewMemoryStore(), 10)
	resp := p.login(t, "pw")
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotEmpty(t, cookie)
	return p, cookie
}

func TestLoginRedirectsToDashboard(t *testing.T) {
	p := newPortal(t, &fakeUpstream{token: "tok-1"}, session.NewMemoryStore(), 10)

	resp := p.login(t, "pw")

	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	assert.NotEmpty(t, sessionCookie(resp))
	assert.Equal(t, 1, p.store.Len())
	assert.Equal(t, "/dashboard", decode(t, resp)["redirect"])
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	p := newPortal(t, &fakeUpstream{token: "tok-1"}, session.NewMemoryStore(), 10)

	resp := p.login(t, "wrong")

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, sessionCookie(resp))
	body := decode(t, resp)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "AUTH_FAILED", errBody["code"])
	assert.Equal(t, "Invalid credentials", errBody["message"])
	assert.Zero(t, p.store.Len())
}

func TestLoginRequiresCredentials(t *testing.T) {
	p := newPortal(t, &fakeUpstream{token: "tok-1"}, session.NewMemoryStore(), 10)

	resp := p.login(t, "")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLoginIsRateLimited(t *testing.T) {
	p := newPortal(t, &fakeUpstream{token: "tok-1"}, session.NewMemoryStore(), 2)

	assert.Equal(t, fiber.StatusUnauthorized, p.login(t, "wrong").StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, p.login(t, "wrong").StatusCode)
	resp := p.login(t, "wrong")

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestProtectedViewWithoutCookieRedirects(t *testing.T) {
	p := newPortal(t, &fakeUpstream{token: "tok-1"}, session.NewMemoryStore(), 10)

	resp := p.get(t, "/dashboard", "")

	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestDashboardFallsBackToAssignments(t *testing.T) {
	p, cookie := loggedIn(t)

	resp := p.get(t, "/dashboard", cookie)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "assignments", data["stats_source"])
	worker := data["worker"].(map[string]any)
	assert.Equal(t, "Jane Doe", worker["full_name"])
	assert.Equal(t, "Roads", worker["department"])
	assert.Equal(t, "North", worker["office"])
	stats := data["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["assigned"])
	assert.EqualValues(t, 1, stats["overdue"])
	assert.Len(t, data["recent"], 3)
}

func TestComplaintListUsesEngineWhenEndpointMissing(t *testing.T) {
	p, cookie := loggedIn(t)

	resp := p.get(t, "/complaints/overdue", cookie)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "assignments", data["source"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	sla := items[0].(map[string]any)["sla"].(map[string]any)
	assert.Equal(t, true, sla["is_overdue"])
	assert.Equal(t, "primary", sla["color"])
}

func TestUnknownBucketIsNotFound(t *testing.T) {
	p, cookie := loggedIn(t)

	resp := p.get(t, "/complaints/archived", cookie)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRevokedTokenEndsSessionAndRedirects(t *testing.T) {
	p, cookie := loggedIn(t)
	p.upstream.revoke()

	resp := p.get(t, "/complaints/assigned", cookie)

	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Zero(t, p.store.Len())

	state := decode(t, p.get(t, "/session", cookie))["data"].(map[string]any)
	assert.Equal(t, string(session.DecisionRedirectToLogin), state["decision"])
}

func TestDetailAndCompletion(t *testing.T) {
	p, cookie := loggedIn(t)

	resp := p.get(t, "/complaints/detail/5", cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["can_complete"])
	assert.Equal(t, "Springfield", data["complaint"].(map[string]any)["city"])

	var body strings.Builder
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("completion_note", "done"))
	part, err := form.CreateFormFile("completion_image", "after.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/complaints/detail/5/complete", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Cookie", cookie)
	resp = p.do(t, req)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, false, data["can_complete"])
	assert.Equal(t, []string{"done"}, p.upstream.completed["completion_note"])
	assert.Equal(t, "after.jpg", p.upstream.imageName)
}

func TestCompletionRequiresNote(t *testing.T) {
	p, cookie := loggedIn(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/complaints/detail/5/complete", strings.NewReader(`{"completion_note":"  "}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Cookie", cookie)
	resp := p.do(t, req)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	errBody := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, "Completion note is required", errBody["message"])
	assert.Nil(t, p.upstream.completed)
}

func TestLogoutRevokesAndClears(t *testing.T) {
	p, cookie := loggedIn(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/logout", nil)
	req.Header.Set("Cookie", cookie)
	resp := p.do(t, req)

	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, []string{"Token tok-1"}, p.upstream.loggedOut)
	assert.Zero(t, p.store.Len())

	state := decode(t, p.get(t, "/session", cookie))["data"].(map[string]any)
	assert.Equal(t, string(session.DecisionRedirectToLogin), state["decision"])
}

func TestSessionSurvivesPortalRestart(t *testing.T) {
	p, cookie := loggedIn(t)
	restarted := newPortal(t, p.upstream, p.store, 10)

	state := decode(t, restarted.get(t, "/session", cookie))["data"].(map[string]any)

	assert.Equal(t, string(session.DecisionProceed), state["decision"])
	assert.Equal(t, "jdoe", state["worker"].(map[string]any)["username"])
	assert.Equal(t, 1, p.upstream.meCalls)
}

func TestHealthAndMetrics(t *testing.T) {
	p, cookie := loggedIn(t)
	_ = p.get(t, "/dashboard", cookie)

	assert.Equal(t, fiber.StatusOK, p.get(t, "/health/live", "").StatusCode)
	ready := p.get(t, "/health/ready", "")
	assert.Equal(t, fiber.StatusOK, ready.StatusCode)

	resp := p.get(t, "/internal/metrics", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, p.metrics.Snapshot().Upstream)
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	now = now.Add(2 * time.Minute)
	rl.evictIdle()
	assert.Empty(t, rl.visitors)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestErrorMetricsKeyedByRoutePattern(t *testing.T) {
	p, cookie := loggedIn(t)

	assert.Equal(t, fiber.StatusNotFound, p.get(t, "/complaints/detail/77", cookie).StatusCode)
	assert.Equal(t, fiber.StatusNotFound, p.get(t, "/complaints/detail/88", cookie).StatusCode)

	errs := p.metrics.Snapshot().Errors
	assert.Equal(t, int64(2), errs["/complaints/detail/:id|GET|NOT_FOUND"])
	for key := range errs {
		assert.NotContains(t, key, "/complaints/detail/77")
	}
}
