package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/domain"
	"github.com/spec-kit/worker-portal/internal/events"
	"github.com/spec-kit/worker-portal/internal/observability"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, baseURL string, dispatcher events.Dispatcher, transport http.RoundTripper) *Client {
	t.Helper()
	return New(Options{
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		Transport:     transport,
	}, dispatcher, observability.NewMetrics(), zap.NewNop())
}

func TestServerMessage(t *testing.T) {
	cases := map[string]string{
		`{"error": "Invalid credentials"}`:            "Invalid credentials",
		`{"detail": "Token expired."}`:                "Token expired.",
		`{"message": "nope"}`:                         "nope",
		`{"non_field_errors": ["Unable to log in."]}`: "Unable to log in.",
		`"plain"`:                                     "plain",
		`{"error": ""}`:                               "",
		`{"username": ["This field is required."]}`:   "",
		`<html>bad gateway</html>`:                    "",
		``:                                            "",
	}
	for body, want := range cases {
		assert.Equal(t, want, ServerMessage([]byte(body)), "body %q", body)
	}
}

func TestLoginDecodesUserAndWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/worker/login/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"username":"jdoe","password":"pw"}`, string(body))
		_, _ = io.WriteString(w, `{"token":"tok","user":{"id":1,"username":"jdoe","first_name":"Jane"},"worker":{"id":9,"role":"FIELD","department":{"name":"Roads"}}}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL+"/api", nil, nil).Login(context.Background(), "jdoe", "pw")
	require.NoError(t, err)

	assert.Equal(t, "tok", resp.Token)
	require.NotNil(t, resp.User)
	require.NotNil(t, resp.Worker)
	assert.Equal(t, "Jane", resp.User.FirstName)
	assert.Equal(t, domain.NamedRef("Roads"), resp.Worker.Department)
}

func TestLoginRejectionKeepsServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Invalid credentials"}`)
	}))
	defer srv.Close()

	var published int32
	d := events.NewInMemoryDispatcher()
	d.Subscribe(events.EventUnauthorized, func(context.Context, events.Event) error {
		atomic.AddInt32(&published, 1)
		return nil
	})

	_, err := newTestClient(t, srv.URL, d, nil).Login(context.Background(), "jdoe", "bad")

	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", ServerMessageOf(err))
	assert.Zero(t, atomic.LoadInt32(&published))
}

func TestSessionCallPublishesUnauthorizedOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "Token expired-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Invalid token."}`)
	}))
	defer srv.Close()

	var got []events.Event
	d := events.NewInMemoryDispatcher()
	d.Subscribe(events.EventUnauthorized, func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})

	_, err := newTestClient(t, srv.URL, d, nil).ForSession("sid-1", "expired-token").Assignments(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "unauthorized responses are not retried")
	require.Len(t, got, 1)
	assert.Equal(t, "sid-1", got[0].SessionID)
}

func TestGetRetriesNetworkErrors(t *testing.T) {
	var attempts int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("connection refused")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"assigned":4,"pending":1,"completed":2,"overdue":1}`)),
			Request:    r,
		}, nil
	})

	stats, err := newTestClient(t, "http://complaints.invalid", nil, transport).
		ForSession("sid", "tok").DashboardStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, domain.DashboardStats{Assigned: 4, Pending: 1, Completed: 2, Overdue: 1}, stats)
}

func TestNetworkErrorAfterRetries(t *testing.T) {
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	})

	_, err := newTestClient(t, "http://complaints.invalid", nil, transport).
		ForSession("sid", "tok").Complaint(context.Background(), "5")

	assert.True(t, apperrors.HasCode(err, apperrors.CodeNetwork))
}

func TestAssignmentsAcceptsResultsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[{"id":1,"status":"ASSIGNED"},{"id":2,"status":"COMPLETED"}]}`)
	}))
	defer srv.Close()

	list, err := newTestClient(t, srv.URL, nil, nil).ForSession("sid", "tok").Assignments(context.Background())

	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCompleteSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/worker/complaints/12/complete/", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "Pothole filled", r.FormValue("completion_note"))
		file, header, err := r.FormFile("completion_image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "after.jpg", header.Filename)
		assert.Equal(t, "jpeg-bytes", string(data))
		_, _ = io.WriteString(w, `{"id":12,"status":"COMPLETED","completion_note":"Pothole filled"}`)
	}))
	defer srv.Close()

	updated, err := newTestClient(t, srv.URL, nil, nil).ForSession("sid", "tok").Complete(context.Background(), "12", "Pothole filled", &Upload{
		Filename:    "after.jpg",
		ContentType: "image/jpeg",
		Data:        strings.NewReader("jpeg-bytes"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusCompleted, updated.Status)
}

func TestStatusErrorMapping(t *testing.T) {
	assert.True(t, apperrors.HasCode(statusError(http.StatusBadRequest, "note required"), apperrors.CodeValidationFailed))
	assert.True(t, apperrors.HasCode(statusError(http.StatusNotFound, ""), apperrors.CodeNotFound))
	assert.True(t, apperrors.HasCode(statusError(http.StatusInternalServerError, ""), apperrors.CodeUpstream))
	assert.Equal(t, "note required", ServerMessageOf(statusError(http.StatusBadRequest, "note required")))
	assert.Empty(t, ServerMessageOf(statusError(http.StatusBadGateway, "")))
}
