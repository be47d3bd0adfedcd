package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/domain"
	"github.com/spec-kit/worker-portal/internal/events"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// WorkerClient issues authenticated calls for one portal session. Every
// unauthorized response is published as an EventUnauthorized for that
// session, once per failing call.
type WorkerClient struct {
	api       *Client
	sessionID string
	token     string
}

// ForSession binds the client to a portal session and its upstream token.
func (cl *Client) ForSession(sessionID, token string) *WorkerClient {
	return &WorkerClient{api: cl, sessionID: sessionID, token: token}
}

func (w *WorkerClient) do(ctx context.Context, c call, out any) error {
	c.token = w.token
	err := w.api.do(ctx, c, out)
	if err != nil && apperrors.IsUnauthorized(err) && w.api.dispatcher != nil {
		evt := events.New(events.EventUnauthorized, w.sessionID, "", events.UnauthorizedPayload{Method: c.method, Endpoint: c.label})
		if pubErr := w.api.dispatcher.Publish(ctx, evt); pubErr != nil {
			w.api.logger.Warn("unauthorized handler failed", zap.String("session_id", w.sessionID), zap.Error(pubErr))
		}
	}
	return err
}

func (w *WorkerClient) get(ctx context.Context, path, label string, out any) error {
	return w.do(ctx, call{method: http.MethodGet, path: path, label: label}, out)
}

// Assignments lists every complaint assigned to the worker.
func (w *WorkerClient) Assignments(ctx context.Context) ([]domain.Complaint, error) {
	var list domain.ComplaintList
	if err := w.get(ctx, pathAssignments, pathAssignments, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ComplaintsIn lists complaints from the bucket endpoint
// (pending, completed or overdue).
func (w *WorkerClient) ComplaintsIn(ctx context.Context, bucket string) ([]domain.Complaint, error) {
	var list domain.ComplaintList
	path := complaintsBucketPath(bucket)
	if err := w.get(ctx, path, path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Complaint fetches a single complaint.
func (w *WorkerClient) Complaint(ctx context.Context, id string) (domain.Complaint, error) {
	var c domain.Complaint
	err := w.get(ctx, complaintPath(id), "/worker/complaints/{id}/", &c)
	return c, err
}

// DashboardStats fetches the server-side counters.
func (w *WorkerClient) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := w.get(ctx, pathDashboardStats, pathDashboardStats, &stats)
	return stats, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload is a file forwarded verbatim to the complaint API.
type Upload struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// Complete submits the completion note and optional image.
func (w *WorkerClient) Complete(ctx context.Context, id, note string, image *Upload) (domain.Complaint, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("completion_note", note); err != nil {
		return domain.Complaint{}, apperrors.NewInternalError(err)
	}
	if image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="completion_image"; filename="%s"`, quoteEscaper.Replace(image.Filename)))
		contentType := image.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := form.CreatePart(header)
		if err != nil {
			return domain.Complaint{}, apperrors.NewInternalError(err)
		}
		if _, err := io.Copy(part, image.Data); err != nil {
			return domain.Complaint{}, apperrors.NewInternalError(err)
		}
	}
	if err := form.Close(); err != nil {
		return domain.Complaint{}, apperrors.NewInternalError(err)
	}

	var updated domain.Complaint
	err := w.do(ctx, call{
		method:      http.MethodPost,
		path:        completePath(id),
		label:       "/worker/complaints/{id}/complete/",
		bodyBytes:   buf.Bytes(),
		contentType: form.FormDataContentType(),
	}, &updated)
	return updated, err
}
