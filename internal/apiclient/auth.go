package apiclient

import (
	"context"
	"net/http"

	"github.com/spec-kit/worker-portal/internal/domain"
)

// LoginResponse is the body of a successful worker login. User and Worker
// are pointers so a missing record can be told apart from an empty one.
type LoginResponse struct {
	User   *domain.WorkerProfile `json:"user"`
	Worker *domain.WorkerProfile `json:"worker"`
	Token  string                `json:"token"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token. Rejections are returned as
// errors and never reported as unauthorized events.
func (cl *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	c, err := jsonCall(http.MethodPost, pathLogin, pathLogin, "", loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	var resp LoginResponse
	if err := cl.do(ctx, c, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me validates token and returns the worker it belongs to.
func (cl *Client) Me(ctx context.Context, token string) (domain.WorkerProfile, error) {
	var profile domain.WorkerProfile
	err := cl.do(ctx, call{method: http.MethodGet, path: pathMe, label: pathMe, token: token}, &profile)
	return profile, err
}

// Logout revokes token upstream.
func (cl *Client) Logout(ctx context.Context, token string) error {
	return cl.do(ctx, call{method: http.MethodPost, path: pathLogout, label: pathLogout, token: token}, nil)
}
