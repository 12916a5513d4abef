package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"unigo-console/internal/model"
)

// Decision is an administrator verdict on one or all of a user's documents.
type Decision struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type UserUpdate struct {
	FirstName    *string     `json:"first_name,omitempty"`
	LastName     *string     `json:"last_name,omitempty"`
	Phone        *string     `json:"phone,omitempty"`
	Role         *model.Role `json:"role,omitempty"`
	UniversityID *int        `json:"university_id,omitempty"`
	DistrictID   *int        `json:"district_id,omitempty"`
}

func userPath(id int) string {
	return fmt.Sprintf("/admin/users/%d", id)
}

func (c *Client) ListUsers(ctx context.Context, f model.UserFilter) (*model.UserList, error) {
	q := url.Values{}
	if f.Role != "" {
		q.Set("role", string(f.Role))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var res model.UserList
	if err := c.getJSON(ctx, withQuery("/admin/users", q), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetUser(ctx context.Context, id int) (*model.User, error) {
	var res userEnvelope
	if err := c.getJSON(ctx, userPath(id), &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) CreateUser(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	var res userEnvelope
	if err := c.sendJSON(ctx, http.MethodPost, "/admin/users", req, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) UpdateUser(ctx context.Context, id int, upd UserUpdate) (*model.User, error) {
	var res userEnvelope
	if err := c.sendJSON(ctx, http.MethodPut, userPath(id), upd, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodDelete, userPath(id), nil, nil)
}

func (c *Client) VerifyDocument(ctx context.Context, id int, docKey string, d Decision) error {
	path := userPath(id) + "/verify-document/" + url.PathEscape(docKey)
	return c.sendJSON(ctx, http.MethodPut, path, d, nil)
}

func (c *Client) VerifyDocuments(ctx context.Context, id int, d Decision) error {
	return c.sendJSON(ctx, http.MethodPut, userPath(id)+"/verify-documents", d, nil)
}

func (c *Client) VerifyPayment(ctx context.Context, id int, verified bool) error {
	body := map[string]bool{"verified": verified}
	return c.sendJSON(ctx, http.MethodPut, userPath(id)+"/verify-payment", body, nil)
}

func (c *Client) UpdateUserStatus(ctx context.Context, id int, status model.AccountStatus) error {
	body := map[string]model.AccountStatus{"status": status}
	return c.sendJSON(ctx, http.MethodPut, userPath(id)+"/status", body, nil)
}

func (c *Client) UserDocuments(ctx context.Context, id int) (map[string]string, error) {
	var res struct {
		Documents map[string]string `json:"documents"`
	}
	if err := c.getJSON(ctx, userPath(id)+"/documents", &res); err != nil {
		return nil, err
	}
	return res.Documents, nil
}
