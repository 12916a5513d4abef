package api

import (
	"context"
	"net/http"

	"unigo-console/internal/model"
)

type userEnvelope struct {
	User model.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.AuthResponse, error) {
	var res model.AuthResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/login", creds, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	var res model.AuthResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/register", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var res userEnvelope
	if err := c.getJSON(ctx, "/auth/profile", &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	var res userEnvelope
	if err := c.sendJSON(ctx, http.MethodPut, "/auth/profile", upd, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}
