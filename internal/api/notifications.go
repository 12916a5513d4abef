package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"unigo-console/internal/model"
)

func (c *Client) ListNotifications(ctx context.Context, limit int) (*model.NotificationList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res model.NotificationList
	if err := c.getJSON(ctx, withQuery("/notifications", q), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d/read", id), nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil, nil)
}
