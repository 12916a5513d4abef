package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"unigo-console/internal/model"
)

// Districts

func (c *Client) Districts(ctx context.Context) ([]model.District, error) {
	var res struct {
		Districts []model.District `json:"districts"`
	}
	if err := c.getJSON(ctx, "/districts", &res); err != nil {
		return nil, err
	}
	return res.Districts, nil
}

func (c *Client) CreateDistrict(ctx context.Context, d model.District) (*model.District, error) {
	var res struct {
		District model.District `json:"district"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/districts", d, &res); err != nil {
		return nil, err
	}
	return &res.District, nil
}

func (c *Client) UpdateDistrict(ctx context.Context, d model.District) (*model.District, error) {
	var res struct {
		District model.District `json:"district"`
	}
	if err := c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/districts/%d", d.ID), d, &res); err != nil {
		return nil, err
	}
	return &res.District, nil
}

func (c *Client) DeleteDistrict(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/districts/%d", id), nil, nil)
}

// Universities

func (c *Client) Universities(ctx context.Context) ([]model.University, error) {
	var res struct {
		Universities []model.University `json:"universities"`
	}
	if err := c.getJSON(ctx, "/admin/universities", &res); err != nil {
		return nil, err
	}
	return res.Universities, nil
}

func universityFields(u model.University) map[string]string {
	fields := map[string]string{"name": u.Name}
	if u.Acronym != "" {
		fields["acronym"] = u.Acronym
	}
	if u.DistrictID > 0 {
		fields["district_id"] = strconv.Itoa(u.DistrictID)
	}
	return fields
}

// CreateUniversity posts u as multipart form data; logo may be nil.
func (c *Client) CreateUniversity(ctx context.Context, u model.University, logo *Upload) (*model.University, error) {
	var res struct {
		University model.University `json:"university"`
	}
	err := c.sendMultipart(ctx, http.MethodPost, "/admin/universities", universityFields(u), "logo", logo, &res)
	if err != nil {
		return nil, err
	}
	return &res.University, nil
}

func (c *Client) UpdateUniversity(ctx context.Context, u model.University, logo *Upload) (*model.University, error) {
	var res struct {
		University model.University `json:"university"`
	}
	path := fmt.Sprintf("/admin/universities/%d", u.ID)
	if err := c.sendMultipart(ctx, http.MethodPut, path, universityFields(u), "logo", logo, &res); err != nil {
		return nil, err
	}
	return &res.University, nil
}

func (c *Client) DeleteUniversity(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/admin/universities/%d", id), nil, nil)
}

// Incidents

func (c *Client) Incidents(ctx context.Context, status model.IncidentStatus) ([]model.Incident, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var res struct {
		Incidents []model.Incident `json:"incidents"`
	}
	if err := c.getJSON(ctx, withQuery("/admin/incidents", q), &res); err != nil {
		return nil, err
	}
	return res.Incidents, nil
}

func (c *Client) UpdateIncident(ctx context.Context, id int, status model.IncidentStatus) error {
	body := map[string]model.IncidentStatus{"status": status}
	return c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/admin/incidents/%d", id), body, nil)
}

func (c *Client) DeleteIncident(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/admin/incidents/%d", id), nil, nil)
}

// Recharge requests

func (c *Client) RechargeRequests(ctx context.Context, status string) ([]model.RechargeRequest, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var res struct {
		Requests []model.RechargeRequest `json:"requests"`
	}
	if err := c.getJSON(ctx, withQuery("/admin/recharge/requests", q), &res); err != nil {
		return nil, err
	}
	return res.Requests, nil
}

func (c *Client) ApproveRecharge(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/admin/recharge/requests/%d/approve", id), nil, nil)
}

func (c *Client) RejectRecharge(ctx context.Context, id int, reason string) error {
	body := map[string]string{"reason": reason}
	return c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/admin/recharge/requests/%d/reject", id), body, nil)
}
