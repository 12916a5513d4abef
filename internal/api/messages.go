package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"unigo-console/internal/model"
)

type SendMessageRequest struct {
	ReceiverID int
	Type       model.MessageType
	Content    string
	// File is set for image and file messages.
	File *Upload
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var res struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.getJSON(ctx, "/messages/conversations", &res); err != nil {
		return nil, err
	}
	return res.Conversations, nil
}

func (c *Client) MessagesWith(ctx context.Context, otherUserID int) ([]model.Message, error) {
	var res struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/messages/%d", otherUserID), &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*model.Message, error) {
	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageText
	}
	fields := map[string]string{
		"receiver_id":  strconv.Itoa(req.ReceiverID),
		"message_type": string(msgType),
	}
	if req.Content != "" {
		fields["content"] = req.Content
	}

	var res struct {
		Message model.Message `json:"message"`
	}
	if err := c.sendMultipart(ctx, http.MethodPost, "/messages/send", fields, "file", req.File, &res); err != nil {
		return nil, err
	}
	return &res.Message, nil
}

func (c *Client) UnreadMessageCount(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, "/messages/unread/count", &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}
