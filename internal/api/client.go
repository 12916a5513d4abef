package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TokenSource supplies the bearer credential attached to every request.
// An empty token sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

type Options struct {
	BaseURL    string
	UploadsURL string
	// Timeout of zero leaves requests unbounded.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Client talks to the unigo REST backend.
type Client struct {
	baseURL    string
	uploadsURL string
	http       *http.Client
	log        logrus.FieldLogger
}

func NewClient(opts Options, tokens TokenSource) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		uploadsURL: strings.TrimRight(opts.UploadsURL, "/"),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newBearerTransport(http.DefaultTransport, tokens),
		},
		log: logger.WithField("component", "api"),
	}
}

// FileURL resolves an uploaded file name against the uploads base URL.
// Absolute URLs are returned unchanged.
func (c *Client) FileURL(name string) string {
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name
	}
	return c.uploadsURL + "/" + strings.TrimLeft(name, "/")
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).Warnf("%s %s failed", method, path)
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// Upload is a file part of a multipart request.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func encodeMultipart(fields map[string]string, fileField string, file *Upload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, file.Name))
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file.Body); err != nil {
			return nil, "", errors.Wrap(err, "copy upload")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (c *Client) sendMultipart(ctx context.Context, method, path string, fields map[string]string, fileField string, file *Upload, out interface{}) error {
	body, contentType, err := encodeMultipart(fields, fileField, file)
	if err != nil {
		return errors.Wrapf(err, "encode %s %s", method, path)
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
