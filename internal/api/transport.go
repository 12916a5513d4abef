package api

import (
	"net/http"

	"github.com/google/uuid"
)

// bearerTransport attaches "Authorization: Bearer <token>" and a request id
// to every outgoing request.
type bearerTransport struct {
	next   http.RoundTripper
	tokens TokenSource
}

func newBearerTransport(next http.RoundTripper, tokens TokenSource) *bearerTransport {
	return &bearerTransport{next: next, tokens: tokens}
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	r := req.Clone(req.Context())
	if t.tokens != nil {
		if token := t.tokens.Token(); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if r.Header.Get("X-Request-ID") == "" {
		r.Header.Set("X-Request-ID", uuid.NewString())
	}
	return t.next.RoundTrip(r)
}
