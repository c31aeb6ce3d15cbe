package auth

import (
	"net/http"
	"time"
)

const clientTimeout = 5 * time.Minute

// NewBearerClient returns a client that sends token on every request.
func NewBearerClient(token string) *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &bearerTransport{
			token: token,
			base:  http.DefaultTransport,
		},
	}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}
