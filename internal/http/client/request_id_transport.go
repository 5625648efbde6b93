package client

import (
	"net/http"
	"time"

	"teamboard-api/internal/observability/requestid"
)

const maxRedirects = 10

// New returns an http.Client with a hard timeout that propagates the request ID
// of the calling context.
func New(timeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()

	return &http.Client{
		Transport: NewRequestIDTransport(base),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// RequestIDTransport sets X-Request-ID on outbound requests from the context.
// A header set by the caller is left alone.
type RequestIDTransport struct {
	base http.RoundTripper
}

// NewRequestIDTransport wraps base; nil means http.DefaultTransport.
func NewRequestIDTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RequestIDTransport{base: base}
}

func (t *RequestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(requestid.Header) != "" {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	reqID := requestid.GetRequestID(ctx)
	if reqID == "" {
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not mutate the caller's request
	cloned := req.Clone(ctx)
	cloned.Header.Set(requestid.Header, reqID)
	return t.base.RoundTrip(cloned)
}
