package gitlab

import (
	"net/http"
)

// AuthRoundTripper injects the GitLab credential header on every request,
// including redirect follow-ups issued by the client.
type AuthRoundTripper struct {
	Header    string
	Token     string
	Transport http.RoundTripper
}

// NewAuthRoundTripper returns a round tripper sending token as PRIVATE-TOKEN.
func NewAuthRoundTripper(token string, transport http.RoundTripper) *AuthRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &AuthRoundTripper{
		Header:    "PRIVATE-TOKEN",
		Token:     token,
		Transport: transport,
	}
}

func (a *AuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if a.Token != "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set(a.Header, a.Token)
	}

	if a.Transport == nil {
		a.Transport = http.DefaultTransport
	}

	return a.Transport.RoundTrip(req)
}
