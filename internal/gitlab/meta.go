package gitlab

import (
	"context"
	"net/http"
)

// CurrentUser returns the owner of the configured token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/user", nil, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := resp.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Version returns the GitLab server version.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/version", nil, nil)
	if err != nil {
		return nil, err
	}
	var v VersionInfo
	if err := resp.Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
