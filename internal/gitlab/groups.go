package gitlab

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// ListGroups returns every group the token is a member of, ordered by path.
func (c *Client) ListGroups(ctx context.Context, search string) ([]Group, error) {
	params := url.Values{}
	params.Set("membership", "true")
	params.Set("all_available", "false")
	params.Set("order_by", "path")
	params.Set("sort", "asc")
	if search != "" {
		params.Set("search", search)
	}
	groups, err := ListAll[Group](ctx, c, "/groups", params)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Name == "" {
			groups[i].Name = groups[i].Path
		}
	}
	return groups, nil
}

// LatestGroupUpdate returns the modification time of the most recently
// updated group, or the zero time when the token sees no groups. It costs a
// single request of one item.
func (c *Client) LatestGroupUpdate(ctx context.Context) (time.Time, error) {
	params := url.Values{}
	params.Set("membership", "true")
	params.Set("order_by", "updated_at")
	params.Set("sort", "desc")
	params.Set("per_page", "1")
	page, err := c.GetPage(ctx, "/groups", params)
	if err != nil {
		return time.Time{}, err
	}
	if len(page.Items) == 0 {
		return time.Time{}, nil
	}
	var g Group
	if err := json.Unmarshal(page.Items[0], &g); err != nil {
		return time.Time{}, err
	}
	return g.ChangedAt(), nil
}
