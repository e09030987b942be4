package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ProjectQuery selects a page of projects.
type ProjectQuery struct {
	GroupID        int64
	Search         string
	Page           int
	PerPage        int
	MinAccessLevel int
}

// ProjectPage is one page of projects plus paging metadata.
type ProjectPage struct {
	Items    []Project `json:"items"`
	Page     int       `json:"page"`
	NextPage int       `json:"next_page"`
	Total    int       `json:"total"`
}

// ListProjects fetches a single page of projects, either inside a group
// (including subgroups and shared projects) or across the token's memberships.
func (c *Client) ListProjects(ctx context.Context, q ProjectQuery) (*ProjectPage, error) {
	path, params := projectListing(q)
	if q.Page < 1 {
		q.Page = 1
	}
	params.Set("page", strconv.Itoa(q.Page))
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}

	page, err := c.GetPage(ctx, path, params)
	if err != nil {
		return nil, err
	}
	items, err := decodeItems[Project](path, page.Items)
	if err != nil {
		return nil, err
	}
	return &ProjectPage{
		Items:    items,
		Page:     q.Page,
		NextPage: page.NextPage,
		Total:    page.Total,
	}, nil
}

// CountProjects returns how many projects a listing would yield.
func (c *Client) CountProjects(ctx context.Context, q ProjectQuery) (int, error) {
	path, params := projectListing(q)
	return c.Count(ctx, path, params)
}

func projectListing(q ProjectQuery) (string, url.Values) {
	params := url.Values{}
	params.Set("order_by", "path")
	params.Set("sort", "asc")
	params.Set("simple", "true")
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.MinAccessLevel > 0 {
		params.Set("min_access_level", strconv.Itoa(q.MinAccessLevel))
	}
	if q.GroupID > 0 {
		params.Set("with_shared", "true")
		params.Set("include_subgroups", "true")
		return fmt.Sprintf("/groups/%d/projects", q.GroupID), params
	}
	params.Set("membership", "true")
	return "/projects", params
}

// ListEnvironments returns all environments of a project.
func (c *Client) ListEnvironments(ctx context.Context, projectID int64) ([]Environment, error) {
	return ListAll[Environment](ctx, c, fmt.Sprintf("/projects/%d/environments", projectID), nil)
}
