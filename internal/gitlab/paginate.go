package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/filevars/webui/internal/errors"
)

// Page is a single page of a list endpoint.
type Page struct {
	Items    []json.RawMessage
	NextPage int
	// Total is X-Total, or -1 when GitLab omitted it.
	Total int
}

// GetPage fetches one page of a list endpoint. per_page is clamped to
// MaxPerPage whatever the caller asked for.
func (c *Client) GetPage(ctx context.Context, path string, params url.Values) (*Page, error) {
	p := cloneValues(params)
	p.Set("per_page", strconv.Itoa(c.pageSize(p.Get("per_page"))))
	if p.Get("page") == "" {
		p.Set("page", "1")
	}

	resp, err := c.Request(ctx, http.MethodGet, path, p, nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	// A literal null leaves items nil; that is not a list either.
	if err := json.Unmarshal(resp.Body, &items); err != nil || items == nil {
		return nil, apperrors.UnexpectedShape(path)
	}

	return &Page{
		Items:    items,
		NextPage: headerInt(resp.Header, "X-Next-Page", 0),
		Total:    headerInt(resp.Header, "X-Total", -1),
	}, nil
}

// PaginatedGet walks X-Next-Page until it is absent or zero and returns
// every item.
func (c *Client) PaginatedGet(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	p := cloneValues(params)
	page := 1
	var acc []json.RawMessage
	for {
		p.Set("page", strconv.Itoa(page))
		chunk, err := c.GetPage(ctx, path, p)
		if err != nil {
			return nil, err
		}
		acc = append(acc, chunk.Items...)
		if chunk.NextPage <= page {
			break
		}
		page = chunk.NextPage
	}
	if acc == nil {
		acc = []json.RawMessage{}
	}
	return acc, nil
}

// Count returns the size of a list endpoint using X-Total. GitLab drops the
// header for very large collections; the list is then walked instead.
func (c *Client) Count(ctx context.Context, path string, params url.Values) (int, error) {
	p := cloneValues(params)
	p.Set("per_page", "1")
	p.Set("page", "1")
	chunk, err := c.GetPage(ctx, path, p)
	if err != nil {
		return 0, err
	}
	if chunk.Total >= 0 {
		return chunk.Total, nil
	}
	if chunk.NextPage == 0 {
		return len(chunk.Items), nil
	}

	p = cloneValues(params)
	p.Set("simple", "true")
	p.Del("per_page")
	all, err := c.PaginatedGet(ctx, path, p)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// ListAll is PaginatedGet decoding every item into T.
func ListAll[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	raw, err := c.PaginatedGet(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return decodeItems[T](path, raw)
}

func decodeItems[T any](path string, raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, apperrors.UnexpectedShape(fmt.Sprintf("%s (%v)", path, err))
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Client) pageSize(requested string) int {
	if requested == "" {
		return c.perPage
	}
	n, err := strconv.Atoi(requested)
	if err != nil {
		return c.perPage
	}
	return clampPerPage(n)
}

func headerInt(h http.Header, key string, fallback int) int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
