package pocketbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MaxPerPage PocketBase 单页上限
const MaxPerPage = 500

// ListParams 列表查询参数
type ListParams struct {
	Page      int
	PerPage   int
	Sort      string
	Filter    string
	SkipTotal bool
}

// ListResult 列表查询结果
type ListResult struct {
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
	Items      []json.RawMessage `json:"items"`
}

// DecodeItems 将列表项解码到切片
func (r *ListResult) DecodeItems(out interface{}) error {
	raw, err := json.Marshal(r.Items)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

// List 分页查询集合记录
func (c *Client) List(ctx context.Context, collection string, params ListParams) (*ListResult, error) {
	query := url.Values{}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = 30
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	query.Set("perPage", strconv.Itoa(perPage))
	if s := strings.TrimSpace(params.Sort); s != "" {
		query.Set("sort", s)
	}
	if f := strings.TrimSpace(params.Filter); f != "" {
		query.Set("filter", f)
	}
	if params.SkipTotal {
		query.Set("skipTotal", "1")
	}
	var result ListResult
	if err := c.do(ctx, http.MethodGet, recordsPath(collection)+"?"+query.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// First 返回满足过滤条件的第一条记录，不存在时返回 ErrNotFound
func (c *Client) First(ctx context.Context, collection, filter, sort string, out interface{}) error {
	result, err := c.List(ctx, collection, ListParams{Page: 1, PerPage: 1, Filter: filter, Sort: sort, SkipTotal: true})
	if err != nil {
		return err
	}
	if len(result.Items) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(result.Items[0], out)
}

// Get 读取单条记录
func (c *Client) Get(ctx context.Context, collection, id string, out interface{}) error {
	return c.do(ctx, http.MethodGet, recordsPath(collection)+"/"+url.PathEscape(id), nil, out)
}

// Create 创建记录
func (c *Client) Create(ctx context.Context, collection string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, recordsPath(collection), body, out)
}

// Update 更新记录（PATCH）
func (c *Client) Update(ctx context.Context, collection, id string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPatch, recordsPath(collection)+"/"+url.PathEscape(id), body, out)
}

// Delete 删除记录
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, recordsPath(collection)+"/"+url.PathEscape(id), nil, nil)
}

// Quote 转义过滤表达式中的字符串字面量
func Quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
