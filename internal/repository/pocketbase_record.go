package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/pocketbase"
)

// recordClient PocketBase 记录操作
type recordClient interface {
	List(ctx context.Context, collection string, params pocketbase.ListParams) (*pocketbase.ListResult, error)
	First(ctx context.Context, collection, filter, sort string, out interface{}) error
	Get(ctx context.Context, collection, id string, out interface{}) error
	Create(ctx context.Context, collection string, body interface{}, out interface{}) error
	Update(ctx context.Context, collection, id string, body interface{}, out interface{}) error
	Delete(ctx context.Context, collection, id string) error
}

// PocketBase 日期字段格式
const pbTimeLayout = "2006-01-02 15:04:05.000Z"

func parsePBTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{pbTimeLayout, "2006-01-02 15:04:05Z", "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func formatPBTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(pbTimeLayout)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ignoreNotFound 将 ErrNotFound 转换为 (nil, nil) 语义
func ignoreNotFound(err error) error {
	if errors.Is(err, pocketbase.ErrNotFound) {
		return nil
	}
	return err
}

func stringifyJSON(value interface{}) string {
	if value == nil {
		return "{}"
	}
	b, err := json.Marshal(value)
	if err != nil || string(b) == "null" {
		return "{}"
	}
	return string(b)
}

func joinFilters(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, "("+p+")")
		}
	}
	return strings.Join(kept, " && ")
}

func anyOf(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%s = %s", field, pocketbase.Quote(v)))
	}
	return strings.Join(parts, " || ")
}

// NewPocketBaseStore 组装 PocketBase 后端仓库
func NewPocketBaseStore(client recordClient, collections config.PocketBaseCollections) *Store {
	return &Store{
		Orders:   NewPBOrderRepository(client, collections.Orders),
		Products: &PBProductRepository{client: client, collection: collections.Products},
		Users:    &PBUserRepository{client: client, collection: collections.Users},
		Settings: &PBSettingRepository{client: client, collection: collections.Config},
	}
}
