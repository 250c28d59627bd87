package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JSON 任意结构的 JSON 对象
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil || len(raw) == 0 {
		*j = JSON{}
		return err
	}
	return json.Unmarshal(raw, j)
}

// UnmarshalJSON 兼容 PocketBase 中以字符串形式存储的 JSON
func (j *JSON) UnmarshalJSON(b []byte) error {
	raw, err := unwrapJSONString(b)
	if err != nil {
		return err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*j = nil
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*j = out
	return nil
}

// StringArray 字符串数组
type StringArray []string

// Value 实现 driver.Valuer 接口
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner 接口
func (s *StringArray) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil || len(raw) == 0 {
		*s = StringArray{}
		return err
	}
	return json.Unmarshal(raw, s)
}

// NewRecordID 生成 15 位记录 ID，格式与 PocketBase 一致
func NewRecordID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", value)
	}
}

// unwrapJSONString 若值为 JSON 字符串则返回其内容，否则原样返回
func unwrapJSONString(b []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	return bytes.TrimSpace([]byte(inner)), nil
}
