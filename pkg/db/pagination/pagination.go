package pagination

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=20"`
}

// Cursor is keyset state over snowflake ids, which sort by creation time.
type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func NormalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// Trim cuts a limit+1 result set down to limit and reports whether more rows exist.
func Trim[T any](items []T, limit int, extractCursor func(T) string) ([]T, PageInfo) {
	if len(items) <= limit {
		return items, PageInfo{}
	}
	items = items[:limit]
	token, err := EncodeCursor(Cursor{ID: extractCursor(items[len(items)-1])})
	if err != nil {
		return items, PageInfo{HasMore: true}
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}
}
