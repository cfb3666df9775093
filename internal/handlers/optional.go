package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// optional tells an absent JSON field apart from an explicit null.
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// flexTime accepts RFC 3339 timestamps and plain dates.
type flexTime time.Time

var flexTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", time.DateOnly}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	for _, layout := range flexTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = flexTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

func (t *flexTime) Time() *time.Time {
	if t == nil {
		return nil
	}
	v := time.Time(*t)
	return &v
}
