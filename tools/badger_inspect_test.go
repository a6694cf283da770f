package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		val      string
		wantType string
		detail   string
	}{
		{"message", "msg:0000000000000000001:0000000000000000004",
			`{"id":4,"conversation_id":1,"sender_id":2,"content":"hello","created_at":"2026-01-02T10:00:00Z"}`,
			"MESSAGE", "from 2: hello"},
		{"user", "user:0000000000000000002", `{"id":2,"username":"bob","created_at":"2026-01-02T10:00:00Z"}`, "USER", "@bob"},
		{"pair index", "pair:0000000000000000001:0000000000000000002", `1`, "RAW", "1"},
		{"corrupt message", "msg:1:1", `{`, "RAW", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r := describe(tt.key, []byte(tt.val))
			req.Equal(tt.wantType, r.Type)
			req.Equal(tt.detail, r.Detail)
			req.Equal(tt.key, r.Key)
		})
	}
}
