package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "message only", req: Request{Message: "hello"}},
		{name: "audio only", req: Request{Audio: []byte{1, 2, 3}}},
		{name: "empty", req: Request{}, wantErr: true},
		{name: "whitespace message", req: Request{Message: "   "}, wantErr: true},
		{name: "oversized message", req: Request{Message: strings.Repeat("a", 32_001)}, wantErr: true},
		{name: "at the limit", req: Request{Message: strings.Repeat("a", 32_000)}},
		{name: "explicit mode", req: Request{Message: "x", Mode: ModeDiscussion}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				var vErr *ValidationError
				assert.ErrorAs(t, err, &vErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Short note", DeriveTitle("Short note"))
	assert.Equal(t, "", DeriveTitle("   "))

	long := strings.Repeat("word ", 30)
	title := DeriveTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), 61)
	assert.True(t, strings.HasSuffix(title, "…"))

	// Multibyte content must be cut on rune boundaries.
	assert.NotContains(t, DeriveTitle(strings.Repeat("日本語テキスト", 20)), "�")
}

func TestTurnIsUser(t *testing.T) {
	assert.True(t, NewTurn("c1", RoleUser, "hi").IsUser())
	assert.False(t, NewTurn("c1", "scribe", "hi").IsUser())
}
