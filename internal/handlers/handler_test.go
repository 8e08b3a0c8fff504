package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Alice", sanitizeName("  Alice\n"))
	assert.Equal(t, "AB", sanitizeName("A\x00B"))
	assert.Len(t, []rune(sanitizeName(strings.Repeat("é", 150))), 100)
}

func TestValidationMessage(t *testing.T) {
	v := newValidator()

	err := v.Struct(CreateUserRequest{Email: "a@example.com"})
	assert.Equal(t, "name is required", validationMessage(err))

	err = v.Struct(CreateUserRequest{Name: "A", Email: "nope"})
	assert.Equal(t, "invalid email format", validationMessage(err))

	err = v.Struct(CreateChatRequest{User1ID: "u", User2ID: "u"})
	assert.Equal(t, "cannot create chat with yourself", validationMessage(err))

	err = v.Struct(CreateMessageRequest{ChatID: "c", SentBy: "u"})
	assert.Equal(t, "content is required", validationMessage(err))

	bad := "nope"
	err = v.Struct(UpdateUserRequest{Email: &bad})
	assert.Equal(t, "invalid email format", validationMessage(err))

	assert.NoError(t, v.Struct(UpdateUserRequest{}))
}

func TestPageParams(t *testing.T) {
	cases := []struct {
		query       string
		page, limit int
	}{
		{"", 1, 50},
		{"?page=3&limit=10", 3, 10},
		{"?page=0&limit=1000", 1, 100},
		{"?page=abc&limit=-5", 1, 50},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/api/messages/c"+tc.query, nil)
		page, limit := pageParams(r)
		assert.Equal(t, tc.page, page, tc.query)
		assert.Equal(t, tc.limit, limit, tc.query)
	}
}
