package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAllowList(t *testing.T) {
	assert.Equal(t, []string{"@example.com", "admin@corp.io"}, ParseAllowList(" @Example.COM , admin@corp.io "))
	assert.Empty(t, ParseAllowList(""))
	assert.Empty(t, ParseAllowList(" , ,,"))
}

func TestAuthorized(t *testing.T) {
	list := ParseAllowList("@example.com,admin@x.com")

	cases := []struct {
		email string
		want  bool
	}{
		{"user@example.com", true},
		{"USER@EXAMPLE.COM", true},
		{"admin@x.com", true},
		{"Admin@X.com", true},
		{"admin@y.com", false},
		{"user@notexample.com", false},
		{"example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Authorized(tc.email, list), "email %q", tc.email)
	}
}

func TestAuthorizedEmptyListFailsClosed(t *testing.T) {
	assert.False(t, Authorized("anyone@example.com", nil))
	assert.False(t, Authorized("anyone@example.com", []string{}))
}
