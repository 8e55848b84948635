package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigins(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{" HTTP://Example.COM ", "", "not a url", "https://b.example:8443"})

	assert.False(t, allowAll)
	assert.Equal(t, []string{"http://example.com", "https://b.example:8443"}, normalized)

	_, allowAll = normalizeOrigins([]string{"*"})
	assert.True(t, allowAll)

	normalized, allowAll = normalizeOrigins(nil)
	assert.Nil(t, normalized)
	assert.False(t, allowAll)
}

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080"})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "http://localhost:8080", true},
		{"case insensitive", "HTTP://LOCALHOST:8080", true},
		{"different port", "http://localhost:9090", false},
		{"different scheme", "https://localhost:8080", false},
		{"missing header", "", false},
		{"garbage", "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.checkOrigin(r))
		})
	}
}

func TestOriginPolicyAllowAll(t *testing.T) {
	policy := newOriginPolicy([]string{"*"})

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, policy.checkOrigin(r))

	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, policy.checkOrigin(r))
}
