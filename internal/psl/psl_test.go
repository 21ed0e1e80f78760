package psl

import "testing"

func TestBaseOf(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		want string
	}{
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"*.api.example.com", "example.com"},
		{"*.example.co.uk", "example.co.uk"},
		{"localhost", ""},
		{"com", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := c.BaseOf(tt.name); got != tt.want {
			t.Errorf("BaseOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
