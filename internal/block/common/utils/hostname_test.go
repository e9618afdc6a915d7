package utils

import "testing"

func TestCanonicalHostName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already canonical", input: "example.com", expected: "example.com"},
		{name: "trailing dot", input: "example.com.", expected: "example.com"},
		{name: "multiple trailing dots", input: "example.com...", expected: "example.com"},
		{name: "uppercase", input: "EXAMPLE.COM", expected: "example.com"},
		{name: "mixed case with whitespace", input: "  ExAmPlE.CoM\t", expected: "example.com"},
		{name: "empty", input: "", expected: ""},
		{name: "root only", input: ".", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalHostName(tt.input); got != tt.expected {
				t.Errorf("CanonicalHostName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStripWWW(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "www.example.com", expected: "example.com"},
		{input: "example.com", expected: "example.com"},
		{input: "www.www.example.com", expected: "www.example.com"},
		{input: "wwwexample.com", expected: "wwwexample.com"},
		{input: "sub.www.example.com", expected: "sub.www.example.com"},
	}
	for _, tt := range tests {
		if got := StripWWW(tt.input); got != tt.expected {
			t.Errorf("StripWWW(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
