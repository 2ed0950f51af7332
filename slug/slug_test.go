package slug

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "basic ascii",
			input:    "Hello World",
			expected: "hello-world",
		},
		{
			name:     "with punctuation",
			input:    "Hello, World!",
			expected: "hello-world",
		},
		{
			name:     "with unicode characters",
			input:    "Café München",
			expected: "cafe-munchen",
		},
		{
			name:     "path separators",
			input:    "pin/555/",
			expected: "pin-555",
		},
		{
			name:     "dots become hyphens",
			input:    "www.pinterest.com",
			expected: "www-pinterest-com",
		},
		{
			name:     "with underscores",
			input:    "Hello_World_Test",
			expected: "hello-world-test",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only special characters",
			input:    "@#$%^&*()",
			expected: "",
		},
		{
			name:     "cyrillic characters",
			input:    "Привет Мир",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Generate(tt.input)
			if result != tt.expected {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGenerateWithFallback(t *testing.T) {
	if got := GenerateWithFallback("@#$%", "fallback value"); got != "fallback-value" {
		t.Errorf("GenerateWithFallback() = %q, want %q", got, "fallback-value")
	}
	if got := GenerateWithFallback("Primary", "fallback"); got != "primary" {
		t.Errorf("GenerateWithFallback() = %q, want %q", got, "primary")
	}
}

func TestFromPageURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "pin page",
			url:      "https://www.pinterest.com/pin/555/",
			expected: "pin-555",
		},
		{
			name:     "query is ignored",
			url:      "https://www.pinterest.com/pin/123456789/?mt=login",
			expected: "pin-123456789",
		},
		{
			name:     "host only",
			url:      "https://pin.it/",
			expected: "pin-it",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPageURL(tt.url); got != tt.expected {
				t.Errorf("FromPageURL(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestFromAssetURL(t *testing.T) {
	got := FromAssetURL("https://i.pinimg.com/originals/ab/cd/Sunset_Photo.jpg?x=1")
	if got != "sunset-photo" {
		t.Errorf("FromAssetURL() = %q, want %q", got, "sunset-photo")
	}
}

func TestMakeUnique(t *testing.T) {
	if got := MakeUnique("pin-555", 0); got != "pin-555" {
		t.Errorf("MakeUnique(0) = %q", got)
	}
	if got := MakeUnique("pin-555", 12); got != "pin-555-12" {
		t.Errorf("MakeUnique(12) = %q, want %q", got, "pin-555-12")
	}
}

func TestSlugLength(t *testing.T) {
	longInput := strings.Repeat("very long title ", 20)

	result := Generate(longInput)
	if len(result) > 100 {
		t.Errorf("Slug length %d exceeds maximum of 100 characters", len(result))
	}
	if strings.HasSuffix(result, "-") {
		t.Errorf("Slug %q ends with a hyphen after truncation", result)
	}
}
