package pinfetch

import (
	"reflect"
	"testing"
)

func TestLinkExtractor(t *testing.T) {
	e := NewLinkExtractor(DefaultPlatform())

	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "short link in sentence",
			text:     "check this https://pin.it/abc123",
			expected: []string{"https://pin.it/abc123"},
		},
		{
			name: "multiple links with punctuation",
			text: "a https://www.pinterest.com/pin/555/, b (https://pinterest.com/i/xyz).",
			expected: []string{
				"https://www.pinterest.com/pin/555/",
				"https://pinterest.com/i/xyz",
			},
		},
		{
			name:     "duplicates collapse",
			text:     "https://pin.it/a https://pin.it/a",
			expected: []string{"https://pin.it/a"},
		},
		{
			name:     "full-width text is folded",
			text:     "ｈｔｔｐｓ://pin.it/ｘ1",
			expected: []string{"https://pin.it/x1"},
		},
		{
			name: "other sites ignored",
			text: "https://example.com/pin/1 and http://notpinterest.com/x",
		},
		{
			name: "no links",
			text: "hello there",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Extract(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}
