package pinfetch

import (
	"context"
	"net/http"
	"testing"

	"github.com/docutag/pinfetch/models"
)

func TestOriginalsURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"https://i.pinimg.com/736x/ab/cd/ef.jpg", "https://i.pinimg.com/originals/ab/cd/ef.jpg", true},
		{"https://i.pinimg.com/236x/ab/236x/ef.jpg", "https://i.pinimg.com/originals/ab/236x/ef.jpg", true},
		{"https://i.pinimg.com/1200x800/ab.jpg", "", false},
		{"https://i.pinimg.com/originals/ab.jpg", "", false},
	}
	for _, tt := range tests {
		got, ok := originalsURL(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("originalsURL(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestParseResolution(t *testing.T) {
	w, h := parseResolution("https://i.pinimg.com/1200x800/a.jpg")
	if w != 1200 || h != 800 {
		t.Errorf("parseResolution = %dx%d, want 1200x800", w, h)
	}
	if w, h := parseResolution("https://i.pinimg.com/736x/a.jpg"); w != 0 || h != 0 {
		t.Errorf("parseResolution without height = %dx%d, want 0x0", w, h)
	}
}

func TestImageCandidates(t *testing.T) {
	doc := mustDoc(t, `<html><head>
		<meta property="og:image" content="https://i.pinimg.com/736x/a.jpg">
		<meta name="twitter:image" content="https://i.pinimg.com/736x/a.jpg">
		<link rel="image_src" href="/static/b.png">
	</head><body>
		<img src="data:image/gif;base64,R0lGOD">
		<img src="https://i.pinimg.com/236x/c.jpg">
		<img>
	</body></html>`)

	got := imageCandidates(doc, "https://www.pinterest.com/pin/555/")
	want := []string{
		"https://i.pinimg.com/736x/a.jpg",
		"https://www.pinterest.com/static/b.png",
		"https://i.pinimg.com/236x/c.jpg",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i].URL != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i].URL, want[i])
		}
	}
}

func TestScoreImage(t *testing.T) {
	tests := []struct {
		name      string
		page      string
		reachable map[string]bool // host+path answering 200 to HEAD
		expected  string
		probes    int
	}{
		{
			name: "originals candidate wins without probing",
			page: `<html><head><meta property="og:image" content="https://i.pinimg.com/736x/a.jpg"></head>
				<body><img src="https://i.pinimg.com/originals/b.jpg"></body></html>`,
			reachable: map[string]bool{"i.pinimg.com/originals/a.jpg": true},
			expected:  "https://i.pinimg.com/originals/b.jpg",
			probes:    0,
		},
		{
			name: "rewritten originals accepted when reachable",
			page: `<html><body><img src="https://i.pinimg.com/236x/a.jpg"><img src="https://i.pinimg.com/736x/b.jpg"></body></html>`,
			reachable: map[string]bool{
				"i.pinimg.com/originals/b.jpg": true,
			},
			expected: "https://i.pinimg.com/originals/b.jpg",
			probes:   2,
		},
		{
			name: "non-CDN hosts are not rewritten",
			page: `<html><body><img src="https://example.com/736x/a.jpg"></body></html>`,
			reachable: map[string]bool{
				"example.com/originals/a.jpg": true,
			},
			expected: "https://example.com/736x/a.jpg",
			probes:   0,
		},
		{
			name: "largest resolution token wins",
			page: `<html><body>
				<img src="https://i.pinimg.com/400x300/a.jpg">
				<img src="https://i.pinimg.com/1200x800/b.jpg">
				<img src="https://i.pinimg.com/236x/c.jpg">
			</body></html>`,
			expected: "https://i.pinimg.com/1200x800/b.jpg",
			probes:   1,
		},
		{
			name:     "first candidate when nothing else applies",
			page:     `<html><body><img src="https://example.com/a.jpg"><img src="https://example.com/b.jpg"></body></html>`,
			expected: "https://example.com/a.jpg",
		},
		{
			name: "no candidates",
			page: `<html><body><p>nothing</p></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rw := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
				if req.Method == http.MethodHead && tt.reachable[req.Host+req.URL.Path] {
					w.WriteHeader(http.StatusOK)
					return
				}
				http.NotFound(w, req)
			})

			asset := r.scoreImage(context.Background(), mustDoc(t, tt.page), "https://www.pinterest.com/pin/1/")
			if asset.Kind != models.MediaImage {
				t.Errorf("Kind = %v, want image", asset.Kind)
			}
			if asset.URL != tt.expected {
				t.Errorf("URL = %q, want %q", asset.URL, tt.expected)
			}
			if n := rw.Count("HEAD"); n != tt.probes {
				t.Errorf("HEAD probes = %d, want %d (%v)", n, tt.probes, rw.Calls())
			}
		})
	}
}
