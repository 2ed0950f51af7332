package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/docutag/pinfetch/models"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 19, 14, 25, 30, 0, time.UTC) }

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	s.now = fixedNow
	return s
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	return p
}

func TestNewFilename(t *testing.T) {
	s := newTestStorage(t)

	tests := []struct {
		name     string
		seq      int
		kind     models.MediaKind
		assetURL string
		want     string
	}{
		{"video", 0, models.MediaVideo, "https://cdn/videos/abc/1080p/video.mp4", "1910142530_0.mp4"},
		{"image", 1, models.MediaImage, "https://i.pinimg.com/originals/a.png", "1910142530_1.jpg"},
		{"image extension wins over kind", 2, models.MediaVideo, "https://i.pinimg.com/originals/a.webp", "1910142530_2.jpg"},
		{"unknown kind", 3, models.MediaUnknown, "https://cdn/x", "1910142530_3.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.NewFilename(tt.seq, tt.kind, tt.assetURL)
			if filepath.Base(got) != tt.want {
				t.Errorf("NewFilename() = %q, want base %q", got, tt.want)
			}
			if filepath.Dir(got) != s.config.BasePath {
				t.Errorf("NewFilename() dir = %q, want %q", filepath.Dir(got), s.config.BasePath)
			}
		})
	}
}

func TestSaveAndDeliver(t *testing.T) {
	s := newTestStorage(t)
	src := t.TempDir()

	file := models.MediaFile{
		Path:     writeTemp(t, src, "1910142530_0.mp4", "video-bytes"),
		Kind:     models.MediaVideo,
		PageURL:  "https://www.pinterest.com/pin/555/",
		AssetURL: "https://cdn/videos/abc/1080p/video.mp4",
	}

	rel, err := s.Save(context.Background(), file)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if want := filepath.Join("media", "2026", "10", "pin-555.mp4"); rel != want {
		t.Errorf("Save() = %q, want %q", rel, want)
	}

	rel2, err := s.Save(context.Background(), file)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if want := filepath.Join("media", "2026", "10", "pin-555-1.mp4"); rel2 != want {
		t.Errorf("second Save() = %q, want %q", rel2, want)
	}

	data, err := os.ReadFile(s.GetFullPath(rel))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Errorf("stored content = %q", data)
	}

	var saved []string
	s.OnSaved(func(f models.MediaFile, location string) {
		if f.Path != file.Path {
			t.Errorf("OnSaved file = %q, want %q", f.Path, file.Path)
		}
		saved = append(saved, location)
	})
	if err := s.Deliver(context.Background(), []models.MediaFile{file}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	want := filepath.Join(s.config.BasePath, "media", "2026", "10", "pin-555-2.mp4")
	if len(saved) != 1 || saved[0] != want {
		t.Errorf("OnSaved locations = %v, want [%s]", saved, want)
	}
	if !fileExists(want) {
		t.Errorf("delivered file %s does not exist", want)
	}
	if s.Name() != "directory" {
		t.Errorf("Name() = %q, want directory", s.Name())
	}

	if err := s.Deliver(context.Background(), []models.MediaFile{{Path: filepath.Join(src, "missing.jpg")}}); err == nil {
		t.Error("Deliver of missing file should fail")
	}
}

func TestRemove(t *testing.T) {
	s := newTestStorage(t)
	p := writeTemp(t, s.config.BasePath, "x.jpg", "data")

	if err := s.Remove(p); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fileExists(p) {
		t.Error("file still exists after Remove")
	}
	if err := s.Remove(p); err != nil {
		t.Errorf("Remove of missing file should succeed: %v", err)
	}
}

func TestMediaExtension(t *testing.T) {
	tests := []struct {
		kind models.MediaKind
		url  string
		want string
	}{
		{models.MediaVideo, "https://cdn/v/1080p/video.mp4", ".mp4"},
		{models.MediaImage, "https://i.pinimg.com/originals/a.JPEG", ".jpg"},
		{models.MediaImage, "https://i.pinimg.com/originals/a", ".jpg"},
		{models.MediaVideo, "https://i.pinimg.com/originals/a.gif", ".jpg"},
		{models.MediaUnknown, "::bad", ".bin"},
	}
	for _, tt := range tests {
		if got := MediaExtension(tt.kind, tt.url); got != tt.want {
			t.Errorf("MediaExtension(%v, %q) = %q, want %q", tt.kind, tt.url, got, tt.want)
		}
	}
}

// TestNewS3Storage tests creating S3 storage with valid config
func TestNewS3Storage(t *testing.T) {
	config := S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}

	storage, err := NewS3Storage(context.Background(), config)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if storage == nil {
		t.Fatal("Expected storage to be non-nil")
	}
}

func TestNewS3StorageValidation(t *testing.T) {
	valid := S3Config{
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
	}

	tests := []struct {
		name   string
		mutate func(*S3Config)
	}{
		{"missing bucket", func(c *S3Config) { c.Bucket = "" }},
		{"missing region", func(c *S3Config) { c.Region = "" }},
		{"missing credentials", func(c *S3Config) { c.AccessKeyID = ""; c.SecretAccessKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewS3Storage(context.Background(), cfg); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}

type fakeS3 struct {
	puts   []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Deliver(t *testing.T) {
	fake := &fakeS3{}
	s := newS3Storage(fake, S3Config{Bucket: "media-bucket", Prefix: "/pins/"})
	s.now = fixedNow

	dir := t.TempDir()
	files := []models.MediaFile{
		{Path: writeTemp(t, dir, "1910142530_0.jpg", "img"), Kind: models.MediaImage, PageURL: "https://www.pinterest.com/pin/555/"},
		{Path: writeTemp(t, dir, "1910142530_1.mp4", "vid"), Kind: models.MediaVideo},
	}

	var saved []string
	s.OnSaved(func(_ models.MediaFile, location string) {
		saved = append(saved, location)
	})

	if err := s.Deliver(context.Background(), files); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(fake.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(fake.puts))
	}

	if got := *fake.puts[0].Key; got != "pins/2026/10/pin-555-1910142530_0.jpg" {
		t.Errorf("key 0 = %q", got)
	}
	if got := *fake.puts[0].ContentType; got != "image/jpeg" {
		t.Errorf("content type 0 = %q", got)
	}
	if got := *fake.puts[1].Key; got != "pins/2026/10/1910142530_1.mp4" {
		t.Errorf("key 1 = %q", got)
	}
	if *fake.puts[0].Bucket != "media-bucket" || fake.bodies[1] != "vid" {
		t.Errorf("unexpected upload %+v %v", fake.puts[1], fake.bodies)
	}

	wantSaved := []string{
		"s3://media-bucket/pins/2026/10/pin-555-1910142530_0.jpg",
		"s3://media-bucket/pins/2026/10/1910142530_1.mp4",
	}
	if strings.Join(saved, ",") != strings.Join(wantSaved, ",") {
		t.Errorf("OnSaved locations = %v, want %v", saved, wantSaved)
	}
	if s.Name() != "s3" {
		t.Errorf("Name() = %q, want s3", s.Name())
	}
}

func TestS3DeliverError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	s := newS3Storage(fake, S3Config{Bucket: "b"})

	p := writeTemp(t, t.TempDir(), "a.jpg", "x")
	err := s.Deliver(context.Background(), []models.MediaFile{{Path: p}})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("Deliver error = %v, want upload failure", err)
	}
}
