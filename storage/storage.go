package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/docutag/pinfetch/models"
	"github.com/docutag/pinfetch/slug"
)

// filenameLayout renders day, month, hour, minute and second, e.g. 1910142530
const filenameLayout = "0201150405"

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// SavedFunc is told where each delivered file ended up
type SavedFunc func(file models.MediaFile, location string)

// Storage handles filesystem storage operations.
// It serves both as the download work directory and as a directory delivery target.
type Storage struct {
	config  Config
	now     func() time.Time
	onSaved SavedFunc
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
		now:    time.Now,
	}, nil
}

// NewFilename returns a download path for the seq-th asset of a batch,
// named <ddmmHHMMSS>_<seq> with an extension chosen from the asset.
func (s *Storage) NewFilename(seq int, kind models.MediaKind, assetURL string) string {
	name := fmt.Sprintf("%s_%d%s", s.now().Format(filenameLayout), seq, MediaExtension(kind, assetURL))
	return filepath.Join(s.config.BasePath, name)
}

// MediaExtension picks the file extension for a download. An image file
// extension on the asset URL wins over the kind, since such assets are
// re-encoded as JPEG whatever they were classified as.
func MediaExtension(kind models.MediaKind, assetURL string) string {
	if u, err := url.Parse(assetURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
			return ".jpg"
		}
	}
	if ext := kind.Extension(); ext != "" {
		return ext
	}
	return ".bin"
}

// Save copies a downloaded file into media/YYYY/MM/ under a slug derived
// from its page. Returns the path relative to the base storage directory.
func (s *Storage) Save(ctx context.Context, file models.MediaFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now()
	dirPath := filepath.Join(s.config.BasePath, "media", fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	ext := filepath.Ext(file.Path)
	base := fileSlug(file)
	if base == "" {
		base = slug.GenerateWithFallback(strings.TrimSuffix(filepath.Base(file.Path), ext), "media")
	}

	// Check if file already exists and make unique if necessary
	filePath := filepath.Join(dirPath, base+ext)
	for counter := 1; fileExists(filePath); counter++ {
		filePath = filepath.Join(dirPath, slug.MakeUnique(base, counter)+ext)
	}

	if err := copyFile(file.Path, filePath); err != nil {
		return "", err
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}
	return relPath, nil
}

// OnSaved registers fn to receive the full path of every delivered file
func (s *Storage) OnSaved(fn SavedFunc) {
	s.onSaved = fn
}

// Name identifies the delivery target in metrics
func (s *Storage) Name() string {
	return "directory"
}

// Deliver saves every file in order, stopping at the first failure
func (s *Storage) Deliver(ctx context.Context, files []models.MediaFile) error {
	for _, f := range files {
		relPath, err := s.Save(ctx, f)
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", f.Path, err)
		}
		if s.onSaved != nil {
			s.onSaved(f, s.GetFullPath(relPath))
		}
	}
	return nil
}

// Remove deletes a file returned by NewFilename; a missing file is not an error
func (s *Storage) Remove(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// GetFullPath returns the full filesystem path for a relative path
func (s *Storage) GetFullPath(relPath string) string {
	return filepath.Join(s.config.BasePath, relPath)
}

// fileSlug names an exported file after its page or its asset; "" when neither yields one
func fileSlug(file models.MediaFile) string {
	if file.PageURL != "" {
		if s := slug.FromPageURL(file.PageURL); s != "" {
			return s
		}
	}
	return slug.FromAssetURL(file.AssetURL)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create media file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write media file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// contentTypeFromExtension returns the MIME type stored alongside uploaded media
func contentTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
