package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaKind is the classification of a resolved page
type MediaKind string

const (
	MediaUnknown MediaKind = "unknown"
	MediaImage   MediaKind = "image"
	MediaVideo   MediaKind = "video"
)

// Extension returns the file extension used for downloaded media of this kind
func (k MediaKind) Extension() string {
	switch k {
	case MediaVideo:
		return ".mp4"
	case MediaImage:
		return ".jpg"
	default:
		return ""
	}
}

// MediaRequest represents a single inbound link being resolved
type MediaRequest struct {
	ID          string    `json:"id"`           // UUID used to correlate log lines
	RawURL      string    `json:"raw_url"`      // URL as it appeared in the message
	ResolvedURL string    `json:"resolved_url"` // Canonical page URL, set after normalization
	ReceivedAt  time.Time `json:"received_at"`
}

// NewMediaRequest creates a request for a raw URL
func NewMediaRequest(rawURL string) *MediaRequest {
	return &MediaRequest{
		ID:         uuid.New().String(),
		RawURL:     rawURL,
		ReceivedAt: time.Now(),
	}
}

// CandidateSource identifies where in the page a candidate was found
type CandidateSource string

const (
	SourceVideoTag CandidateSource = "video-tag"
	SourceMeta     CandidateSource = "meta"
	SourcePayload  CandidateSource = "payload"
	SourceImgTag   CandidateSource = "img-tag"
)

// Candidate is a discovered asset URL with whatever quality metadata is known
type Candidate struct {
	URL    string          `json:"url"`
	Source CandidateSource `json:"source"`
	Width  int             `json:"width,omitempty"`  // From a WIDTHxHEIGHT token, if any
	Height int             `json:"height,omitempty"` // From a WIDTHxHEIGHT token, if any
	Size   int64           `json:"size,omitempty"`   // Declared Content-Length from a probe
}

// Resolution returns the pixel count implied by the candidate's dimensions
func (c Candidate) Resolution() int {
	return c.Width * c.Height
}

// ResolvedAsset is the result of resolving a page.
// An empty URL is a valid outcome meaning no usable asset was found.
type ResolvedAsset struct {
	Kind    MediaKind `json:"kind"`
	URL     string    `json:"url,omitempty"`
	PageURL string    `json:"page_url,omitempty"` // Canonical page the asset came from
}

// Found reports whether the resolution produced a downloadable URL
func (a ResolvedAsset) Found() bool {
	return a.URL != ""
}

// DownloadResult describes the outcome of a fetch
type DownloadResult struct {
	Success   bool   `json:"success"`
	LocalPath string `json:"local_path,omitempty"` // Empty when Success is false
	Bytes     int64  `json:"bytes"`
	Attempts  int    `json:"attempts"`
}

// MediaFile is a downloaded file handed to a delivery target
type MediaFile struct {
	Path     string    `json:"path"`
	Kind     MediaKind `json:"kind"`
	PageURL  string    `json:"page_url,omitempty"`
	AssetURL string    `json:"asset_url"`
}
