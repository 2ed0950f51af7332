package pinfetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/pinfetch/models"
)

// Signals recorded on a Classification
const (
	SignalMeta     = "meta"
	SignalVideoTag = "video-tag"
	SignalPayload  = "payload"
	SignalDefault  = "default"
)

// Classification is the media kind decided for a page and the signal that decided it
type Classification struct {
	Kind   models.MediaKind
	Signal string
}

const payloadScripts = `script:not([type]), script[type="text/javascript"], script[type="application/json"], script[type="application/ld+json"]`

// Classify decides whether a page carries a video or an image.
// Checks run cheapest first and the first match wins:
// metadata type fields, then a native video element, then script payload markers.
func Classify(doc *goquery.Document) Classification {
	metaVideo := false
	doc.Find(`meta[property="og:type"], meta[property="og:video:type"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, _ := s.Attr("content")
		if strings.Contains(strings.ToLower(content), "video") {
			metaVideo = true
			return false
		}
		return true
	})
	if metaVideo {
		return Classification{Kind: models.MediaVideo, Signal: SignalMeta}
	}

	if doc.Find("video").Length() > 0 {
		return Classification{Kind: models.MediaVideo, Signal: SignalVideoTag}
	}

	payloadVideo := false
	doc.Find(payloadScripts).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, "videoList") || strings.Contains(text, `"type":"video"`) {
			payloadVideo = true
			return false
		}
		return true
	})
	if payloadVideo {
		return Classification{Kind: models.MediaVideo, Signal: SignalPayload}
	}

	return Classification{Kind: models.MediaImage, Signal: SignalDefault}
}
